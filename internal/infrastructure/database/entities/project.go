package entities

// Project is the persisted project row.
type Project struct {
	TenantID    string `gorm:"type:varchar(64);primaryKey"`
	ID          string `gorm:"type:varchar(64);primaryKey"`
	UserID      string `gorm:"type:varchar(128);not null;index:idx_projects_tenant_user"`
	Name        string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text;not null;default:''"`
	CreatedAt   int64  `gorm:"autoCreateTime:false;not null"`
}

func (Project) TableName() string {
	return "projects"
}
