package entities

// ProjectFile is the persisted file registry row.
type ProjectFile struct {
	TenantID  string `gorm:"type:varchar(64);primaryKey"`
	ID        string `gorm:"type:varchar(64);primaryKey"`
	UserID    string `gorm:"type:varchar(128);not null"`
	ProjectID string `gorm:"type:varchar(64);not null;index:idx_project_files_tenant_project"`
	Filename  string `gorm:"type:varchar(512);not null"`
	Filesize  int64  `gorm:"not null"`
	S3Key     string `gorm:"column:s3_key;type:varchar(1024);not null"`
	Bucket    string `gorm:"type:varchar(255);not null"`
	CreatedAt int64  `gorm:"autoCreateTime:false;not null"`
}

func (ProjectFile) TableName() string {
	return "project_files"
}
