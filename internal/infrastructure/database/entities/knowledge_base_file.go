package entities

// KnowledgeBaseFile tracks a document submitted to the knowledge base and its expiry.
type KnowledgeBaseFile struct {
	TenantID       string `gorm:"type:varchar(64);primaryKey"`
	ID             string `gorm:"type:varchar(64);primaryKey"`
	UserID         string `gorm:"type:varchar(128);not null"`
	ProjectID      string `gorm:"type:varchar(64);not null;index:idx_knowledge_base_files_tenant_project"`
	DocumentStatus string `gorm:"type:varchar(32);not null"`
	CreatedAt      int64  `gorm:"autoCreateTime:false;not null"`
	TTL            int64  `gorm:"column:ttl;not null;index:idx_knowledge_base_files_ttl"`
}

func (KnowledgeBaseFile) TableName() string {
	return "knowledge_base_files"
}
