package entities

import "gorm.io/datatypes"

// ChatMessage is one persisted chat history entry. Sources holds the citation list as JSONB.
type ChatMessage struct {
	TenantID  string         `gorm:"type:varchar(64);primaryKey"`
	ID        string         `gorm:"type:varchar(32);primaryKey"`
	SessionID string         `gorm:"type:varchar(255);not null;default:''"`
	UserID    string         `gorm:"type:varchar(128);not null"`
	ProjectID string         `gorm:"type:varchar(64);not null;default:''"`
	Type      string         `gorm:"type:varchar(16);not null"`
	Content   string         `gorm:"type:text;not null"`
	Timestamp int64          `gorm:"not null"`
	Sources   datatypes.JSON `gorm:"type:jsonb"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
