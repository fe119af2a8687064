package projectfile

import (
	"context"
	"time"
)

// File is a file registered in a project. (TenantID, ID) identifies it.
type File struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
	Filename  string `json:"filename"`
	Filesize  int64  `json:"filesize"`
	S3Key     string `json:"s3Key"`
	Bucket    string `json:"bucket"`
	CreatedAt int64  `json:"createdAt"`
}

// UploadRequest registers a new file before the client uploads its bytes.
type UploadRequest struct {
	TenantID  string
	UserID    string
	ProjectID string
	Filename  string
	Filesize  int64
}

// UploadTicket is returned to the client to perform the upload.
type UploadTicket struct {
	UploadURL string `json:"uploadUrl"`
	FileID    string `json:"fileId"`
}

// Repository defines persistence operations for project files.
type Repository interface {
	Create(ctx context.Context, file *File) error
	Get(ctx context.Context, tenantID, id string) (*File, error)
	ListByProject(ctx context.Context, tenantID, projectID string) ([]*File, error)
	CountByProject(ctx context.Context, tenantID, projectID string) (int64, error)
	Delete(ctx context.Context, tenantID, id string) error
	DeleteBatch(ctx context.Context, tenantID string, ids []string) error
}

// Storage defines the object store operations used for project files.
type Storage interface {
	Bucket() string
	PresignPut(ctx context.Context, key string, contentType string, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, bucket, key, filename string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// IndexWithdrawer removes a file's document from the knowledge base.
type IndexWithdrawer interface {
	Withdraw(ctx context.Context, tenantID, fileID string) error
}
