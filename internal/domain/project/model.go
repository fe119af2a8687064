package project

import "context"

// Project groups the files a user queries together.
type Project struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

// Repository defines persistence operations for projects.
type Repository interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, tenantID, id string) (*Project, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Project, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// FilePurger removes every file that belongs to a project.
type FilePurger interface {
	PurgeProject(ctx context.Context, tenantID, projectID string) error
}
