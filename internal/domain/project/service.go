package project

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// Service manages projects.
type Service struct {
	repo   Repository
	files  FilePurger
	log    zerolog.Logger
	now    func() time.Time
	idFunc func() string
}

func NewService(repo Repository, files FilePurger, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		files:  files,
		log:    log.With().Str("component", "project-service").Logger(),
		now:    time.Now,
		idFunc: uuid.NewString,
	}
}

// CreateInput holds the caller supplied fields of a new project.
type CreateInput struct {
	TenantID    string
	UserID      string
	Name        string
	Description string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Project, error) {
	if strings.TrimSpace(in.TenantID) == "" || strings.TrimSpace(in.UserID) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"user ID and tenant ID are required", nil, "d41f7a2c-93e5-4b08-a6c1-2f8e0b7d5c39")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"name is required", nil, "8b3e5d1f-0a64-4c27-9e8b-6d2f4a0c1e75")
	}

	p := &Project{
		ID:          s.idFunc(),
		TenantID:    in.TenantID,
		UserID:      in.UserID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.now().Unix(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create project")
	}
	s.log.Info().Str("project_id", p.ID).Str("tenant_id", p.TenantID).Msg("created project")
	return p, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*Project, error) {
	if strings.TrimSpace(id) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"project ID is required", nil, "2c7a9e4b-6f10-4d83-b5a2-0e9d3c7f1b46")
	}
	p, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "project not found")
	}
	return p, nil
}

// List returns the projects of a tenant.
func (s *Service) List(ctx context.Context, tenantID string) ([]*Project, error) {
	projects, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list projects")
	}
	return projects, nil
}

// Delete removes the project's files first, then the project record.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	p, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.files.PurgeProject(ctx, tenantID, p.ID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, tenantID, p.ID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete project")
	}
	s.log.Info().Str("project_id", p.ID).Msg("deleted project")
	return nil
}
