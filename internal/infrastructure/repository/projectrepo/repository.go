package projectrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domain "jan-server/services/knowledge-api/internal/domain/project"
	"jan-server/services/knowledge-api/internal/infrastructure/database/entities"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// Repository persists projects in PostgreSQL.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, p *domain.Project) error {
	entity := entities.Project{
		TenantID:    p.TenantID,
		ID:          p.ID,
		UserID:      p.UserID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to create project", err, "3b5d7f9a-1c2e-4f4a-b6c8-0a2c4e6f8b13")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, tenantID, id string) (*domain.Project, error) {
	var entity entities.Project
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
				"project not found", err, "5d7f9a1c-3e4a-4b6c-8e0a-2c4e6f8b1d35")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to get project", err, "7f9a1c3e-5a6b-4d8e-a0c2-4e6f8b1d3f57")
	}
	return mapEntity(entity), nil
}

func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Project, error) {
	var rows []entities.Project
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list projects", err, "9a1c3e5a-7b8c-4f0a-b2c4-6f8b1d3f5a79")
	}
	projects := make([]*domain.Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, mapEntity(row))
	}
	return projects, nil
}

func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&entities.Project{}).Error
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to delete project", err, "1c3e5a7b-9c0d-4a2b-84d6-8b1d3f5a7c91")
	}
	return nil
}

func mapEntity(entity entities.Project) *domain.Project {
	return &domain.Project{
		ID:          entity.ID,
		TenantID:    entity.TenantID,
		UserID:      entity.UserID,
		Name:        entity.Name,
		Description: entity.Description,
		CreatedAt:   entity.CreatedAt,
	}
}
