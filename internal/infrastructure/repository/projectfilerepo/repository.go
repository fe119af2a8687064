package projectfilerepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"jan-server/services/knowledge-api/internal/config"
	domain "jan-server/services/knowledge-api/internal/domain/projectfile"
	"jan-server/services/knowledge-api/internal/infrastructure/database/entities"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// Repository is the file registry backed by PostgreSQL.
type Repository struct {
	db        *gorm.DB
	batchSize int
}

func NewRepository(cfg *config.Config, db *gorm.DB) *Repository {
	return &Repository{db: db, batchSize: cfg.StoreBatchSize}
}

func (r *Repository) Create(ctx context.Context, file *domain.File) error {
	entity := toEntity(file)
	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to create project file", err, "2e4a6c8e-0b1d-4f3a-95c7-9d2f4a6c8e02")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, tenantID, id string) (*domain.File, error) {
	var entity entities.ProjectFile
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
				"project file not found", err, "4a6c8e0b-2d3f-4a5c-a7e9-1f4a6c8e0b24")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to get project file", err, "6c8e0b2d-4f5a-4c7e-b9f1-3a6c8e0b2d46")
	}
	return toDomain(entity), nil
}

func (r *Repository) ListByProject(ctx context.Context, tenantID, projectID string) ([]*domain.File, error) {
	var rows []entities.ProjectFile
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND project_id = ?", tenantID, projectID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list project files", err, "8e0b2d4f-6a7c-4e9a-81b3-5c8e0b2d4f68")
	}
	files := make([]*domain.File, 0, len(rows))
	for _, row := range rows {
		files = append(files, toDomain(row))
	}
	return files, nil
}

func (r *Repository) CountByProject(ctx context.Context, tenantID, projectID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.ProjectFile{}).
		Where("tenant_id = ? AND project_id = ?", tenantID, projectID).
		Count(&count).Error
	if err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to count project files", err, "0b2d4f6a-8c9e-4a1c-93d5-7e0b2d4f6a80")
	}
	return count, nil
}

func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&entities.ProjectFile{}).Error
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to delete project file", err, "2d4f6a8c-0e1a-4c3e-a5f7-9b2d4f6a8c02")
	}
	return nil
}

// DeleteBatch removes files in chunks of the store batch size. Chunks are not atomic
// with each other.
func (r *Repository) DeleteBatch(ctx context.Context, tenantID string, ids []string) error {
	for _, chunk := range chunk(ids, r.batchSize) {
		err := r.db.WithContext(ctx).
			Where("tenant_id = ? AND id IN ?", tenantID, chunk).
			Delete(&entities.ProjectFile{}).Error
		if err != nil {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
				"failed to delete project files", err, "4f6a8c0e-2a3c-4e5a-b7b9-1d4f6a8c0e24")
		}
	}
	return nil
}

func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = 25
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func toEntity(file *domain.File) entities.ProjectFile {
	return entities.ProjectFile{
		TenantID:  file.TenantID,
		ID:        file.ID,
		UserID:    file.UserID,
		ProjectID: file.ProjectID,
		Filename:  file.Filename,
		Filesize:  file.Filesize,
		S3Key:     file.S3Key,
		Bucket:    file.Bucket,
		CreatedAt: file.CreatedAt,
	}
}

func toDomain(entity entities.ProjectFile) *domain.File {
	return &domain.File{
		ID:        entity.ID,
		TenantID:  entity.TenantID,
		UserID:    entity.UserID,
		ProjectID: entity.ProjectID,
		Filename:  entity.Filename,
		Filesize:  entity.Filesize,
		S3Key:     entity.S3Key,
		Bucket:    entity.Bucket,
		CreatedAt: entity.CreatedAt,
	}
}
