package kbfilerepo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "jan-server/services/knowledge-api/internal/domain/knowledgebase"
	"jan-server/services/knowledge-api/internal/infrastructure/database/entities"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

const deleteExpiredSQL = `
DELETE FROM knowledge_base_files
WHERE (tenant_id, id) IN (
    SELECT tenant_id, id FROM knowledge_base_files
    WHERE ttl <= ?
    ORDER BY ttl
    LIMIT ?
    FOR UPDATE SKIP LOCKED
)
RETURNING tenant_id, id, user_id, project_id, document_status, created_at, ttl`

// Repository stores knowledge base files in PostgreSQL.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Upsert(ctx context.Context, file *domain.File) error {
	entity := entities.KnowledgeBaseFile{
		TenantID:       file.TenantID,
		ID:             file.ID,
		UserID:         file.UserID,
		ProjectID:      file.ProjectID,
		DocumentStatus: file.DocumentStatus,
		CreatedAt:      file.CreatedAt,
		TTL:            file.TTL,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "id"}},
			UpdateAll: true,
		}).
		Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to upsert knowledge base file", err, "6a8c0e2a-4c5e-4a7c-89db-3f6a8c0e2a46")
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&entities.KnowledgeBaseFile{}).Error
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to delete knowledge base file", err, "8c0e2a4c-6e7a-4c9e-a1fd-5a8c0e2a4c68")
	}
	return nil
}

// DeleteExpired removes expired rows and returns their last image. Rows locked by a
// concurrent sweep are skipped. The delete runs in a transaction that commits only after
// announce succeeds.
func (r *Repository) DeleteExpired(ctx context.Context, now int64, limit int, announce func(ctx context.Context, expired []*domain.File) error) ([]*domain.File, error) {
	var files []*domain.File
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []entities.KnowledgeBaseFile
		if err := tx.Raw(deleteExpiredSQL, now, limit).Scan(&rows).Error; err != nil {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
				"failed to delete expired knowledge base files", err, "0e2a4c6e-8a9c-4e1a-b3fb-7c0e2a4c6e80")
		}
		if len(rows) == 0 {
			return nil
		}
		expired := make([]*domain.File, 0, len(rows))
		for _, row := range rows {
			expired = append(expired, toDomain(row))
		}
		if err := announce(ctx, expired); err != nil {
			return err
		}
		files = expired
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func toDomain(row entities.KnowledgeBaseFile) *domain.File {
	return &domain.File{
		ID:             row.ID,
		TenantID:       row.TenantID,
		UserID:         row.UserID,
		ProjectID:      row.ProjectID,
		DocumentStatus: row.DocumentStatus,
		CreatedAt:      row.CreatedAt,
		TTL:            row.TTL,
	}
}
