package chatrepo

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jan-server/services/knowledge-api/internal/config"
	domain "jan-server/services/knowledge-api/internal/domain/chathistory"
	"jan-server/services/knowledge-api/internal/infrastructure/database/entities"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// Repository stores chat messages in PostgreSQL.
type Repository struct {
	db        *gorm.DB
	batchSize int
}

func NewRepository(cfg *config.Config, db *gorm.DB) *Repository {
	size := cfg.StoreBatchSize
	if size <= 0 {
		size = 25
	}
	return &Repository{db: db, batchSize: size}
}

func (r *Repository) Put(ctx context.Context, msg *domain.Message) error {
	return r.PutBatch(ctx, []*domain.Message{msg})
}

// PutBatch upserts messages by (tenant_id, id), overwriting every column.
func (r *Repository) PutBatch(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]entities.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		row, err := toEntity(msg)
		if err != nil {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
				"failed to encode chat message sources", err, "2a4c6e8a-0c1e-4a3c-95fd-9e2a4c6e8a02")
		}
		rows = append(rows, row)
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "id"}},
			UpdateAll: true,
		}).
		CreateInBatches(&rows, r.batchSize).Error
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to save chat messages", err, "4c6e8a0c-2e3a-4c5e-a7bf-1a4c6e8a0c24")
	}
	return nil
}

// Page reads one keyset page of a user's history ordered by (timestamp, id).
func (r *Repository) Page(ctx context.Context, tenantID, userID string, after *domain.Cursor, limit int) ([]*domain.Message, *domain.Cursor, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID)
	if after != nil {
		query = query.Where("(timestamp, id) > (?, ?)", after.Timestamp, after.ID)
	}

	var rows []entities.ChatMessage
	err := query.
		Order("timestamp ASC, id ASC").
		Limit(limit + 1).
		Find(&rows).Error
	if err != nil {
		return nil, nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to read chat history", err, "6e8a0c2e-4a5c-4e7a-89df-3c6e8a0c2e46")
	}

	var next *domain.Cursor
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = &domain.Cursor{Timestamp: last.Timestamp, ID: last.ID}
	}

	messages := make([]*domain.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := toDomain(row)
		if err != nil {
			return nil, nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
				"failed to decode chat message sources", err, "8a0c2e4a-6c7e-4a9c-a1f1-5e8a0c2e4a68")
		}
		messages = append(messages, msg)
	}
	return messages, next, nil
}

// DeleteBatch removes messages in chunks of the store batch size.
func (r *Repository) DeleteBatch(ctx context.Context, tenantID string, ids []string) error {
	for start := 0; start < len(ids); start += r.batchSize {
		end := start + r.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		err := r.db.WithContext(ctx).
			Where("tenant_id = ? AND id IN ?", tenantID, ids[start:end]).
			Delete(&entities.ChatMessage{}).Error
		if err != nil {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
				"failed to delete chat messages", err, "0c2e4a6c-8e9a-4c1e-b3d3-7a0c2e4a6c80")
		}
	}
	return nil
}

func toEntity(msg *domain.Message) (entities.ChatMessage, error) {
	row := entities.ChatMessage{
		TenantID:  msg.TenantID,
		ID:        msg.ID,
		SessionID: msg.SessionID,
		UserID:    msg.UserID,
		ProjectID: msg.ProjectID,
		Type:      string(msg.Type),
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
	if len(msg.Sources) > 0 {
		raw, err := json.Marshal(msg.Sources)
		if err != nil {
			return row, err
		}
		row.Sources = datatypes.JSON(raw)
	}
	return row, nil
}

func toDomain(row entities.ChatMessage) (*domain.Message, error) {
	msg := &domain.Message{
		ID:        row.ID,
		SessionID: row.SessionID,
		TenantID:  row.TenantID,
		UserID:    row.UserID,
		ProjectID: row.ProjectID,
		Type:      domain.MessageType(row.Type),
		Content:   row.Content,
		Timestamp: row.Timestamp,
	}
	if len(row.Sources) > 0 && string(row.Sources) != "null" {
		if err := json.Unmarshal(row.Sources, &msg.Sources); err != nil {
			return nil, err
		}
	}
	return msg, nil
}
