package knowledgebase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/domain/projectfile"
	"jan-server/services/knowledge-api/internal/domain/tenant"
	"jan-server/services/knowledge-api/internal/infrastructure/metrics"
	"jan-server/services/knowledge-api/internal/infrastructure/observability"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// IngestionResult summarises a successful ingestion.
type IngestionResult struct {
	FilesIngested int    `json:"filesIngested"`
	ItemStatus    string `json:"itemStatus"`
	Message       string `json:"message"`
}

// IngestionCoordinator pushes project files into the knowledge base.
type IngestionCoordinator struct {
	target    Target
	files     ProjectFiles
	kbFiles   FileRepository
	index     DocumentIndex
	tenants   *tenant.Directory
	publisher ChangePublisher
	log       zerolog.Logger
	now       func() time.Time
	newToken  func() string
}

func NewIngestionCoordinator(
	cfg *config.Config,
	files ProjectFiles,
	kbFiles FileRepository,
	index DocumentIndex,
	tenants *tenant.Directory,
	publisher ChangePublisher,
	log zerolog.Logger,
) *IngestionCoordinator {
	return &IngestionCoordinator{
		target:    Target{KnowledgeBaseID: cfg.KnowledgeBaseID, DataSourceID: cfg.DataSourceID},
		files:     files,
		kbFiles:   kbFiles,
		index:     index,
		tenants:   tenants,
		publisher: publisher,
		log:       log.With().Str("component", "kb-ingestion").Logger(),
		now:       time.Now,
		newToken:  uuid.NewString,
	}
}

// IngestProject resolves the project's files and ingests all of them.
func (c *IngestionCoordinator) IngestProject(ctx context.Context, tenantID, userID, projectID string) (*IngestionResult, error) {
	if err := c.validate(ctx, userID, projectID); err != nil {
		return nil, err
	}
	files, err := c.files.ListByProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to get project files")
	}
	c.log.Info().Int("files", len(files)).Str("project_id", projectID).Msg("found project files")
	return c.Ingest(ctx, tenantID, userID, projectID, files)
}

// Ingest writes one knowledge base file per project file and submits one document
// for each. It stops at the first failure; rows written before it are kept.
func (c *IngestionCoordinator) Ingest(ctx context.Context, tenantID, userID, projectID string, files []*projectfile.File) (*IngestionResult, error) {
	ctx, span := observability.StartSpan(ctx, "knowledgebase.ingest", observability.ScopeAttributes(tenantID, projectID)...)
	defer span.End()

	if err := c.validate(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		c.log.Warn().Str("project_id", projectID).Msg("no files found for project")
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"Project requires files", nil, "a3c5e7f9-1b2d-4f60-8a4c-6e8b0d2f4a17")
	}

	t, err := c.tenants.RetentionFor(ctx, tenantID)
	if err != nil {
		metrics.RecordDocument("ingest", "invalid_tenant")
		c.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("invalid TENANTS value")
		observability.RecordError(span, err)
		return nil, err
	}

	now := c.now().Unix()
	ttl := now + t.FilesTTLSeconds()
	span.SetAttributes(attribute.Int("kb.files", len(files)))

	ingested := 0
	for _, f := range files {
		kbFile := &File{
			ID:             f.ID,
			TenantID:       tenantID,
			UserID:         userID,
			ProjectID:      projectID,
			DocumentStatus: DocumentStatusReady,
			CreatedAt:      now,
			TTL:            ttl,
		}
		if err := c.kbFiles.Upsert(ctx, kbFile); err != nil {
			metrics.RecordDocument("ingest", "error")
			c.log.Warn().Err(err).Str("file_id", f.ID).Msg("error ingesting files")
			observability.RecordError(span, err)
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to record knowledge base file")
		}

		doc := Document{
			ID:        f.ID,
			SourceURI: fmt.Sprintf("s3://%s/%s", f.Bucket, f.S3Key),
			Tags: Tags{
				UserID:    userID,
				TenantID:  tenantID,
				ProjectID: projectID,
				FileID:    f.ID,
			},
		}
		if err := c.index.Submit(ctx, c.target, c.newToken(), []Document{doc}); err != nil {
			metrics.RecordDocument("ingest", "error")
			c.log.Warn().Err(err).Str("file_id", f.ID).Msg("error ingesting files")
			observability.RecordError(span, err)
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
				"failed to ingest document", err, "5e7a9c1b-3d4f-4a82-b6c8-0e2a4c6e8b39")
		}
		metrics.RecordDocument("ingest", "success")
		c.log.Debug().Str("file_id", f.ID).Str("uri", doc.SourceURI).Msg("ingested file")
		ingested++
	}

	c.log.Info().Int("files", ingested).Str("project_id", projectID).Msg("ingested files into knowledge base")
	return &IngestionResult{
		FilesIngested: ingested,
		ItemStatus:    DocumentStatusReady,
		Message:       "All files are in the knowledge base",
	}, nil
}

// Withdraw removes a file's document from the index and drops its knowledge base
// row. The removal is announced with a caller actor so the reaper leaves it alone.
func (c *IngestionCoordinator) Withdraw(ctx context.Context, tenantID, fileID string) error {
	if c.target.KnowledgeBaseID == "" || c.target.DataSourceID == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConfiguration,
			"Knowledge base ID not configured", nil, "7b9d1f3a-5c6e-4b04-8d2f-1a3c5e7b9d40")
	}
	if err := c.index.Delete(ctx, c.target, c.newToken(), []string{fileID}); err != nil {
		metrics.RecordDocument("delete", "error")
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
			"failed to delete document from knowledge base", err, "9d1f3b5c-7e8a-4c26-a0b4-3c5e7a9d1f62")
	}
	metrics.RecordDocument("delete", "success")

	if err := c.kbFiles.Delete(ctx, tenantID, fileID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete knowledge base file")
	}
	if c.publisher != nil {
		record := ChangeRecord{
			EventName: EventRemove,
			Keys:      ChangeKeys{TenantID: tenantID, ID: fileID},
			Actor:     Actor{Type: ActorCaller},
		}
		if err := c.publisher.Publish(ctx, []ChangeRecord{record}); err != nil {
			c.log.Warn().Err(err).Str("file_id", fileID).Msg("failed to publish file removal")
		}
	}
	return nil
}

func (c *IngestionCoordinator) validate(ctx context.Context, userID, projectID string) error {
	if c.target.KnowledgeBaseID == "" {
		metrics.RecordDocument("ingest", "misconfigured")
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConfiguration,
			"Knowledge base ID not configured", nil, "2d4f6a8c-0e1b-4d93-a5c7-9e1b3d5f7a28")
	}
	if strings.TrimSpace(userID) == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"User ID is required", nil, "4f6a8c0e-2b3d-4fb5-87e9-1b3d5f7a9c40")
	}
	if strings.TrimSpace(projectID) == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"Project ID is required", nil, "6a8c0e2b-4d5f-4b17-a90b-3d5f7a9c1e62")
	}
	return nil
}
