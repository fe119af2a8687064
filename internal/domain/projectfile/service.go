package projectfile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/domain/tenant"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

const uploadContentType = "application/octet-stream"

// Service manages the file registry of projects.
type Service struct {
	cfg       *config.Config
	repo      Repository
	storage   Storage
	tenants   *tenant.Directory
	withdrawn IndexWithdrawer
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(cfg *config.Config, repo Repository, storage Storage, tenants *tenant.Directory, withdrawer IndexWithdrawer, log zerolog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		repo:      repo,
		storage:   storage,
		tenants:   tenants,
		withdrawn: withdrawer,
		log:       log.With().Str("component", "projectfile-service").Logger(),
		now:       time.Now,
	}
}

// ObjectKey returns the storage key of a project file.
func ObjectKey(tenantID, projectID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", tenantID, projectID, filename)
}

// ProjectPrefix returns the storage prefix holding all files of a project.
func ProjectPrefix(tenantID, projectID string) string {
	return tenantID + "/" + projectID + "/"
}

// Upload registers a file and returns a presigned upload URL. The tenant's MaxFiles
// bounds the number of files per project.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadTicket, error) {
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.UserID) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"user ID and tenant ID are required", nil, "b2d74f0e-1c8a-4e63-9f5d-3a6e0c9b2d17")
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"project ID is required", nil, "e5a1c3f7-8b2d-4a90-b6e4-7d0f1c5a3e28")
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" || strings.Contains(filename, "/") {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"file name is required", nil, "0d6f2b8a-4e19-4c75-a3d0-9b8e1f6c4a52")
	}
	if req.Filesize <= 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"file size is required", nil, "7c3e9a5d-2f60-4b18-8e4c-1a7d5b0f9c36")
	}

	t, err := s.tenants.Lookup(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	count, err := s.repo.CountByProject(ctx, req.TenantID, req.ProjectID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to count project files")
	}
	if count >= int64(t.MaxFiles) {
		s.log.Warn().
			Str("tenant_id", req.TenantID).
			Int64("current", count).
			Int("max", t.MaxFiles).
			Msg("file limit exceeded")
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			fmt.Sprintf("file limit exceeded. Maximum %d files allowed per project.", t.MaxFiles), nil,
			"c9f1a7e3-0b54-4d2e-a86f-5e3b7c9d1a04")
	}

	key := ObjectKey(req.TenantID, req.ProjectID, filename)
	file := &File{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Filename:  filename,
		Filesize:  req.Filesize,
		S3Key:     key,
		Bucket:    s.storage.Bucket(),
		CreatedAt: s.now().Unix(),
	}
	if err := s.repo.Create(ctx, file); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create file record")
	}
	s.log.Info().Str("file_id", file.ID).Str("project_id", file.ProjectID).Msg("created file record")

	uploadURL, err := s.storage.PresignPut(ctx, key, uploadContentType, s.cfg.UploadURLTTL)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
			"failed to generate upload URL", err, "1e7b3d9f-5a20-4c86-b4f1-8d2a6e0c7b95")
	}

	return &UploadTicket{UploadURL: uploadURL, FileID: file.ID}, nil
}

// Get returns a single file record.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*File, error) {
	if strings.TrimSpace(id) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"project file ID is required", nil, "5b9d1f3a-7c42-4e08-9a6b-0f4c8e2d6a17")
	}
	file, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "project file not found")
	}
	return file, nil
}

// ListByProject returns all files registered in a project.
func (s *Service) ListByProject(ctx context.Context, tenantID, projectID string) ([]*File, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"project ID is required", nil, "8e2a4c6f-1d93-4b57-a0e8-6c3f9b1d5e72")
	}
	files, err := s.repo.ListByProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list project files")
	}
	return files, nil
}

// DownloadURL returns a presigned URL that forces a download of the original file.
func (s *Service) DownloadURL(ctx context.Context, tenantID, id string) (string, error) {
	file, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	url, err := s.storage.PresignDownload(ctx, file.Bucket, file.S3Key, file.Filename, s.cfg.DownloadURLTTL)
	if err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
			"failed to generate download URL", err, "2f8c0a6e-9d13-4b75-8e2a-4c7f1b3d9e60")
	}
	return url, nil
}

// Delete removes the stored object, withdraws the document from the knowledge base
// and deletes the record. A failed withdrawal does not stop the deletion.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	file, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	if file.S3Key != "" {
		if err := s.storage.Delete(ctx, file.S3Key); err != nil {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
				"failed to delete file from storage", err, "6d0e2b4f-8a31-4c97-b5e3-1f9a7c0d2b48")
		}
	}

	if s.withdrawn != nil {
		if err := s.withdrawn.Withdraw(ctx, tenantID, file.ID); err != nil {
			s.log.Error().Err(err).Str("file_id", file.ID).Msg("failed to delete document from knowledge base")
		}
	}

	if err := s.repo.Delete(ctx, tenantID, file.ID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete project file")
	}
	s.log.Info().Str("file_id", file.ID).Msg("deleted project file")
	return nil
}

// PurgeProject removes every file of a project: knowledge base documents (best
// effort), records, then the project's storage prefix.
func (s *Service) PurgeProject(ctx context.Context, tenantID, projectID string) error {
	files, err := s.repo.ListByProject(ctx, tenantID, projectID)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list project files")
	}
	s.log.Info().Int("files", len(files)).Str("project_id", projectID).Msg("purging project files")

	ids := make([]string, 0, len(files))
	for _, file := range files {
		if s.withdrawn != nil {
			if err := s.withdrawn.Withdraw(ctx, tenantID, file.ID); err != nil {
				s.log.Error().Err(err).Str("file_id", file.ID).Msg("failed to delete document from knowledge base")
			}
		}
		ids = append(ids, file.ID)
	}

	if len(ids) > 0 {
		if err := s.repo.DeleteBatch(ctx, tenantID, ids); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete project files")
		}
	}

	deleted, err := s.storage.DeletePrefix(ctx, ProjectPrefix(tenantID, projectID))
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
			"failed to delete project folder", err, "0a5c7e9b-3d28-4f16-a4b0-8e6d2c1f7a93")
	}
	s.log.Info().Int("objects", deleted).Str("project_id", projectID).Msg("deleted project folder")
	return nil
}
