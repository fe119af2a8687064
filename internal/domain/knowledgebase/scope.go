package knowledgebase

import (
	"context"

	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// Metadata keys carried by every indexed document.
const (
	TagUserID    = "userId"
	TagTenantID  = "tenantId"
	TagProjectID = "projectId"
	TagFileID    = "fileId"
)

// Scope is the retrieval scope of one project.
type Scope struct {
	TenantID  string
	ProjectID string
	FileIDs   []string
	Filter    Filter
}

// Scoper builds the filter that restricts retrieval to one tenant, one project and
// the files currently registered in it.
type Scoper struct {
	files ProjectFiles
	log   zerolog.Logger
}

func NewScoper(files ProjectFiles, log zerolog.Logger) *Scoper {
	return &Scoper{files: files, log: log.With().Str("component", "kb-scoper").Logger()}
}

// Scope resolves the project's file ids. A project without files has no valid scope.
func (s *Scoper) Scope(ctx context.Context, tenantID, projectID string) (*Scope, error) {
	files, err := s.files.ListByProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to resolve project files")
	}
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	if len(ids) == 0 {
		s.log.Warn().Str("project_id", projectID).Msg("no files found for project")
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"No files found for this project", nil, "8c0e2b4d-6f7a-4d39-b1c3-5f7a9c1e3b84")
	}
	s.log.Info().Strs("file_ids", ids).Str("project_id", projectID).Str("tenant_id", tenantID).Msg("resolved project files")

	return &Scope{
		TenantID:  tenantID,
		ProjectID: projectID,
		FileIDs:   ids,
		Filter:    ScopeFilter(tenantID, projectID, ids),
	}, nil
}

// ScopeFilter requires tenantId and projectId to match and fileId to be one of fileIDs.
func ScopeFilter(tenantID, projectID string, fileIDs []string) Filter {
	return Filter{
		AndAll: []Filter{
			{Equals: &Attribute{Key: TagTenantID, Value: tenantID}},
			{Equals: &Attribute{Key: TagProjectID, Value: projectID}},
			{In: &Attribute{Key: TagFileID, Value: fileIDs}},
		},
	}
}
