package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/domain/chathistory"
	"jan-server/services/knowledge-api/internal/domain/knowledgebase"
	"jan-server/services/knowledge-api/internal/domain/project"
	"jan-server/services/knowledge-api/internal/domain/projectfile"
	"jan-server/services/knowledge-api/internal/infrastructure/auth"
	"jan-server/services/knowledge-api/internal/interfaces/httpserver/responses"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// ProjectService is the project surface used by the handlers.
type ProjectService interface {
	Create(ctx context.Context, in project.CreateInput) (*project.Project, error)
	Get(ctx context.Context, tenantID, id string) (*project.Project, error)
	List(ctx context.Context, tenantID string) ([]*project.Project, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// FileService is the project file surface used by the handlers.
type FileService interface {
	Upload(ctx context.Context, req projectfile.UploadRequest) (*projectfile.UploadTicket, error)
	Get(ctx context.Context, tenantID, id string) (*projectfile.File, error)
	ListByProject(ctx context.Context, tenantID, projectID string) ([]*projectfile.File, error)
	DownloadURL(ctx context.Context, tenantID, id string) (string, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// Ingestor places a project's files in the knowledge base.
type Ingestor interface {
	IngestProject(ctx context.Context, tenantID, userID, projectID string) (*knowledgebase.IngestionResult, error)
}

// Querier answers scoped questions.
type Querier interface {
	Query(ctx context.Context, req knowledgebase.QueryRequest) (*knowledgebase.QueryResult, error)
}

// HistoryStore reads and clears a user's chat history.
type HistoryStore interface {
	History(ctx context.Context, tenantID, userID string) []*chathistory.Message
	DeleteAll(ctx context.Context, tenantID, userID string) bool
}

// Provider wires HTTP handlers.
type Provider struct {
	Project       *ProjectHandler
	File          *FileHandler
	KnowledgeBase *KnowledgeBaseHandler
}

func NewProvider(projects ProjectService, files FileService, ingestor Ingestor, querier Querier, history HistoryStore, log zerolog.Logger) *Provider {
	return &Provider{
		Project:       NewProjectHandler(projects, log),
		File:          NewFileHandler(files, log),
		KnowledgeBase: NewKnowledgeBaseHandler(ingestor, querier, history, log),
	}
}

// respondError logs server-side failures with their platform error details and writes
// the response.
func respondError(c *gin.Context, log zerolog.Logger, err error, message string) {
	if perr := platformerrors.GetPlatformError(err); perr != nil {
		if platformerrors.ErrorTypeToHTTPStatus(perr.GetErrorType()) >= http.StatusInternalServerError {
			platformerrors.LogError(log, perr)
		}
	} else {
		log.Error().Err(err).Msg(message)
	}
	responses.HandleError(c, err, message)
}

// caller returns the authenticated principal or writes a 400 when user or tenant is missing.
func caller(c *gin.Context) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFrom(c)
	if !ok {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "User ID and Tenant ID is required", "a1f3c5e7-0b2d-4f69-8a4c-6e8b0d2f4a61")
		return auth.Principal{}, false
	}
	return principal, true
}
