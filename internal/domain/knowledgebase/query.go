package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/domain/chathistory"
	"jan-server/services/knowledge-api/internal/infrastructure/metrics"
	"jan-server/services/knowledge-api/internal/infrastructure/observability"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// QueryRequest is a natural language question about one project's files.
type QueryRequest struct {
	TenantID  string
	UserID    string
	ProjectID string
	Query     string
	SessionID string
}

// Filters echoes the scope a query ran with.
type Filters struct {
	FileIDs   []string `json:"fileIds"`
	ProjectID string   `json:"projectId"`
	TenantID  string   `json:"tenantId"`
	UserID    string   `json:"userId"`
}

// QueryResult is returned to the caller.
type QueryResult struct {
	Query   string            `json:"query"`
	Results *GenerateResponse `json:"results"`
	Filters Filters           `json:"filters"`
}

// attemptResult is the outcome of the attempt and recover steps. SessionChanged is set
// when the supplied session was dropped and the response carries a new one.
type attemptResult struct {
	Response       *GenerateResponse
	SessionChanged bool
}

// QueryExecutor runs scoped queries and recovers once from an invalidated session.
type QueryExecutor struct {
	knowledgeBaseID string
	modelARN        string
	resultLimit     int
	scoper          *Scoper
	generator       Generator
	history         History
	log             zerolog.Logger
	now             func() time.Time
}

func NewQueryExecutor(cfg *config.Config, scoper *Scoper, generator Generator, history History, log zerolog.Logger) *QueryExecutor {
	limit := cfg.ResultLimit
	if limit <= 0 {
		limit = 5
	}
	return &QueryExecutor{
		knowledgeBaseID: cfg.KnowledgeBaseID,
		modelARN:        cfg.ModelARN,
		resultLimit:     limit,
		scoper:          scoper,
		generator:       generator,
		history:         history,
		log:             log.With().Str("component", "kb-query").Logger(),
		now:             time.Now,
	}
}

// Query answers req from the project's files and records the turn in the chat history.
func (e *QueryExecutor) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	started := e.now()
	ctx, span := observability.StartSpan(ctx, "knowledgebase.query", observability.ScopeAttributes(req.TenantID, req.ProjectID)...)
	defer span.End()

	if strings.TrimSpace(req.Query) == "" {
		metrics.RecordQuery("invalid", 0)
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"Query text is required", nil, "0e2b4d6f-8a9c-4f5b-a3e5-7a9c1e3b5d06")
	}
	if e.knowledgeBaseID == "" {
		metrics.RecordQuery("misconfigured", 0)
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConfiguration,
			"Knowledge base ID not configured", nil, "b4d6f8a0-2c3e-4a7d-95b7-9c1e3b5d7f28")
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		metrics.RecordQuery("invalid", 0)
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"Project ID is required", nil, "d6f8a0c2-4e5b-4c9f-b7d9-1e3b5d7f9a40")
	}

	scope, err := e.scoper.Scope(ctx, req.TenantID, req.ProjectID)
	if err != nil {
		metrics.RecordQuery("no_files", 0)
		observability.RecordError(span, err)
		return nil, err
	}

	params := GenerateParams{
		Query:           req.Query,
		KnowledgeBaseID: e.knowledgeBaseID,
		ModelARN:        e.modelARN,
		Filter:          scope.Filter,
		ResultLimit:     e.resultLimit,
	}
	suppliedSession := strings.TrimSpace(req.SessionID)
	if suppliedSession != "" {
		params.SessionID = suppliedSession
	}

	result, err := e.attempt(ctx, params)
	if err != nil {
		metrics.RecordQuery("error", e.now().Sub(started).Seconds())
		observability.RecordError(span, err)
		e.log.Warn().Err(err).Msg("error querying knowledge base")
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal,
			fmt.Sprintf("Error querying knowledge base: %s", err.Error()), err, "f8a0c2e4-6b7d-4eb1-89fb-3b5d7f9a1c62")
	}

	response := result.Response
	if result.SessionChanged {
		observability.AddRetryEvent(span, 1, "session_invalidated")
		e.log.Info().Str("old_session_id", suppliedSession).Str("new_session_id", response.SessionID).Msg("session id changed")
		if !e.history.Rekey(ctx, req.TenantID, req.UserID, suppliedSession, response.SessionID) {
			e.log.Warn().Str("new_session_id", response.SessionID).Msg("failed to update chat history with new session id")
		}
	}

	sources := ExtractSources(response)
	timestamp := e.now().Unix()
	e.history.Append(ctx, &chathistory.Message{
		SessionID: response.SessionID,
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Type:      chathistory.MessageTypeUser,
		Content:   req.Query,
		Timestamp: timestamp,
	})
	e.history.Append(ctx, &chathistory.Message{
		SessionID: response.SessionID,
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Type:      chathistory.MessageTypeAI,
		Content:   response.Output.Text,
		Timestamp: timestamp + 1,
		Sources:   sources,
	})

	metrics.RecordQuery("success", e.now().Sub(started).Seconds())
	e.log.Info().Str("session_id", response.SessionID).Int("sources", len(sources)).Msg("knowledge base query successful")

	return &QueryResult{
		Query:   req.Query,
		Results: response,
		Filters: Filters{
			FileIDs:   scope.FileIDs,
			ProjectID: req.ProjectID,
			TenantID:  req.TenantID,
			UserID:    req.UserID,
		},
	}, nil
}

// attempt issues the call with the parameters as given and hands an invalidated
// session over to recoverSession.
func (e *QueryExecutor) attempt(ctx context.Context, params GenerateParams) (*attemptResult, error) {
	response, err := e.generate(ctx, params)
	if err == nil {
		return &attemptResult{Response: response}, nil
	}
	if !isSessionNotFound(err) {
		return nil, err
	}
	if params.SessionID == "" {
		e.log.Warn().Err(err).Msg("invalid session id error but no session id in parameters")
		return nil, err
	}
	e.log.Warn().Err(err).Msg("invalid session id, retrying without session id")
	return e.recoverSession(ctx, params)
}

// recoverSession retries once without a session id. Its failure is final.
func (e *QueryExecutor) recoverSession(ctx context.Context, params GenerateParams) (*attemptResult, error) {
	e.log.Info().Str("session_id", params.SessionID).Msg("removed invalid session id")
	params.SessionID = ""
	metrics.RecordSessionRecovery()

	response, err := e.generate(ctx, params)
	if err != nil {
		return nil, err
	}
	return &attemptResult{Response: response, SessionChanged: true}, nil
}

func (e *QueryExecutor) generate(ctx context.Context, params GenerateParams) (*GenerateResponse, error) {
	response, err := e.generator.RetrieveAndGenerate(ctx, params)
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, &ServiceError{Code: "EmptyResponse", Message: "retrieve and generate returned no response"}
	}
	return response, nil
}

func isSessionNotFound(err error) bool {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	return svcErr.Code == "ValidationException" &&
		strings.Contains(svcErr.Message, "is not valid") &&
		strings.Contains(svcErr.Message, "Session with Id")
}

// ExtractSources flattens the retrieved references of every citation.
func ExtractSources(response *GenerateResponse) []chathistory.Source {
	sources := make([]chathistory.Source, 0)
	for _, citation := range response.Citations {
		for _, ref := range citation.RetrievedReferences {
			fileID, _ := ref.Metadata[TagFileID].(string)
			sources = append(sources, chathistory.Source{
				FileID:   fileID,
				Content:  ref.Content.Text,
				Metadata: ref.Metadata,
			})
		}
	}
	return sources
}
