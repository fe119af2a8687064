package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/domain/chathistory"
	"jan-server/services/knowledge-api/internal/domain/knowledgebase"
	"jan-server/services/knowledge-api/internal/interfaces/httpserver/requests"
	"jan-server/services/knowledge-api/internal/interfaces/httpserver/responses"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// KnowledgeBaseHandler exposes ingestion, query and chat history endpoints.
type KnowledgeBaseHandler struct {
	ingestor Ingestor
	querier  Querier
	history  HistoryStore
	log      zerolog.Logger
}

func NewKnowledgeBaseHandler(ingestor Ingestor, querier Querier, history HistoryStore, log zerolog.Logger) *KnowledgeBaseHandler {
	return &KnowledgeBaseHandler{
		ingestor: ingestor,
		querier:  querier,
		history:  history,
		log:      log.With().Str("component", "knowledgebase-handler").Logger(),
	}
}

// Status godoc
// @Summary      Ingest project files
// @Description  Ingests every file of the project into the knowledge base and reports its state.
// @Tags         knowledge-base
// @Accept       json
// @Produce      json
// @Param        request  body      requests.IngestRequest  true  "Project to ingest"
// @Success      200      {object}  knowledgebase.IngestionResult
// @Failure      400      {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/knowledge-base/status [post]
func (h *KnowledgeBaseHandler) Status(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	var req requests.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body", "a7c9e1f3-5b6d-4fc4-9a2c-2e4b6d8f0a15")
		return
	}

	result, err := h.ingestor.IngestProject(c.Request.Context(), principal.TenantID, principal.UserID, req.ProjectID)
	if err != nil {
		respondError(c, h.log, err, "failed to ingest project files")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Query godoc
// @Summary      Query a project's files
// @Description  Answers a question using only the files of one project and records the turn in the chat history.
// @Tags         knowledge-base
// @Accept       json
// @Produce      json
// @Param        request  body      requests.QueryRequest  true  "Question"
// @Success      200      {object}  knowledgebase.QueryResult
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      404      {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/knowledge-base/query [post]
func (h *KnowledgeBaseHandler) Query(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	var req requests.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body", "c9e1a3b5-7d8f-4e06-8c4e-4a6d8f0b2c37")
		return
	}

	result, err := h.querier.Query(c.Request.Context(), knowledgebase.QueryRequest{
		TenantID:  principal.TenantID,
		UserID:    principal.UserID,
		ProjectID: req.ProjectID,
		Query:     req.Query,
		SessionID: req.SessionID,
	})
	if err != nil {
		respondError(c, h.log, err, "failed to query knowledge base")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *KnowledgeBaseHandler) History(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	messages := h.history.History(c.Request.Context(), principal.TenantID, principal.UserID)
	if messages == nil {
		messages = []*chathistory.Message{}
	}
	c.JSON(http.StatusOK, responses.HistoryResponse{Messages: messages, Count: len(messages)})
}

func (h *KnowledgeBaseHandler) DeleteHistory(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	projectID := c.Param("id")
	if !h.history.DeleteAll(c.Request.Context(), principal.TenantID, principal.UserID) {
		responses.HandleNewError(c, platformerrors.ErrorTypeNotFound, "Project chat history not found or not authorized", "e1a3c5d7-9f0b-4a28-9e6a-6c8f0b2d4e59")
		return
	}
	c.JSON(http.StatusOK, responses.MessageResponse{
		Message: fmt.Sprintf("Project %s chat history deleted successfully", projectID),
	})
}
