package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/domain/project"
	"jan-server/services/knowledge-api/internal/interfaces/httpserver/requests"
	"jan-server/services/knowledge-api/internal/interfaces/httpserver/responses"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// ProjectHandler exposes project endpoints.
type ProjectHandler struct {
	service ProjectService
	log     zerolog.Logger
}

func NewProjectHandler(service ProjectService, log zerolog.Logger) *ProjectHandler {
	return &ProjectHandler{
		service: service,
		log:     log.With().Str("component", "project-handler").Logger(),
	}
}

func (h *ProjectHandler) Create(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	var req requests.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body", "c3e5a7b9-1d2f-4b80-9c6e-8a0d2f4b6c72")
		return
	}
	if err := requests.Validate(req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, err.Error(), "d4f6b8c0-2e3a-4c91-8b5d-7f9a1c3e5b80")
		return
	}

	created, err := h.service.Create(c.Request.Context(), project.CreateInput{
		TenantID:    principal.TenantID,
		UserID:      principal.UserID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, h.log, err, "failed to create project")
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *ProjectHandler) List(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	projects, err := h.service.List(c.Request.Context(), principal.TenantID)
	if err != nil {
		respondError(c, h.log, err, "failed to list projects")
		return
	}
	c.JSON(http.StatusOK, responses.ProjectListResponse{Projects: projects, Count: len(projects)})
}

func (h *ProjectHandler) Get(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	p, err := h.service.Get(c.Request.Context(), principal.TenantID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "failed to get project")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), principal.TenantID, c.Param("id")); err != nil {
		respondError(c, h.log, err, "failed to delete project")
		return
	}
	c.Status(http.StatusNoContent)
}
