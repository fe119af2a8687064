package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/domain/projectfile"
	"jan-server/services/knowledge-api/internal/interfaces/httpserver/requests"
	"jan-server/services/knowledge-api/internal/interfaces/httpserver/responses"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// FileHandler exposes project file endpoints.
type FileHandler struct {
	service FileService
	log     zerolog.Logger
}

func NewFileHandler(service FileService, log zerolog.Logger) *FileHandler {
	return &FileHandler{
		service: service,
		log:     log.With().Str("component", "file-handler").Logger(),
	}
}

// Upload godoc
// @Summary      Register a project file
// @Description  Records the file and returns a presigned PUT URL. Rejected once the tenant's file limit is reached.
// @Tags         files
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Project ID"
// @Param        request  body      requests.UploadFileRequest  true  "File to upload"
// @Success      200      {object}  projectfile.UploadTicket
// @Failure      400      {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/projects/{id}/files [post]
func (h *FileHandler) Upload(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	var req requests.UploadFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body", "e5a7c9d1-3f4b-4da2-8e0a-0c2f4b6d8e93")
		return
	}
	if err := requests.Validate(req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, err.Error(), "f6b8d0e2-4a5c-4e13-9d7f-1b3c5e7a9d02")
		return
	}

	ticket, err := h.service.Upload(c.Request.Context(), projectfile.UploadRequest{
		TenantID:  principal.TenantID,
		UserID:    principal.UserID,
		ProjectID: c.Param("projectId"),
		Filename:  req.Filename,
		Filesize:  req.Filesize,
	})
	if err != nil {
		respondError(c, h.log, err, "failed to register file")
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *FileHandler) List(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	files, err := h.service.ListByProject(c.Request.Context(), principal.TenantID, c.Param("projectId"))
	if err != nil {
		respondError(c, h.log, err, "failed to list project files")
		return
	}
	c.JSON(http.StatusOK, responses.FileListResponse{Files: files, Count: len(files)})
}

func (h *FileHandler) Get(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	file, err := h.service.Get(c.Request.Context(), principal.TenantID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "failed to get project file")
		return
	}
	c.JSON(http.StatusOK, file)
}

// Download godoc
// @Summary      Presigned download URL
// @Tags         files
// @Produce      json
// @Param        id   path      string  true  "File ID"
// @Success      200  {object}  responses.DownloadResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/files/{id}/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	url, err := h.service.DownloadURL(c.Request.Context(), principal.TenantID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "failed to generate download URL")
		return
	}
	c.JSON(http.StatusOK, responses.DownloadResponse{DownloadURL: url})
}

func (h *FileHandler) Delete(c *gin.Context) {
	principal, ok := caller(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), principal.TenantID, c.Param("id")); err != nil {
		respondError(c, h.log, err, "failed to delete project file")
		return
	}
	c.Status(http.StatusNoContent)
}
