package responses

import (
	"jan-server/services/knowledge-api/internal/domain/chathistory"
	"jan-server/services/knowledge-api/internal/domain/project"
	"jan-server/services/knowledge-api/internal/domain/projectfile"
)

type ProjectListResponse struct {
	Projects []*project.Project `json:"projects"`
	Count    int                `json:"count"`
}

type FileListResponse struct {
	Files []*projectfile.File `json:"files"`
	Count int                 `json:"count"`
}

type DownloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
}

type HistoryResponse struct {
	Messages []*chathistory.Message `json:"messages"`
	Count    int                    `json:"count"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
