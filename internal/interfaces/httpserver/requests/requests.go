package requests

// CreateProjectRequest creates a project for the caller's tenant.
type CreateProjectRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// UploadFileRequest registers a file before its bytes are uploaded.
type UploadFileRequest struct {
	Filename string `json:"filename" validate:"required,filename,max=1024"`
	Filesize int64  `json:"filesize" validate:"gt=0"`
}

// IngestRequest asks for every file of a project to be placed in the knowledge base.
type IngestRequest struct {
	ProjectID string `json:"projectId"`
}

// QueryRequest is a question scoped to one project.
type QueryRequest struct {
	Query     string `json:"query"`
	ProjectID string `json:"projectId"`
	SessionID string `json:"sessionId"`
}
