package knowledgebase

import (
	"context"
	"fmt"

	"jan-server/services/knowledge-api/internal/domain/chathistory"
	"jan-server/services/knowledge-api/internal/domain/projectfile"
)

// DocumentStatusReady marks a file that has been submitted to the index.
const DocumentStatusReady = "ready"

// File is the knowledge base side record of an ingested project file. Its TTL drives
// expiry: once it elapses the row is removed and the indexed document is reaped.
type File struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenantId"`
	UserID         string `json:"userId"`
	ProjectID      string `json:"projectId"`
	DocumentStatus string `json:"documentStatus"`
	CreatedAt      int64  `json:"createdAt"`
	TTL            int64  `json:"ttl"`
}

// FileRepository persists knowledge base files.
type FileRepository interface {
	// Upsert writes the file, replacing any row with the same (tenant, id).
	Upsert(ctx context.Context, file *File) error
	Delete(ctx context.Context, tenantID, id string) error
	// DeleteExpired removes up to limit rows whose TTL is not after now and returns them.
	// The removal commits only if announce succeeds, otherwise the rows stay in place.
	DeleteExpired(ctx context.Context, now int64, limit int, announce func(ctx context.Context, expired []*File) error) ([]*File, error)
}

// ProjectFiles resolves the files registered in a project.
type ProjectFiles interface {
	ListByProject(ctx context.Context, tenantID, projectID string) ([]*projectfile.File, error)
}

// Target addresses a knowledge base data source.
type Target struct {
	KnowledgeBaseID string
	DataSourceID    string
}

// Tags are the scoping attributes attached to every indexed document.
type Tags struct {
	UserID    string
	TenantID  string
	ProjectID string
	FileID    string
}

// Document is one submission to the index. ID is the custom document identifier.
type Document struct {
	ID        string
	SourceURI string
	Tags      Tags
}

// DocumentIndex submits and removes documents. clientToken makes a call idempotent.
type DocumentIndex interface {
	Submit(ctx context.Context, target Target, clientToken string, docs []Document) error
	Delete(ctx context.Context, target Target, clientToken string, documentIDs []string) error
}

// Attribute is a metadata key and the value it is compared against.
type Attribute struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Filter is a retrieval filter. Exactly one field is set.
type Filter struct {
	AndAll []Filter    `json:"andAll,omitempty"`
	Equals *Attribute `json:"equals,omitempty"`
	In     *Attribute `json:"in,omitempty"`
}

// GenerateParams is a retrieve and generate call. An empty SessionID asks the service
// to start a new session.
type GenerateParams struct {
	Query           string
	KnowledgeBaseID string
	ModelARN        string
	Filter          Filter
	ResultLimit     int
	SessionID       string
}

type GeneratedOutput struct {
	Text string `json:"text"`
}

type ReferenceContent struct {
	Text string `json:"text"`
}

type RetrievedReference struct {
	Content  ReferenceContent `json:"content"`
	Location map[string]any   `json:"location,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

type Citation struct {
	RetrievedReferences []RetrievedReference `json:"retrievedReferences"`
}

// GenerateResponse is the service answer, returned to callers as is.
type GenerateResponse struct {
	Output    GeneratedOutput `json:"output"`
	SessionID string          `json:"sessionId"`
	Citations []Citation      `json:"citations,omitempty"`
}

// Generator runs retrieval augmented generation against the knowledge base.
type Generator interface {
	RetrieveAndGenerate(ctx context.Context, params GenerateParams) (*GenerateResponse, error)
}

// ServiceError is a failure reported by the retrieval or indexing service.
type ServiceError struct {
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// History is the subset of the chat history ledger used by queries.
type History interface {
	Append(ctx context.Context, msg *chathistory.Message) bool
	Rekey(ctx context.Context, tenantID, userID, oldSessionID, newSessionID string) bool
}
