package knowledgebase

import (
	"context"
	"sync"

	"jan-server/services/knowledge-api/internal/domain/chathistory"
	"jan-server/services/knowledge-api/internal/domain/projectfile"
)

type MockProjectFiles struct {
	ListByProjectFunc func(ctx context.Context, tenantID, projectID string) ([]*projectfile.File, error)
}

func (m *MockProjectFiles) ListByProject(ctx context.Context, tenantID, projectID string) ([]*projectfile.File, error) {
	if m.ListByProjectFunc != nil {
		return m.ListByProjectFunc(ctx, tenantID, projectID)
	}
	return nil, nil
}

func projectFiles(files ...*projectfile.File) *MockProjectFiles {
	return &MockProjectFiles{
		ListByProjectFunc: func(ctx context.Context, tenantID, projectID string) ([]*projectfile.File, error) {
			return files, nil
		},
	}
}

// memoryFiles is an upserting knowledge base file table.
type memoryFiles struct {
	mu        sync.Mutex
	rows      map[string]*File
	upserts   int
	upsertErr error
}

func newMemoryFiles() *memoryFiles {
	return &memoryFiles{rows: make(map[string]*File)}
}

func (m *memoryFiles) Upsert(ctx context.Context, file *File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	copied := *file
	m.rows[file.TenantID+"/"+file.ID] = &copied
	return nil
}

func (m *memoryFiles) Delete(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, tenantID+"/"+id)
	return nil
}

func (m *memoryFiles) DeleteExpired(ctx context.Context, now int64, limit int, announce func(ctx context.Context, expired []*File) error) ([]*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expired := make([]*File, 0)
	for _, row := range m.rows {
		if len(expired) == limit {
			break
		}
		if row.TTL <= now {
			expired = append(expired, row)
		}
	}
	if len(expired) == 0 {
		return expired, nil
	}
	if err := announce(ctx, expired); err != nil {
		return nil, err
	}
	for _, row := range expired {
		delete(m.rows, row.TenantID+"/"+row.ID)
	}
	return expired, nil
}

type submitCall struct {
	Target Target
	Token  string
	Docs   []Document
}

type deleteCall struct {
	Target Target
	Token  string
	IDs    []string
}

type MockIndex struct {
	SubmitFunc func(ctx context.Context, target Target, clientToken string, docs []Document) error
	DeleteFunc func(ctx context.Context, target Target, clientToken string, ids []string) error

	Submits []submitCall
	Deletes []deleteCall
}

func (m *MockIndex) Submit(ctx context.Context, target Target, clientToken string, docs []Document) error {
	m.Submits = append(m.Submits, submitCall{Target: target, Token: clientToken, Docs: docs})
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, target, clientToken, docs)
	}
	return nil
}

func (m *MockIndex) Delete(ctx context.Context, target Target, clientToken string, ids []string) error {
	m.Deletes = append(m.Deletes, deleteCall{Target: target, Token: clientToken, IDs: ids})
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, target, clientToken, ids)
	}
	return nil
}

type MockGenerator struct {
	RetrieveAndGenerateFunc func(ctx context.Context, params GenerateParams) (*GenerateResponse, error)

	Calls []GenerateParams
}

func (m *MockGenerator) RetrieveAndGenerate(ctx context.Context, params GenerateParams) (*GenerateResponse, error) {
	m.Calls = append(m.Calls, params)
	if m.RetrieveAndGenerateFunc != nil {
		return m.RetrieveAndGenerateFunc(ctx, params)
	}
	return &GenerateResponse{SessionID: "session"}, nil
}

type rekeyCall struct {
	TenantID, UserID, Old, New string
}

type MockHistory struct {
	AppendResult bool
	Appended     []*chathistory.Message
	Rekeys       []rekeyCall
}

func (m *MockHistory) Append(ctx context.Context, msg *chathistory.Message) bool {
	m.Appended = append(m.Appended, msg)
	return m.AppendResult
}

func (m *MockHistory) Rekey(ctx context.Context, tenantID, userID, oldSessionID, newSessionID string) bool {
	m.Rekeys = append(m.Rekeys, rekeyCall{TenantID: tenantID, UserID: userID, Old: oldSessionID, New: newSessionID})
	return true
}

type MockPublisher struct {
	PublishFunc func(ctx context.Context, records []ChangeRecord) error

	Published []ChangeRecord
}

func (m *MockPublisher) Publish(ctx context.Context, records []ChangeRecord) error {
	m.Published = append(m.Published, records...)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, records)
	}
	return nil
}
