package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/knowledge-api/internal/domain/chathistory"
	"jan-server/services/knowledge-api/internal/domain/knowledgebase"
	"jan-server/services/knowledge-api/internal/domain/project"
	"jan-server/services/knowledge-api/internal/domain/projectfile"
	"jan-server/services/knowledge-api/internal/infrastructure/auth"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

type MockProjects struct {
	CreateFunc func(ctx context.Context, in project.CreateInput) (*project.Project, error)
	GetFunc    func(ctx context.Context, tenantID, id string) (*project.Project, error)
	ListFunc   func(ctx context.Context, tenantID string) ([]*project.Project, error)
	DeleteFunc func(ctx context.Context, tenantID, id string) error
}

func (m *MockProjects) Create(ctx context.Context, in project.CreateInput) (*project.Project, error) {
	return m.CreateFunc(ctx, in)
}

func (m *MockProjects) Get(ctx context.Context, tenantID, id string) (*project.Project, error) {
	return m.GetFunc(ctx, tenantID, id)
}

func (m *MockProjects) List(ctx context.Context, tenantID string) ([]*project.Project, error) {
	return m.ListFunc(ctx, tenantID)
}

func (m *MockProjects) Delete(ctx context.Context, tenantID, id string) error {
	return m.DeleteFunc(ctx, tenantID, id)
}

type MockFiles struct {
	UploadFunc        func(ctx context.Context, req projectfile.UploadRequest) (*projectfile.UploadTicket, error)
	GetFunc           func(ctx context.Context, tenantID, id string) (*projectfile.File, error)
	ListByProjectFunc func(ctx context.Context, tenantID, projectID string) ([]*projectfile.File, error)
	DownloadURLFunc   func(ctx context.Context, tenantID, id string) (string, error)
	DeleteFunc        func(ctx context.Context, tenantID, id string) error
}

func (m *MockFiles) Upload(ctx context.Context, req projectfile.UploadRequest) (*projectfile.UploadTicket, error) {
	return m.UploadFunc(ctx, req)
}

func (m *MockFiles) Get(ctx context.Context, tenantID, id string) (*projectfile.File, error) {
	return m.GetFunc(ctx, tenantID, id)
}

func (m *MockFiles) ListByProject(ctx context.Context, tenantID, projectID string) ([]*projectfile.File, error) {
	return m.ListByProjectFunc(ctx, tenantID, projectID)
}

func (m *MockFiles) DownloadURL(ctx context.Context, tenantID, id string) (string, error) {
	return m.DownloadURLFunc(ctx, tenantID, id)
}

func (m *MockFiles) Delete(ctx context.Context, tenantID, id string) error {
	return m.DeleteFunc(ctx, tenantID, id)
}

type MockKnowledgeBase struct {
	IngestProjectFunc func(ctx context.Context, tenantID, userID, projectID string) (*knowledgebase.IngestionResult, error)
	QueryFunc         func(ctx context.Context, req knowledgebase.QueryRequest) (*knowledgebase.QueryResult, error)
	HistoryFunc       func(ctx context.Context, tenantID, userID string) []*chathistory.Message
	DeleteAllFunc     func(ctx context.Context, tenantID, userID string) bool
}

func (m *MockKnowledgeBase) IngestProject(ctx context.Context, tenantID, userID, projectID string) (*knowledgebase.IngestionResult, error) {
	return m.IngestProjectFunc(ctx, tenantID, userID, projectID)
}

func (m *MockKnowledgeBase) Query(ctx context.Context, req knowledgebase.QueryRequest) (*knowledgebase.QueryResult, error) {
	return m.QueryFunc(ctx, req)
}

func (m *MockKnowledgeBase) History(ctx context.Context, tenantID, userID string) []*chathistory.Message {
	return m.HistoryFunc(ctx, tenantID, userID)
}

func (m *MockKnowledgeBase) DeleteAll(ctx context.Context, tenantID, userID string) bool {
	return m.DeleteAllFunc(ctx, tenantID, userID)
}

var alice = auth.Principal{UserID: "user-1", TenantID: "tenant-1"}

func newTestRouter(provider *Provider, principal auth.Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		auth.SetPrincipal(c, principal)
		c.Next()
	})
	router.POST("/projects", provider.Project.Create)
	router.DELETE("/projects/:id", provider.Project.Delete)
	router.POST("/projects/:projectId/files", provider.File.Upload)
	router.GET("/files/:id/download", provider.File.Download)
	router.DELETE("/files/:id", provider.File.Delete)
	router.POST("/knowledge-base/status", provider.KnowledgeBase.Status)
	router.POST("/knowledge-base/query", provider.KnowledgeBase.Query)
	router.GET("/knowledge-base/history/:id", provider.KnowledgeBase.History)
	router.DELETE("/knowledge-base/history/:id", provider.KnowledgeBase.DeleteHistory)
	return router
}

func do(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHandlers_RequireCaller(t *testing.T) {
	provider := NewProvider(&MockProjects{}, &MockFiles{}, &MockKnowledgeBase{}, &MockKnowledgeBase{}, &MockKnowledgeBase{}, zerolog.Nop())
	router := newTestRouter(provider, auth.Principal{UserID: "user-1"})

	w := do(router, http.MethodPost, "/knowledge-base/query", map[string]string{"query": "q", "projectId": "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User ID and Tenant ID is required", decode(t, w)["error"])
}

func TestProjectHandler_Create(t *testing.T) {
	projects := &MockProjects{
		CreateFunc: func(_ context.Context, in project.CreateInput) (*project.Project, error) {
			assert.Equal(t, "tenant-1", in.TenantID)
			assert.Equal(t, "user-1", in.UserID)
			return &project.Project{ID: "p1", Name: in.Name, TenantID: in.TenantID}, nil
		},
	}
	router := newTestRouter(NewProvider(projects, &MockFiles{}, nil, nil, nil, zerolog.Nop()), alice)

	w := do(router, http.MethodPost, "/projects", map[string]string{"name": "Research"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "p1", decode(t, w)["id"])

	w = do(router, http.MethodPost, "/projects", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectHandler_DeleteNotFound(t *testing.T) {
	projects := &MockProjects{
		DeleteFunc: func(ctx context.Context, _, _ string) error {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "project not found", nil, "")
		},
	}
	router := newTestRouter(NewProvider(projects, &MockFiles{}, nil, nil, nil, zerolog.Nop()), alice)

	w := do(router, http.MethodDelete, "/projects/p9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "project not found", decode(t, w)["error"])
}

func TestFileHandler_Upload(t *testing.T) {
	files := &MockFiles{
		UploadFunc: func(_ context.Context, req projectfile.UploadRequest) (*projectfile.UploadTicket, error) {
			assert.Equal(t, "p1", req.ProjectID)
			assert.Equal(t, "notes.pdf", req.Filename)
			return &projectfile.UploadTicket{UploadURL: "https://s3/put", FileID: "f1"}, nil
		},
	}
	router := newTestRouter(NewProvider(&MockProjects{}, files, nil, nil, nil, zerolog.Nop()), alice)

	w := do(router, http.MethodPost, "/projects/p1/files", map[string]any{"filename": "notes.pdf", "filesize": 42})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "https://s3/put", body["uploadUrl"])
	assert.Equal(t, "f1", body["fileId"])
}

func TestFileHandler_UploadLimit(t *testing.T) {
	files := &MockFiles{
		UploadFunc: func(ctx context.Context, _ projectfile.UploadRequest) (*projectfile.UploadTicket, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				"file limit exceeded. Maximum 2 files allowed per project.", nil, "")
		},
	}
	router := newTestRouter(NewProvider(&MockProjects{}, files, nil, nil, nil, zerolog.Nop()), alice)

	w := do(router, http.MethodPost, "/projects/p1/files", map[string]any{"filename": "a.txt", "filesize": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFileHandler_DownloadAndDelete(t *testing.T) {
	files := &MockFiles{
		DownloadURLFunc: func(_ context.Context, tenantID, id string) (string, error) {
			return "https://s3/" + tenantID + "/" + id, nil
		},
		DeleteFunc: func(context.Context, string, string) error { return nil },
	}
	router := newTestRouter(NewProvider(&MockProjects{}, files, nil, nil, nil, zerolog.Nop()), alice)

	w := do(router, http.MethodGet, "/files/f1/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://s3/tenant-1/f1", decode(t, w)["downloadUrl"])

	w = do(router, http.MethodDelete, "/files/f1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestKnowledgeBaseHandler_Status(t *testing.T) {
	kb := &MockKnowledgeBase{
		IngestProjectFunc: func(_ context.Context, tenantID, userID, projectID string) (*knowledgebase.IngestionResult, error) {
			assert.Equal(t, "p1", projectID)
			return &knowledgebase.IngestionResult{FilesIngested: 2, ItemStatus: "ready", Message: "All files are in the knowledge base"}, nil
		},
	}
	router := newTestRouter(NewProvider(&MockProjects{}, &MockFiles{}, kb, kb, kb, zerolog.Nop()), alice)

	w := do(router, http.MethodPost, "/knowledge-base/status", map[string]string{"projectId": "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decode(t, w)["itemStatus"])
}

func TestKnowledgeBaseHandler_Query(t *testing.T) {
	kb := &MockKnowledgeBase{
		QueryFunc: func(_ context.Context, req knowledgebase.QueryRequest) (*knowledgebase.QueryResult, error) {
			assert.Equal(t, "sess-1", req.SessionID)
			return &knowledgebase.QueryResult{
				Query:   req.Query,
				Results: &knowledgebase.GenerateResponse{SessionID: "sess-2"},
				Filters: knowledgebase.Filters{FileIDs: []string{"f1"}, ProjectID: req.ProjectID, TenantID: req.TenantID, UserID: req.UserID},
			}, nil
		},
	}
	router := newTestRouter(NewProvider(&MockProjects{}, &MockFiles{}, kb, kb, kb, zerolog.Nop()), alice)

	w := do(router, http.MethodPost, "/knowledge-base/query", map[string]string{"query": "what?", "projectId": "p1", "sessionId": "sess-1"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "what?", body["query"])
	assert.Equal(t, "p1", body["filters"].(map[string]any)["projectId"])
}

func TestKnowledgeBaseHandler_QueryNoFiles(t *testing.T) {
	kb := &MockKnowledgeBase{
		QueryFunc: func(ctx context.Context, _ knowledgebase.QueryRequest) (*knowledgebase.QueryResult, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "No files found for this project", nil, "")
		},
	}
	router := newTestRouter(NewProvider(&MockProjects{}, &MockFiles{}, kb, kb, kb, zerolog.Nop()), alice)

	w := do(router, http.MethodPost, "/knowledge-base/query", map[string]string{"query": "what?", "projectId": "p1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No files found for this project", decode(t, w)["error"])
}

func TestKnowledgeBaseHandler_History(t *testing.T) {
	kb := &MockKnowledgeBase{
		HistoryFunc: func(context.Context, string, string) []*chathistory.Message { return nil },
		DeleteAllFunc: func(_ context.Context, _, userID string) bool {
			return userID == "user-1"
		},
	}
	router := newTestRouter(NewProvider(&MockProjects{}, &MockFiles{}, kb, kb, kb, zerolog.Nop()), alice)

	w := do(router, http.MethodGet, "/knowledge-base/history/p1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []any{}, body["messages"])

	w = do(router, http.MethodDelete, "/knowledge-base/history/p1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Project p1 chat history deleted successfully", decode(t, w)["message"])

	other := newTestRouter(NewProvider(&MockProjects{}, &MockFiles{}, kb, kb, kb, zerolog.Nop()), auth.Principal{UserID: "user-2", TenantID: "tenant-1"})
	w = do(other, http.MethodDelete, "/knowledge-base/history/p1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
