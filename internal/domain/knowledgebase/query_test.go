package knowledgebase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/knowledge-api/internal/domain/chathistory"
	"jan-server/services/knowledge-api/internal/domain/projectfile"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

var errInvalidSession = &ServiceError{
	Code:    "ValidationException",
	Message: "Session with Id abc is not valid. Please check and try again.",
}

func newExecutor(files ProjectFiles, gen Generator, history History) *QueryExecutor {
	e := NewQueryExecutor(testConfig(), NewScoper(files, zerolog.Nop()), gen, history, zerolog.Nop())
	e.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return e
}

func twoFiles() ProjectFiles {
	return projectFiles(&projectfile.File{ID: "f1"}, &projectfile.File{ID: "f2"})
}

func answer(session string) *GenerateResponse {
	return &GenerateResponse{
		Output:    GeneratedOutput{Text: "the answer"},
		SessionID: session,
		Citations: []Citation{
			{RetrievedReferences: []RetrievedReference{
				{Content: ReferenceContent{Text: "chunk one"}, Metadata: map[string]any{"fileId": "f1", "page": 2.0}},
				{Content: ReferenceContent{Text: "chunk two"}, Metadata: map[string]any{"fileId": "f2"}},
			}},
			{RetrievedReferences: []RetrievedReference{
				{Content: ReferenceContent{Text: "chunk three"}},
			}},
		},
	}
}

func TestScoper_BuildsTenantProjectFileFilter(t *testing.T) {
	scope, err := NewScoper(twoFiles(), zerolog.Nop()).Scope(context.Background(), "t1", "p1")
	require.NoError(t, err)

	assert.Equal(t, []string{"f1", "f2"}, scope.FileIDs)
	require.Len(t, scope.Filter.AndAll, 3)
	assert.Equal(t, &Attribute{Key: "tenantId", Value: "t1"}, scope.Filter.AndAll[0].Equals)
	assert.Equal(t, &Attribute{Key: "projectId", Value: "p1"}, scope.Filter.AndAll[1].Equals)
	assert.Equal(t, &Attribute{Key: "fileId", Value: []string{"f1", "f2"}}, scope.Filter.AndAll[2].In)
}

func TestQuery_AppliesScopeFilter(t *testing.T) {
	gen := &MockGenerator{RetrieveAndGenerateFunc: func(ctx context.Context, params GenerateParams) (*GenerateResponse, error) {
		return answer("s-new"), nil
	}}
	history := &MockHistory{AppendResult: true}

	result, err := newExecutor(twoFiles(), gen, history).Query(context.Background(), QueryRequest{
		TenantID: "t1", UserID: "u1", ProjectID: "p1", Query: "what?",
	})
	require.NoError(t, err)

	require.Len(t, gen.Calls, 1)
	call := gen.Calls[0]
	assert.Equal(t, ScopeFilter("t1", "p1", []string{"f1", "f2"}), call.Filter)
	assert.Equal(t, "kb-1", call.KnowledgeBaseID)
	assert.Equal(t, "arn:model", call.ModelARN)
	assert.Equal(t, 5, call.ResultLimit)
	assert.Empty(t, call.SessionID)

	assert.Equal(t, "what?", result.Query)
	assert.Equal(t, Filters{FileIDs: []string{"f1", "f2"}, ProjectID: "p1", TenantID: "t1", UserID: "u1"}, result.Filters)
	assert.Equal(t, "s-new", result.Results.SessionID)
}

func TestQuery_NoFilesRejectedBeforeServiceCall(t *testing.T) {
	gen := &MockGenerator{}
	history := &MockHistory{}

	_, err := newExecutor(projectFiles(), gen, history).Query(context.Background(), QueryRequest{
		TenantID: "t1", UserID: "u1", ProjectID: "p1", Query: "what?",
	})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
	assert.Empty(t, gen.Calls)
	assert.Empty(t, history.Appended)
}

func TestQuery_CallerAndConfigurationErrors(t *testing.T) {
	tests := []struct {
		name     string
		req      QueryRequest
		noKB     bool
		wantType platformerrors.ErrorType
	}{
		{name: "empty query", req: QueryRequest{ProjectID: "p1", Query: "  "}, wantType: platformerrors.ErrorTypeValidation},
		{name: "missing project", req: QueryRequest{Query: "q"}, wantType: platformerrors.ErrorTypeValidation},
		{name: "missing knowledge base", req: QueryRequest{ProjectID: "p1", Query: "q"}, noKB: true, wantType: platformerrors.ErrorTypeConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &MockGenerator{}
			e := newExecutor(twoFiles(), gen, &MockHistory{})
			if tt.noKB {
				e.knowledgeBaseID = ""
			}
			_, err := e.Query(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, platformerrors.IsErrorType(err, tt.wantType))
			assert.Empty(t, gen.Calls)
		})
	}
}

func TestQuery_RecoversInvalidSessionAndRekeysHistory(t *testing.T) {
	gen := &MockGenerator{RetrieveAndGenerateFunc: func(ctx context.Context, params GenerateParams) (*GenerateResponse, error) {
		if params.SessionID != "" {
			return nil, errInvalidSession
		}
		return answer("s-new"), nil
	}}
	history := &MockHistory{AppendResult: true}

	result, err := newExecutor(twoFiles(), gen, history).Query(context.Background(), QueryRequest{
		TenantID: "t1", UserID: "u1", ProjectID: "p1", Query: "what?", SessionID: "s-old",
	})
	require.NoError(t, err)

	require.Len(t, gen.Calls, 2)
	assert.Equal(t, "s-old", gen.Calls[0].SessionID)
	assert.Empty(t, gen.Calls[1].SessionID)
	assert.Equal(t, gen.Calls[0].Filter, gen.Calls[1].Filter)

	require.Len(t, history.Rekeys, 1)
	assert.Equal(t, rekeyCall{TenantID: "t1", UserID: "u1", Old: "s-old", New: "s-new"}, history.Rekeys[0])

	require.Len(t, history.Appended, 2)
	for _, msg := range history.Appended {
		assert.Equal(t, "s-new", msg.SessionID)
	}
	assert.Equal(t, "s-new", result.Results.SessionID)
}

func TestQuery_SecondFailurePropagates(t *testing.T) {
	gen := &MockGenerator{RetrieveAndGenerateFunc: func(ctx context.Context, params GenerateParams) (*GenerateResponse, error) {
		if params.SessionID != "" {
			return nil, errInvalidSession
		}
		return nil, &ServiceError{Code: "ThrottlingException", Message: "slow down"}
	}}
	history := &MockHistory{AppendResult: true}

	_, err := newExecutor(twoFiles(), gen, history).Query(context.Background(), QueryRequest{
		TenantID: "t1", UserID: "u1", ProjectID: "p1", Query: "what?", SessionID: "s-old",
	})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
	assert.Contains(t, err.Error(), "slow down")
	assert.Len(t, gen.Calls, 2)
	assert.Empty(t, history.Rekeys)
	assert.Empty(t, history.Appended)
}

func TestQuery_InvalidSessionTwiceIsNotRetriedAgain(t *testing.T) {
	gen := &MockGenerator{RetrieveAndGenerateFunc: func(ctx context.Context, params GenerateParams) (*GenerateResponse, error) {
		return nil, errInvalidSession
	}}

	_, err := newExecutor(twoFiles(), gen, &MockHistory{}).Query(context.Background(), QueryRequest{
		TenantID: "t1", UserID: "u1", ProjectID: "p1", Query: "what?", SessionID: "s-old",
	})
	require.Error(t, err)
	assert.Len(t, gen.Calls, 2)
}

func TestQuery_OtherFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name        string
		session     string
		wantSession string
		err         error
	}{
		{name: "generic failure", session: "s-old", wantSession: "s-old", err: errors.New("connection reset")},
		{name: "other validation error", session: "s-old", wantSession: "s-old", err: &ServiceError{Code: "ValidationException", Message: "query too long"}},
		{name: "invalid session without supplied id", session: "", err: errInvalidSession},
		{name: "blank session id", session: "   ", err: errInvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &MockGenerator{RetrieveAndGenerateFunc: func(ctx context.Context, params GenerateParams) (*GenerateResponse, error) {
				return nil, tt.err
			}}
			_, err := newExecutor(twoFiles(), gen, &MockHistory{}).Query(context.Background(), QueryRequest{
				TenantID: "t1", UserID: "u1", ProjectID: "p1", Query: "what?", SessionID: tt.session,
			})
			require.Error(t, err)
			assert.Len(t, gen.Calls, 1)
			assert.Equal(t, tt.wantSession, gen.Calls[0].SessionID)
		})
	}
}

func TestQuery_RecordsOrderedTurn(t *testing.T) {
	gen := &MockGenerator{RetrieveAndGenerateFunc: func(ctx context.Context, params GenerateParams) (*GenerateResponse, error) {
		return answer("s1"), nil
	}}
	history := &MockHistory{AppendResult: false}

	_, err := newExecutor(twoFiles(), gen, history).Query(context.Background(), QueryRequest{
		TenantID: "t1", UserID: "u1", ProjectID: "p1", Query: "what?", SessionID: "s1",
	})
	require.NoError(t, err, "chat history failures never fail the query")

	require.Len(t, history.Appended, 2)
	user, ai := history.Appended[0], history.Appended[1]
	assert.Equal(t, chathistory.MessageTypeUser, user.Type)
	assert.Equal(t, "what?", user.Content)
	assert.Empty(t, user.Sources)
	assert.Equal(t, chathistory.MessageTypeAI, ai.Type)
	assert.Equal(t, "the answer", ai.Content)
	assert.Greater(t, ai.Timestamp, user.Timestamp)
	assert.Equal(t, "p1", ai.ProjectID)

	require.Len(t, ai.Sources, 3)
	assert.Equal(t, "f1", ai.Sources[0].FileID)
	assert.Equal(t, "chunk one", ai.Sources[0].Content)
	assert.Equal(t, 2.0, ai.Sources[0].Metadata["page"])
	assert.Equal(t, "", ai.Sources[2].FileID)
}

func TestQuery_EmptyGeneratorResponseIsAnError(t *testing.T) {
	gen := &MockGenerator{RetrieveAndGenerateFunc: func(ctx context.Context, params GenerateParams) (*GenerateResponse, error) {
		return nil, nil
	}}
	history := &MockHistory{AppendResult: true}

	var result *QueryResult
	var err error
	require.NotPanics(t, func() {
		result, err = newExecutor(twoFiles(), gen, history).Query(context.Background(), QueryRequest{
			TenantID: "t1", UserID: "u1", ProjectID: "p1", Query: "what?",
		})
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "EmptyResponse", svcErr.Code)
	assert.Empty(t, history.Appended)
}
