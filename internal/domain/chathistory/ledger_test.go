package chathistory_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/domain/chathistory"
)

// memoryRepository keeps messages in a map and pages them like the database does.
type memoryRepository struct {
	messages  map[string]*chathistory.Message
	pages     int
	putErr    error
	pageErr   error
	deleteErr error
	batches   [][]string
}

func newMemoryRepository(msgs ...*chathistory.Message) *memoryRepository {
	r := &memoryRepository{messages: make(map[string]*chathistory.Message)}
	for _, m := range msgs {
		r.messages[m.ID] = m
	}
	return r
}

func (r *memoryRepository) Put(ctx context.Context, msg *chathistory.Message) error {
	if r.putErr != nil {
		return r.putErr
	}
	copied := *msg
	r.messages[msg.ID] = &copied
	return nil
}

func (r *memoryRepository) PutBatch(ctx context.Context, msgs []*chathistory.Message) error {
	for _, m := range msgs {
		if err := r.Put(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *memoryRepository) Page(ctx context.Context, tenantID, userID string, after *chathistory.Cursor, limit int) ([]*chathistory.Message, *chathistory.Cursor, error) {
	if r.pageErr != nil {
		return nil, nil, r.pageErr
	}
	r.pages++
	all := make([]*chathistory.Message, 0)
	for _, m := range r.messages {
		if m.TenantID == tenantID && m.UserID == userID {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp != all[j].Timestamp {
			return all[i].Timestamp < all[j].Timestamp
		}
		return all[i].ID < all[j].ID
	})
	start := 0
	if after != nil {
		for start < len(all) && (all[start].Timestamp < after.Timestamp ||
			(all[start].Timestamp == after.Timestamp && all[start].ID <= after.ID)) {
			start++
		}
	}
	end := start + limit
	if end >= len(all) {
		return all[start:], nil, nil
	}
	last := all[end-1]
	return all[start:end], &chathistory.Cursor{Timestamp: last.Timestamp, ID: last.ID}, nil
}

func (r *memoryRepository) DeleteBatch(ctx context.Context, tenantID string, ids []string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.batches = append(r.batches, ids)
	for _, id := range ids {
		delete(r.messages, id)
	}
	return nil
}

func newLedger(repo chathistory.Repository) *chathistory.Ledger {
	return chathistory.NewLedger(&config.Config{ChatHistoryPageSize: 2}, repo, zerolog.Nop())
}

func message(id, session string, ts int64) *chathistory.Message {
	return &chathistory.Message{
		ID: id, SessionID: session, TenantID: "t1", UserID: "u1", ProjectID: "p1",
		Type: chathistory.MessageTypeUser, Content: "q-" + id, Timestamp: ts,
	}
}

func TestLedger_HistoryMergesAllPages(t *testing.T) {
	repo := newMemoryRepository(
		message("e", "s1", 50),
		message("a", "s1", 10),
		message("c", "s2", 30),
		message("b", "s1", 20),
		message("d", "s2", 40),
	)
	repo.messages["other"] = &chathistory.Message{ID: "other", TenantID: "t1", UserID: "u2", Timestamp: 1}

	history := newLedger(repo).History(context.Background(), "t1", "u1")

	require.Len(t, history, 5)
	ids := make([]string, 0, len(history))
	for _, m := range history {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
	assert.Equal(t, 3, repo.pages)
}

func TestLedger_HistoryReturnsEmptyOnFailure(t *testing.T) {
	repo := newMemoryRepository()
	repo.pageErr = errors.New("connection refused")

	history := newLedger(repo).History(context.Background(), "t1", "u1")
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestLedger_AppendAssignsID(t *testing.T) {
	repo := newMemoryRepository()
	msg := &chathistory.Message{TenantID: "t1", UserID: "u1", SessionID: "s1", Type: chathistory.MessageTypeAI}

	assert.True(t, newLedger(repo).Append(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)
	assert.Contains(t, repo.messages, msg.ID)
}

func TestLedger_AppendSwallowsErrors(t *testing.T) {
	repo := newMemoryRepository()
	repo.putErr = errors.New("disk full")

	assert.False(t, newLedger(repo).Append(context.Background(), message("a", "s1", 1)))
}

func TestLedger_RekeyPreservesOtherFields(t *testing.T) {
	original := message("a", "old", 10)
	original.Sources = []chathistory.Source{{FileID: "f1", Content: "text"}}
	repo := newMemoryRepository(original, message("b", "old", 11), message("c", "other", 12))

	ok := newLedger(repo).Rekey(context.Background(), "t1", "u1", "old", "new")
	require.True(t, ok)

	assert.Equal(t, "new", repo.messages["a"].SessionID)
	assert.Equal(t, "new", repo.messages["b"].SessionID)
	assert.Equal(t, "other", repo.messages["c"].SessionID)
	assert.Equal(t, int64(10), repo.messages["a"].Timestamp)
	assert.Equal(t, "q-a", repo.messages["a"].Content)
	assert.Equal(t, "f1", repo.messages["a"].Sources[0].FileID)
	assert.Len(t, repo.messages, 3)
}

func TestLedger_RekeyWithNothingToUpdate(t *testing.T) {
	repo := newMemoryRepository(message("a", "s1", 10))

	assert.True(t, newLedger(repo).Rekey(context.Background(), "t1", "u1", "unknown", "new"))
	assert.Equal(t, "s1", repo.messages["a"].SessionID)
}

func TestLedger_DeleteAll(t *testing.T) {
	repo := newMemoryRepository(message("a", "s1", 10), message("b", "s2", 20), message("c", "s2", 30))

	require.True(t, newLedger(repo).DeleteAll(context.Background(), "t1", "u1"))
	assert.Empty(t, repo.messages)
	require.Len(t, repo.batches, 1)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, repo.batches[0])
}

func TestLedger_DeleteAllReportsFailure(t *testing.T) {
	repo := newMemoryRepository(message("a", "s1", 10))
	repo.deleteErr = errors.New("timeout")

	assert.False(t, newLedger(repo).DeleteAll(context.Background(), "t1", "u1"))
}
