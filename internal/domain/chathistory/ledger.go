package chathistory

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/infrastructure/metrics"
)

// Ledger records query turns per user. Every operation is best effort: failures are
// logged and reported through the return value, never as an error.
type Ledger struct {
	repo     Repository
	pageSize int
	log      zerolog.Logger
}

func NewLedger(cfg *config.Config, repo Repository, log zerolog.Logger) *Ledger {
	pageSize := cfg.ChatHistoryPageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Ledger{
		repo:     repo,
		pageSize: pageSize,
		log:      log.With().Str("component", "chat-history").Logger(),
	}
}

// NewID returns a new message id.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Append writes one message, assigning an id when missing.
func (l *Ledger) Append(ctx context.Context, msg *Message) bool {
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if err := l.repo.Put(ctx, msg); err != nil {
		metrics.RecordChatHistoryFailure("append")
		l.log.Error().Err(err).Str("session_id", msg.SessionID).Msg("error saving chat message")
		return false
	}
	l.log.Info().Str("session_id", msg.SessionID).Str("type", string(msg.Type)).Msg("saved chat message")
	return true
}

// History returns every message of a user in ascending timestamp order, or an empty
// list when the history cannot be read.
func (l *Ledger) History(ctx context.Context, tenantID, userID string) []*Message {
	messages, err := l.load(ctx, tenantID, userID)
	if err != nil {
		metrics.RecordChatHistoryFailure("history")
		l.log.Warn().Err(err).Str("tenant_id", tenantID).Str("user_id", userID).Msg("error retrieving chat history")
		return []*Message{}
	}
	return messages
}

func (l *Ledger) load(ctx context.Context, tenantID, userID string) ([]*Message, error) {
	messages := make([]*Message, 0)
	var cursor *Cursor
	for {
		page, next, err := l.repo.Page(ctx, tenantID, userID, cursor, l.pageSize)
		if err != nil {
			return nil, err
		}
		messages = append(messages, page...)
		if next == nil {
			break
		}
		cursor = next
	}
	l.log.Debug().Int("count", len(messages)).Str("tenant_id", tenantID).Str("user_id", userID).Msg("retrieved chat history")
	return messages, nil
}

// Rekey moves every message filed under oldSessionID to newSessionID. The user's full
// history is loaded and filtered in memory.
func (l *Ledger) Rekey(ctx context.Context, tenantID, userID, oldSessionID, newSessionID string) bool {
	messages, err := l.load(ctx, tenantID, userID)
	if err != nil {
		metrics.RecordChatHistoryFailure("rekey")
		l.log.Warn().Err(err).Msg("error updating chat history session ids")
		return false
	}

	toUpdate := make([]*Message, 0)
	for _, msg := range messages {
		if msg.SessionID == oldSessionID {
			updated := *msg
			updated.SessionID = newSessionID
			toUpdate = append(toUpdate, &updated)
		}
	}
	if len(toUpdate) == 0 {
		l.log.Info().Str("session_id", oldSessionID).Msg("no messages to re-key")
		return true
	}

	if err := l.repo.PutBatch(ctx, toUpdate); err != nil {
		metrics.RecordChatHistoryFailure("rekey")
		l.log.Warn().Err(err).Msg("error updating chat history session ids")
		return false
	}
	l.log.Info().
		Int("count", len(toUpdate)).
		Str("old_session_id", oldSessionID).
		Str("new_session_id", newSessionID).
		Msg("re-keyed chat history")
	return true
}

// DeleteMessages removes the given messages in store batches.
func (l *Ledger) DeleteMessages(ctx context.Context, tenantID string, messages []*Message) bool {
	if len(messages) == 0 {
		return true
	}
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
	}
	if err := l.repo.DeleteBatch(ctx, tenantID, ids); err != nil {
		metrics.RecordChatHistoryFailure("delete")
		l.log.Warn().Err(err).Msg("error in batch delete")
		return false
	}
	return true
}

// DeleteAll removes a user's whole chat history.
func (l *Ledger) DeleteAll(ctx context.Context, tenantID, userID string) bool {
	messages, err := l.load(ctx, tenantID, userID)
	if err != nil {
		metrics.RecordChatHistoryFailure("delete")
		l.log.Warn().Err(err).Msg("error deleting chat history")
		return false
	}
	if !l.DeleteMessages(ctx, tenantID, messages) {
		return false
	}
	l.log.Info().Int("count", len(messages)).Str("user_id", userID).Msg("deleted chat history")
	return true
}
