package knowledgebase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/config"
)

// ExpirySweeper deletes knowledge base files whose TTL elapsed and announces every
// removal as a service initiated change.
type ExpirySweeper struct {
	files     FileRepository
	publisher ChangePublisher
	limit     int
	log       zerolog.Logger
	now       func() time.Time
}

func NewExpirySweeper(cfg *config.Config, files FileRepository, publisher ChangePublisher, log zerolog.Logger) *ExpirySweeper {
	limit := cfg.ExpirySweepLimit
	if limit <= 0 {
		limit = 500
	}
	return &ExpirySweeper{
		files:     files,
		publisher: publisher,
		limit:     limit,
		log:       log.With().Str("component", "kb-expiry").Logger(),
		now:       time.Now,
	}
}

// Sweep drains expired rows batch by batch and returns how many were removed.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().Unix()
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		expired, err := s.files.DeleteExpired(ctx, now, s.limit, s.announce)
		if err != nil {
			return total, err
		}
		if len(expired) == 0 {
			break
		}
		total += len(expired)
		if len(expired) < s.limit {
			break
		}
	}
	if total > 0 {
		s.log.Info().Int("expired", total).Msg("swept expired knowledge base files")
	}
	return total, nil
}

// announce publishes one service removal per expired row. A failure rolls the batch back.
func (s *ExpirySweeper) announce(ctx context.Context, expired []*File) error {
	records := make([]ChangeRecord, 0, len(expired))
	for _, f := range expired {
		records = append(records, ChangeRecord{
			EventName: EventRemove,
			Keys:      ChangeKeys{TenantID: f.TenantID, ID: f.ID},
			OldImage:  f,
			Actor:     Actor{Type: ActorService, PrincipalID: ExpiryPrincipal},
		})
	}
	if err := s.publisher.Publish(ctx, records); err != nil {
		s.log.Error().Err(err).Int("records", len(records)).Msg("failed to publish expired files; keeping rows")
		return err
	}
	return nil
}
