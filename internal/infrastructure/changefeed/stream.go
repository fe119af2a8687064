package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/domain/knowledgebase"
)

const recordField = "record"

// RedisStream publishes change records to a Redis stream and consumes them through a
// consumer group, so every record is reaped by exactly one replica.
type RedisStream struct {
	client     redis.UniversalClient
	stream     string
	group      string
	consumer   string
	batch      int64
	block      time.Duration
	claimIdle  time.Duration
	claimEvery time.Duration
	log        zerolog.Logger
}

func NewRedisStream(client redis.UniversalClient, cfg *config.Config, log zerolog.Logger) *RedisStream {
	consumer := strings.TrimSpace(cfg.ChangeStreamConsumer)
	if consumer == "" {
		consumer, _ = os.Hostname()
	}
	if consumer == "" {
		consumer = "knowledge-api"
	}
	batch := cfg.ChangeStreamBatch
	if batch <= 0 {
		batch = 100
	}
	claimIdle := cfg.ChangeStreamClaimIdle
	if claimIdle <= 0 {
		claimIdle = time.Minute
	}
	claimEvery := cfg.ChangeStreamClaimEvery
	if claimEvery <= 0 {
		claimEvery = 30 * time.Second
	}
	return &RedisStream{
		client:     client,
		stream:     cfg.ChangeStream,
		group:      cfg.ChangeStreamGroup,
		consumer:   consumer,
		batch:      batch,
		block:      cfg.ChangeStreamBlock,
		claimIdle:  claimIdle,
		claimEvery: claimEvery,
		log:        log.With().Str("component", "changefeed-stream").Logger(),
	}
}

func (s *RedisStream) Publish(ctx context.Context, records []knowledgebase.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, record := range records {
		payload, err := encodeRecord(record)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]any{recordField: payload},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish change records: %w", err)
	}
	s.log.Debug().Int("records", len(records)).Msg("published change records")
	return nil
}

// Consume reads batches until ctx is cancelled. A batch is acknowledged once the
// processor returns a report, including reports with failed records. Batches the
// processor rejects stay pending and are reclaimed after claimIdle.
func (s *RedisStream) Consume(ctx context.Context, processor Processor) error {
	if err := s.ensureGroup(ctx); err != nil {
		return err
	}
	s.log.Info().Str("stream", s.stream).Str("group", s.group).Str("consumer", s.consumer).Msg("consuming change stream")

	s.reclaim(ctx, processor)
	lastClaim := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(lastClaim) >= s.claimEvery {
			s.reclaim(ctx, processor)
			lastClaim = time.Now()
		}
		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    s.batch,
			Block:    s.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.log.Error().Err(err).Msg("failed to read change stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			s.handle(ctx, processor, stream.Messages)
		}
	}
}

// reclaim walks the pending list once, taking over idle entries from any consumer of
// the group, this one included.
func (s *RedisStream) reclaim(ctx context.Context, processor Processor) {
	start := "0-0"
	for ctx.Err() == nil {
		messages, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.stream,
			Group:    s.group,
			Consumer: s.consumer,
			MinIdle:  s.claimIdle,
			Start:    start,
			Count:    s.batch,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error().Err(err).Msg("failed to reclaim pending change records")
			}
			return
		}
		if len(messages) > 0 {
			s.log.Info().Int("records", len(messages)).Msg("reclaimed pending change records")
			s.handle(ctx, processor, messages)
		}
		if next == "" || next == "0-0" {
			return
		}
		start = next
	}
}

func (s *RedisStream) handle(ctx context.Context, processor Processor, messages []redis.XMessage) {
	if len(messages) == 0 {
		return
	}
	records := make([]knowledgebase.ChangeRecord, 0, len(messages))
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
		record, err := decodeMessage(msg)
		if err != nil {
			s.log.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping undecodable change record")
			continue
		}
		records = append(records, record)
	}

	report, err := processor.Process(ctx, records)
	if err != nil {
		s.log.Error().Err(err).Int("records", len(records)).Msg("change batch not processed; leaving it pending")
		return
	}
	if err := s.client.XAck(ctx, s.stream, s.group, ids...).Err(); err != nil {
		s.log.Error().Err(err).Msg("failed to acknowledge change records")
		return
	}
	s.log.Info().
		Int("processed", report.Processed).
		Int("errored", report.Errored).
		Int("skipped", report.Skipped).
		Msg("handled change batch")
}

func (s *RedisStream) ensureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func encodeRecord(record knowledgebase.ChangeRecord) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode change record: %w", err)
	}
	return string(payload), nil
}

func decodeMessage(msg redis.XMessage) (knowledgebase.ChangeRecord, error) {
	var record knowledgebase.ChangeRecord
	raw, ok := msg.Values[recordField].(string)
	if !ok {
		return record, fmt.Errorf("message has no %q field", recordField)
	}
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return record, fmt.Errorf("decode change record: %w", err)
	}
	return record, nil
}
