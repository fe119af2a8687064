package knowledgebase

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/infrastructure/metrics"
	"jan-server/services/knowledge-api/internal/infrastructure/observability"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

// Outcome is the result of handling one change record.
type Outcome string

const (
	OutcomeDeleted Outcome = "deleted"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeIgnored Outcome = "ignored"
)

// RecordOutcome tags one change record with what the reaper did with it.
type RecordOutcome struct {
	Key     ChangeKeys
	Outcome Outcome
	Err     error
}

// ReapReport aggregates a batch. Processed counts deleted documents.
type ReapReport struct {
	Processed int
	Errored   int
	Skipped   int
	Ignored   int
	Outcomes  []RecordOutcome
}

// ExpiryReaper removes the indexed documents of expired knowledge base files.
type ExpiryReaper struct {
	target   Target
	index    DocumentIndex
	log      zerolog.Logger
	newToken func() string
}

func NewExpiryReaper(cfg *config.Config, index DocumentIndex, log zerolog.Logger) *ExpiryReaper {
	return &ExpiryReaper{
		target:   Target{KnowledgeBaseID: cfg.KnowledgeBaseID, DataSourceID: cfg.DataSourceID},
		index:    index,
		log:      log.With().Str("component", "kb-reaper").Logger(),
		newToken: uuid.NewString,
	}
}

// Process handles a batch of change records. Only expiry removals issue a document
// deletion, and a failing record never stops the rest of the batch. The error is
// reserved for a missing knowledge base configuration.
func (r *ExpiryReaper) Process(ctx context.Context, records []ChangeRecord) (*ReapReport, error) {
	if r.target.KnowledgeBaseID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConfiguration,
			"Knowledge base ID not configured", nil, "1c3e5a7b-9d0f-4e2a-8c4e-6a8c0e2b4d95")
	}
	if r.target.DataSourceID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConfiguration,
			"Data source ID not configured", nil, "3e5a7b9d-1f2a-4c4b-9e6a-8c0e2b4d6f17")
	}

	report := &ReapReport{Outcomes: make([]RecordOutcome, 0, len(records))}
	if len(records) == 0 {
		r.log.Info().Msg("no records to process")
		return report, nil
	}

	ctx, span := observability.StartSpan(ctx, "knowledgebase.reap", attribute.Int("kb.records", len(records)))
	defer span.End()

	for _, record := range records {
		outcome := r.handle(ctx, record)
		report.Outcomes = append(report.Outcomes, outcome)
		metrics.RecordReaperOutcome(string(outcome.Outcome))
		switch outcome.Outcome {
		case OutcomeDeleted:
			report.Processed++
		case OutcomeFailed:
			report.Errored++
			observability.RecordError(span, outcome.Err)
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeIgnored:
			report.Ignored++
		}
	}

	r.log.Info().
		Int("processed", report.Processed).
		Int("errored", report.Errored).
		Int("skipped", report.Skipped).
		Msg("processed expiry events")
	return report, nil
}

func (r *ExpiryReaper) handle(ctx context.Context, record ChangeRecord) RecordOutcome {
	out := RecordOutcome{Key: record.Keys}
	if record.EventName != EventRemove {
		r.log.Debug().Str("event", string(record.EventName)).Msg("skipping non-REMOVE event")
		out.Outcome = OutcomeIgnored
		return out
	}
	if !record.IsExpiry() {
		r.log.Debug().
			Str("actor", string(record.Actor.Type)).
			Str("principal", record.Actor.PrincipalID).
			Msg("skipping non-expiry REMOVE event")
		out.Outcome = OutcomeIgnored
		return out
	}
	if record.Keys.ID == "" {
		r.log.Warn().Msg("file id not found in record")
		out.Outcome = OutcomeSkipped
		return out
	}
	if record.Keys.TenantID == "" {
		r.log.Warn().Str("file_id", record.Keys.ID).Msg("tenant id not found in record")
		out.Outcome = OutcomeSkipped
		return out
	}

	projectID := ""
	if record.OldImage != nil {
		projectID = record.OldImage.ProjectID
	}
	r.log.Info().
		Str("file_id", record.Keys.ID).
		Str("tenant_id", record.Keys.TenantID).
		Str("project_id", projectID).
		Msg("processing expired file")

	if err := r.index.Delete(ctx, r.target, r.newToken(), []string{record.Keys.ID}); err != nil {
		metrics.RecordDocument("expire", "error")
		r.log.Error().Err(err).Str("file_id", record.Keys.ID).Msg("error deleting document from knowledge base")
		out.Outcome = OutcomeFailed
		out.Err = err
		return out
	}
	metrics.RecordDocument("expire", "success")
	r.log.Info().Str("file_id", record.Keys.ID).Msg("deleted document from knowledge base")
	out.Outcome = OutcomeDeleted
	return out
}
