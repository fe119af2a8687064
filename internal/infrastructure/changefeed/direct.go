package changefeed

import (
	"context"

	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/domain/knowledgebase"
)

// Processor consumes change records.
type Processor interface {
	Process(ctx context.Context, records []knowledgebase.ChangeRecord) (*knowledgebase.ReapReport, error)
}

// Direct hands change records to the processor in the publishing goroutine. It is used
// when no Redis is configured.
type Direct struct {
	processor Processor
	log       zerolog.Logger
}

func NewDirect(processor Processor, log zerolog.Logger) *Direct {
	return &Direct{processor: processor, log: log.With().Str("component", "changefeed-direct").Logger()}
}

func (d *Direct) Publish(ctx context.Context, records []knowledgebase.ChangeRecord) error {
	report, err := d.processor.Process(ctx, records)
	if err != nil {
		return err
	}
	if report.Errored > 0 {
		d.log.Warn().Int("errored", report.Errored).Int("processed", report.Processed).Msg("change batch had failures")
	}
	return nil
}
