package knowledgebase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/utils/platformerrors"
)

func expiryRecord(tenantID, id string) ChangeRecord {
	return ChangeRecord{
		EventName: EventRemove,
		Keys:      ChangeKeys{TenantID: tenantID, ID: id},
		OldImage:  &File{ID: id, TenantID: tenantID, ProjectID: "p1"},
		Actor:     Actor{Type: ActorService, PrincipalID: ExpiryPrincipal},
	}
}

func TestReaper_DeletesOnlyExpiryRemovals(t *testing.T) {
	index := &MockIndex{}
	reaper := NewExpiryReaper(testConfig(), index, zerolog.Nop())

	records := []ChangeRecord{
		expiryRecord("t1", "f1"),
		{EventName: EventRemove, Keys: ChangeKeys{TenantID: "t1", ID: "f2"}, Actor: Actor{Type: ActorCaller}},
		{EventName: EventRemove, Keys: ChangeKeys{TenantID: "t1", ID: "f3"}, Actor: Actor{Type: ActorService, PrincipalID: "someone-else"}},
		{EventName: EventInsert, Keys: ChangeKeys{TenantID: "t1", ID: "f4"}, Actor: Actor{Type: ActorService, PrincipalID: ExpiryPrincipal}},
		expiryRecord("t2", "f5"),
	}

	report, err := reaper.Process(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, index.Deletes, 2)
	assert.Equal(t, []string{"f1"}, index.Deletes[0].IDs)
	assert.Equal(t, []string{"f5"}, index.Deletes[1].IDs)
	assert.NotEqual(t, index.Deletes[0].Token, index.Deletes[1].Token)
	assert.Equal(t, Target{KnowledgeBaseID: "kb-1", DataSourceID: "ds-1"}, index.Deletes[0].Target)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 0, report.Errored)
	assert.Equal(t, 3, report.Ignored)
	require.Len(t, report.Outcomes, 5)
	assert.Equal(t, OutcomeDeleted, report.Outcomes[0].Outcome)
	assert.Equal(t, OutcomeIgnored, report.Outcomes[1].Outcome)
}

func TestReaper_IsolatesFailures(t *testing.T) {
	boom := errors.New("access denied")
	index := &MockIndex{DeleteFunc: func(ctx context.Context, target Target, clientToken string, ids []string) error {
		if ids[0] == "f2" {
			return boom
		}
		return nil
	}}
	reaper := NewExpiryReaper(testConfig(), index, zerolog.Nop())

	report, err := reaper.Process(context.Background(), []ChangeRecord{
		expiryRecord("t1", "f1"),
		expiryRecord("t1", "f2"),
		expiryRecord("t1", "f3"),
	})
	require.NoError(t, err)

	assert.Len(t, index.Deletes, 3)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, OutcomeFailed, report.Outcomes[1].Outcome)
	assert.ErrorIs(t, report.Outcomes[1].Err, boom)
	assert.Equal(t, ChangeKeys{TenantID: "t1", ID: "f2"}, report.Outcomes[1].Key)
}

func TestReaper_SkipsRecordsWithoutKeys(t *testing.T) {
	index := &MockIndex{}
	reaper := NewExpiryReaper(testConfig(), index, zerolog.Nop())

	report, err := reaper.Process(context.Background(), []ChangeRecord{
		expiryRecord("t1", ""),
		expiryRecord("", "f1"),
	})
	require.NoError(t, err)
	assert.Empty(t, index.Deletes)
	assert.Equal(t, 2, report.Skipped)
}

func TestReaper_EmptyBatchIsNoop(t *testing.T) {
	index := &MockIndex{}
	report, err := NewExpiryReaper(testConfig(), index, zerolog.Nop()).Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Empty(t, report.Outcomes)
	assert.Empty(t, index.Deletes)
}

func TestReaper_RequiresConfiguration(t *testing.T) {
	cfg := &config.Config{KnowledgeBaseID: "kb-1"}
	_, err := NewExpiryReaper(cfg, &MockIndex{}, zerolog.Nop()).Process(context.Background(), []ChangeRecord{expiryRecord("t1", "f1")})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConfiguration))
}

func TestSweeper_PublishesServiceRemovals(t *testing.T) {
	files := newMemoryFiles()
	ctx := context.Background()
	require.NoError(t, files.Upsert(ctx, &File{ID: "old1", TenantID: "t1", TTL: 100}))
	require.NoError(t, files.Upsert(ctx, &File{ID: "old2", TenantID: "t1", TTL: 200}))
	require.NoError(t, files.Upsert(ctx, &File{ID: "old3", TenantID: "t2", TTL: 200}))
	require.NoError(t, files.Upsert(ctx, &File{ID: "fresh", TenantID: "t1", TTL: 10_000}))
	publisher := &MockPublisher{}

	sweeper := NewExpirySweeper(&config.Config{ExpirySweepLimit: 2}, files, publisher, zerolog.Nop())
	sweeper.now = func() time.Time { return time.Unix(500, 0) }

	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	require.Len(t, publisher.Published, 3)
	for _, record := range publisher.Published {
		assert.True(t, record.IsExpiry())
		assert.NotNil(t, record.OldImage)
	}
	assert.Len(t, files.rows, 1)
	assert.Contains(t, files.rows, "t1/fresh")
}

func TestSweeperAndReaper_EndToEnd(t *testing.T) {
	files := newMemoryFiles()
	ctx := context.Background()
	require.NoError(t, files.Upsert(ctx, &File{ID: "f1", TenantID: "t1", TTL: 100}))
	index := &MockIndex{}
	reaper := NewExpiryReaper(testConfig(), index, zerolog.Nop())
	publisher := &MockPublisher{PublishFunc: func(ctx context.Context, records []ChangeRecord) error {
		_, err := reaper.Process(ctx, records)
		return err
	}}

	sweeper := NewExpirySweeper(testConfig(), files, publisher, zerolog.Nop())
	sweeper.now = func() time.Time { return time.Unix(500, 0) }

	_, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, index.Deletes, 1)
	assert.Equal(t, []string{"f1"}, index.Deletes[0].IDs)
}

func TestSweeper_KeepsRowsWhenPublishFails(t *testing.T) {
	files := newMemoryFiles()
	ctx := context.Background()
	require.NoError(t, files.Upsert(ctx, &File{ID: "f1", TenantID: "t1", ProjectID: "p1", TTL: 100}))
	index := &MockIndex{}
	reaper := NewExpiryReaper(testConfig(), index, zerolog.Nop())
	failures := 1
	publisher := &MockPublisher{PublishFunc: func(ctx context.Context, records []ChangeRecord) error {
		if failures > 0 {
			failures--
			return errors.New("redis down")
		}
		_, err := reaper.Process(ctx, records)
		return err
	}}

	sweeper := NewExpirySweeper(testConfig(), files, publisher, zerolog.Nop())
	sweeper.now = func() time.Time { return time.Unix(500, 0) }

	removed, err := sweeper.Sweep(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, removed)
	assert.Contains(t, files.rows, "t1/f1")
	assert.Empty(t, index.Deletes)

	removed, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, files.rows)
	require.Len(t, index.Deletes, 1)
	assert.Equal(t, []string{"f1"}, index.Deletes[0].IDs)
}
