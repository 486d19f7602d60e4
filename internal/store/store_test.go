package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inputsentry/internal/verdict"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "verdicts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeVerdict(ms int64, confidence float64, reasons ...string) verdict.Verdict {
	return verdict.Verdict{
		Timestamp:  time.UnixMilli(ms),
		Suspicious: len(reasons) > 0,
		Confidence: confidence,
		Reasons:    reasons,
		Stats: verdict.WindowStats{
			TotalEvents:     20,
			KeyboardEvents:  18,
			MouseEvents:     2,
			UniqueTargets:   1,
			TimeSpan:        0.19,
			EventsPerSecond: 105.26,
		},
	}
}

// =============================================================================
// Open / migrations
// =============================================================================

func TestOpenAndClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestOpenCreatesDirectory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "subdir", "nested", "test.db"))
	require.NoError(t, err)
	defer s.Close()
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Insert(context.Background(), "a", makeVerdict(1000, 0.3, "x"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestMigrationsRollBack(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, MigrateDB(db))
	current, latest, err := SchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, latest, current)

	require.NoError(t, RollbackMigration(db))
	current, _, err = SchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, latest-1, current)

	require.NoError(t, MigrateDB(db))
	current, _, err = SchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, latest, current)
}

// =============================================================================
// Insert / Recent
// =============================================================================

func TestInsertAndRecentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v := makeVerdict(1700000000123, 1.15, "Impossibly fast typing: 1212.1 WPM", "Mechanical typing rhythm detected")
	v.Fired = []string{"speed", "rhythm"}

	id, err := s.Insert(ctx, "session-1", v)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	recs, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	got := recs[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "session-1", got.Session)
	assert.True(t, got.Verdict.Timestamp.Equal(v.Timestamp))
	assert.True(t, got.Verdict.Suspicious)
	assert.InDelta(t, 1.15, got.Verdict.Confidence, 1e-9)
	assert.Equal(t, v.Reasons, got.Verdict.Reasons)
	assert.Equal(t, v.Fired, got.Verdict.Fired)
	assert.Equal(t, v.Stats, got.Verdict.Stats)
}

func TestRecentIsNewestFirstAndLimited(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		_, err := s.Insert(ctx, "s", makeVerdict(i*1000, 0.1*float64(i), "r"))
		require.NoError(t, err)
	}

	recs, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(5000), recs[0].Verdict.Timestamp.UnixMilli())
	assert.Equal(t, int64(4000), recs[1].Verdict.Timestamp.UnixMilli())
	assert.Equal(t, int64(3000), recs[2].Verdict.Timestamp.UnixMilli())

	none, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCleanVerdictHasNoReasons(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "s", makeVerdict(1000, 0))
	require.NoError(t, err)

	recs, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Verdict.Suspicious)
	assert.Empty(t, recs[0].Verdict.Reasons)
	assert.Empty(t, recs[0].Verdict.Fired)
}

func TestReportUsesCurrentSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.SetSession("first")
	require.NoError(t, s.Report(ctx, makeVerdict(1000, 0.3, "a")))
	s.SetSession("second")
	require.NoError(t, s.Report(ctx, makeVerdict(2000, 0.3, "b")))

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "second", recs[0].Session)
	assert.Equal(t, "first", recs[1].Session)
}

func TestClosedStoreErrors(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	_, err := s.Insert(ctx, "s", makeVerdict(1, 0))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Recent(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Summary(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Prune(ctx, time.Now())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Ping(ctx), ErrClosed)
}

func TestStoreAfterCloseReturnsErrClosed(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "verdicts.db"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, s.Report(ctx, makeVerdict(1, 0.3, "x")), ErrClosed)
	_, err = s.Recent(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Summary(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Prune(ctx, time.Now())
	assert.ErrorIs(t, err, ErrClosed)
}

// =============================================================================
// Summary / Prune
// =============================================================================

func TestSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.True(t, empty.First.IsZero())

	for _, v := range []verdict.Verdict{
		makeVerdict(1000, 0),
		makeVerdict(2000, 0.25, "overlay"),
		makeVerdict(3000, 0.55, "speed"),
		makeVerdict(4000, 1.15, "speed", "overlay"),
	} {
		_, err := s.Insert(ctx, "s", v)
		require.NoError(t, err)
	}

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 3, sum.Suspicious)
	assert.InDelta(t, 1.15, sum.MaxConfidence, 1e-9)
	assert.Equal(t, map[string]int{"low": 2, "medium": 1, "high": 1}, sum.BySeverity)
	assert.Equal(t, int64(1000), sum.First.UnixMilli())
	assert.Equal(t, int64(4000), sum.Last.UnixMilli())
}

func TestPruneRemovesOldVerdictsAndReasons(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		_, err := s.Insert(ctx, "s", makeVerdict(i*1000, 0.5, "r1", "r2"))
		require.NoError(t, err)
	}

	n, err := s.Prune(ctx, time.UnixMilli(3000))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var orphans int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM verdict_reasons WHERE verdict_id NOT IN (SELECT id FROM verdicts)",
	).Scan(&orphans))
	assert.Zero(t, orphans)

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
