package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlab/cohortd/internal/cache"
	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/report"
	"github.com/cohortlab/cohortd/internal/store"
)

const testCSV = `invoice_no,customer_id,invoice_date,quantity,unit_price,total_price,country
536365,17850,2011-01-04 08:26:00,6,2.55,15.30,United Kingdom
536366,17850,2011-02-07 09:01:00,2,3.39,6.78,United Kingdom
536367,13047,2011-01-12 10:03:00,8,1.85,14.80,France
536368,13047,2011-03-15 11:45:00,3,4.25,12.75,France
536369,12583,2011-02-01 12:00:00,4,3.75,15.00,Germany
`

func newTestRunner(t *testing.T, withCache bool) *Runner {
	t.Helper()

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "retail.csv"), []byte(testCSV), 0o644))

	st, err := store.Open(filepath.Join(t.TempDir(), "cohortd.db"), store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r := &Runner{
		Store:         st,
		Reports:       &report.Writer{Dir: t.TempDir()},
		DataDir:       dataDir,
		SnapshotsKept: 3,
	}
	if withCache {
		c, err := cache.Open(t.TempDir(), cache.DefaultTTL)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		r.Cache = c
	}
	return r
}

func TestRefreshFullPipeline(t *testing.T) {
	r := newTestRunner(t, false)

	status, err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, status.Files)
	assert.Equal(t, 5, status.NewRows)
	assert.Equal(t, 5, status.TotalRows)
	assert.Equal(t, 3, status.Customers)
	assert.Equal(t, 2, status.Cohorts)
	assert.NotEmpty(t, status.Fingerprint)
	assert.NotEmpty(t, status.JobID)
	assert.False(t, status.Cached)
	assert.Empty(t, status.Error)

	a, ok := r.Analysis()
	require.True(t, ok)
	assert.InDelta(t, 1.0, a.Retention.At(0, 0), 1e-9)

	_, ok = r.Insights()
	assert.True(t, ok)

	// Report artifacts land in the report directory.
	for _, name := range []string{
		report.RetentionCSV,
		report.RetentionJSON,
		report.SummaryTXT,
	} {
		_, err := os.Stat(filepath.Join(r.Reports.Dir, name))
		assert.NoError(t, err, name)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	r := newTestRunner(t, false)

	first, err := r.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, first.NewRows)

	// Re-running over the same files must not duplicate rows.
	second, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewRows)
	assert.Equal(t, 5, second.TotalRows)
}

func TestRefreshUsesCacheOnRepeat(t *testing.T) {
	r := newTestRunner(t, true)

	first, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestRefreshRejectsConcurrentRuns(t *testing.T) {
	r := newTestRunner(t, false)
	r.refreshing.Store(true)

	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInProgress)
}

func TestRefreshEmptyDataDir(t *testing.T) {
	r := newTestRunner(t, false)
	r.DataDir = t.TempDir()

	// Fresh store, no CSVs: nothing to analyze.
	st, err := store.Open(filepath.Join(t.TempDir(), "empty.db"), store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	r.Store = st

	status, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, cohort.ErrNoInvoices)
	require.NotNil(t, status)
	assert.NotEmpty(t, status.Error)

	_, ok := r.Analysis()
	assert.False(t, ok)
}

func TestRefreshSkipsUnreadableFile(t *testing.T) {
	r := newTestRunner(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(r.DataDir, "broken.csv"), []byte("not,a\nvalid"), 0o644))

	status, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, status.Files)
	assert.Equal(t, 5, status.NewRows)
}

func TestRestoreFromSnapshot(t *testing.T) {
	r := newTestRunner(t, false)

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	// A new runner over the same store serves the persisted snapshot.
	restored := &Runner{Store: r.Store}
	require.NoError(t, restored.Restore(context.Background()))

	a, ok := restored.Analysis()
	require.True(t, ok)
	assert.Equal(t, 3, a.Customers)

	_, ok = restored.Insights()
	assert.True(t, ok)
}

func TestLaunchReturnsJobIDBeforeCompletion(t *testing.T) {
	r := newTestRunner(t, false)

	jobID, err := r.Launch(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	// The background run reports under the ID Launch handed out.
	require.Eventually(t, func() bool {
		last, ok := r.Last()
		return ok && last.JobID == jobID
	}, 5*time.Second, 20*time.Millisecond)

	last, _ := r.Last()
	assert.Empty(t, last.Error)
	assert.False(t, r.Running())
}

func TestLaunchClaimsSlotSynchronously(t *testing.T) {
	r := newTestRunner(t, false)
	r.refreshing.Store(true)

	_, err := r.Launch(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInProgress)
}

// refreshFailureCount reads the refresh-failure counter for one stage from
// the default registry.
func refreshFailureCount(t *testing.T, stage string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "cohortd_refresh_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "stage" && l.GetValue() == stage {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRefreshStoreLoadFailureCountsLoadStage(t *testing.T) {
	r := newTestRunner(t, false)
	r.DataDir = t.TempDir()
	require.NoError(t, r.Store.Close())

	beforeLoad := refreshFailureCount(t, "load")
	beforeIngest := refreshFailureCount(t, "ingest")
	_, err := r.Refresh(context.Background())
	require.Error(t, err)

	assert.Equal(t, beforeLoad+1, refreshFailureCount(t, "load"))
	assert.Equal(t, beforeIngest, refreshFailureCount(t, "ingest"))
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "bare.db"), store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r := &Runner{Store: st}
	assert.True(t, errors.Is(r.Restore(context.Background()), store.ErrNoSnapshot))
}
