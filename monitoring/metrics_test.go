package monitoring

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegisterAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Predictions.WithLabelValues(OutcomeSuccess).Inc()
	m.Predictions.WithLabelValues(OutcomeInvalid).Add(2)
	m.CacheLookups.WithLabelValues(CacheHit).Inc()
	m.ObserveModel(3, time.Unix(1700000000, 0))
	m.ObserveInference(2 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Predictions.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Predictions.WithLabelValues(OutcomeInvalid)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ModelClasses))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.ModelTrainedAt))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ArtifactStale))
	assert.Equal(t, 1, testutil.CollectAndCount(m.InferenceDuration))

	assert.Panics(t, func() { NewMetrics(reg) }, "duplicate registration")
}

func TestArtifactWatcherFlagsReplacement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.pkl")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	m := NewMetrics(prometheus.NewRegistry())
	events := make(chan fsnotify.Event, 8)
	aw, err := NewArtifactWatcher(path, m, func(ev fsnotify.Event) { events <- ev })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	aw.Start(ctx)
	t.Cleanup(func() {
		cancel()
		aw.Close()
	})

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x"), 0o644))

	tmp := filepath.Join(dir, "model.pkl.123.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"version":1}`), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case ev := <-events:
		assert.Equal(t, path, filepath.Clean(ev.Name))
	case <-time.After(5 * time.Second):
		t.Fatal("no artifact event")
	}
	assert.True(t, aw.Stale())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArtifactStale))
}

func TestArtifactWatcherCloseWaitsForLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.pkl")
	aw, err := NewArtifactWatcher(path, nil, nil)
	require.NoError(t, err)

	aw.Start(context.Background())
	done := make(chan struct{})
	go func() {
		aw.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.False(t, aw.Stale())
}
