package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dex-router/internal/decoder"
	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/filter"
	"solana-dex-router/internal/jsoncodec"
	"solana-dex-router/internal/metrics"
	"solana-dex-router/internal/pipeline"
)

type fixedState pipeline.State

func (s fixedState) State() pipeline.State { return pipeline.State(s) }

func sampleMetrics(now time.Time) *metrics.Metrics {
	m := metrics.NewWithClock(func() time.Time { return now })
	for i := 0; i < 4; i++ {
		m.RecordReceived()
	}
	m.RecordRejected(filter.StageSample)
	m.RecordClass(decoder.ClassSwap)
	m.RecordAdmitted(10)
	m.RecordPublishSuccess()
	m.RecordPublishSuccess()
	m.RecordPublishFailure()
	return m
}

// metricValue finds a sample by name and label pair in a gather result.
func metricValue(t *testing.T, families []*dto.MetricFamily, name, label, value string) float64 {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := label == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					matched = true
				}
			}
			if !matched {
				continue
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, value)
	return 0
}

func TestRegisterExporter(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	m := sampleMetrics(now)

	reg := prometheus.NewRegistry()
	RegisterExporter(reg, "", m)

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 4.0, metricValue(t, families, "dexrouter_pipeline_events_received_total", "", ""))
	assert.Equal(t, 1.0, metricValue(t, families, "dexrouter_pipeline_events_admitted_total", "", ""))
	assert.Equal(t, 1.0, metricValue(t, families, "dexrouter_filter_rejected_total", "stage", "sample"))
	assert.Equal(t, 0.0, metricValue(t, families, "dexrouter_filter_rejected_total", "stage", "recency"))
	assert.Equal(t, 1.0, metricValue(t, families, "dexrouter_decoder_instructions_total", "class", "swap"))
	assert.Equal(t, 2.0, metricValue(t, families, "dexrouter_publisher_publish_total", "result", "success"))
	assert.Equal(t, 1.0, metricValue(t, families, "dexrouter_publisher_publish_total", "result", "failure"))
	assert.Equal(t, 0.25, metricValue(t, families, "dexrouter_pipeline_filter_rate", "", ""))

	// values are read at scrape time
	m.RecordReceived()
	families, err = reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 5.0, metricValue(t, families, "dexrouter_pipeline_events_received_total", "", ""))
}

func TestServer_Health(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	m := sampleMetrics(now)

	tests := []struct {
		name     string
		state    pipeline.State
		stalled  bool
		wantCode int
		wantStat string
	}{
		{"streaming", pipeline.StateStreaming, false, http.StatusOK, "ok"},
		{"stalled", pipeline.StateStreaming, true, http.StatusServiceUnavailable, "degraded"},
		{"connecting", pipeline.StateConnecting, false, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.SetStalled(tt.stalled)
			srv := NewServer(ServerOptions{
				Gatherer: prometheus.NewRegistry(),
				Metrics:  m,
				State:    fixedState(tt.state),
				Now:      func() time.Time { return now.Add(3 * time.Second) },
			})

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var h Health
			require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &h))
			assert.Equal(t, tt.wantStat, h.Status)
			assert.Equal(t, tt.state.String(), h.State)
			assert.Equal(t, tt.stalled, h.Stalled)
			assert.InDelta(t, 3.0, h.SinceLastReceive, 1e-9)
			assert.Equal(t, uint64(4), h.Received)
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	m := sampleMetrics(time.Now())
	reg := prometheus.NewRegistry()
	RegisterExporter(reg, "router", m)

	srv := NewServer(ServerOptions{Gatherer: reg, Metrics: m, State: fixedState(pipeline.StateStreaming)})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "router_pipeline_events_received_total 4")
}

type memSnapshotStore struct {
	mu   sync.Mutex
	rows []*domain.MetricsSnapshotRow
	err  error
}

func (s *memSnapshotStore) InsertBulk(_ context.Context, rows []*domain.MetricsSnapshotRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *memSnapshotStore) GetRange(context.Context, string, int64, int64) ([]*domain.MetricsSnapshotRow, error) {
	return nil, nil
}

func (s *memSnapshotStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func TestSnapshotRow(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	row := SnapshotRow("node-a", sampleMetrics(now).Snapshot(), now)

	assert.Equal(t, "node-a", row.Instance)
	assert.Equal(t, now.UnixMilli(), row.TimestampMs)
	assert.Equal(t, uint64(4), row.Received)
	assert.Equal(t, uint64(1), row.Admitted)
	assert.Equal(t, uint64(1), row.RejectedSample)
	assert.Equal(t, uint64(1), row.Swaps)
	assert.Equal(t, uint64(2), row.PublishSuccess)
	assert.Equal(t, 10.0, row.AvgLatencyMs)
}

func runReporter(t *testing.T, store *memSnapshotStore, interval time.Duration) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	r, err := NewSnapshotReporter(store, sampleMetrics(time.Now()), ReporterOptions{
		Instance: "node-a",
		Interval: interval,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	return cancel, done
}

func TestSnapshotReporter_Ticks(t *testing.T) {
	store := &memSnapshotStore{}
	cancel, done := runReporter(t, store, 10*time.Millisecond)
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return store.count() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestSnapshotReporter_FinalSnapshot(t *testing.T) {
	store := &memSnapshotStore{}
	cancel, done := runReporter(t, store, time.Hour)
	cancel()
	<-done

	assert.Equal(t, 1, store.count())
}

func TestSnapshotReporter_Errors(t *testing.T) {
	_, err := NewSnapshotReporter(&memSnapshotStore{}, metrics.New(), ReporterOptions{})
	assert.Error(t, err)

	store := &memSnapshotStore{err: errors.New("boom")}
	r, err := NewSnapshotReporter(store, metrics.New(), ReporterOptions{Instance: "x"})
	require.NoError(t, err)
	assert.Error(t, r.Report(context.Background()))
}
