package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avauthgw/internal/config"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

func newTestMetrics() *Metrics {
	return NewMetricsWithRegisterer("test", prometheus.NewRegistry())
}

// decodeEvents parses JSONL output into events.
func decodeEvents(t *testing.T, data []byte) []Event {
	t.Helper()

	var events []Event
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var event Event
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		events = append(events, event)
	}
	return events
}

// blockingWriter blocks every Write until released, so tests can hold
// the worker mid-write deterministically.
type blockingWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.started) })
	<-w.release

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *blockingWriter) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.buf.Bytes()...)
}

type failWriter struct{}

func (failWriter) Write(_ []byte) (int, error) {
	return 0, assert.AnError
}

func TestLogger_WritesEventAsJSONLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger("", WithWriter(&buf), WithMetrics(newTestMetrics()))
	require.NoError(t, err)

	logger.Record(context.Background(), &Event{
		RequestID: "req-1",
		Principal: "alice",
		Groups:    []string{"admin", "ops"},
		Method:    "GET",
		Path:      "/protectedPath/reports",
		DeviceID:  "trusted-device-123",
		Decision:  DecisionAllow,
		Reason:    "rule:protected-path",
		Target:    "protected",
		Status:    200,
		Duration:  150 * time.Millisecond,
	})

	require.NoError(t, logger.Close())

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))

	assert.Equal(t, "req-1", raw["request_id"])
	assert.Equal(t, "alice", raw["principal"])
	assert.Equal(t, []interface{}{"admin", "ops"}, raw["groups"])
	assert.Equal(t, "GET", raw["method"])
	assert.Equal(t, "/protectedPath/reports", raw["path"])
	assert.Equal(t, "trusted-device-123", raw["device_id"])
	assert.Equal(t, "allow", raw["decision"])
	assert.Equal(t, "rule:protected-path", raw["reason"])
	assert.Equal(t, "protected", raw["target"])
	assert.Equal(t, float64(200), raw["status"])
	assert.NotEmpty(t, raw["time"])

	events := decodeEvents(t, buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, 150*time.Millisecond, events[0].Duration)
	assert.False(t, events[0].Time.IsZero())
}

func TestLogger_FillsContextFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger("", WithWriter(&buf), WithMetrics(newTestMetrics()))
	require.NoError(t, err)

	traceID := trace.TraceID{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x00, 0x11,
		0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99}
	spanID := trace.SpanID{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = observability.ContextWithRequestID(ctx, "req-from-ctx")

	logger.Record(ctx, &Event{
		Method:   "GET",
		Path:     "/protectedPath",
		Decision: DecisionDeny,
		Status:   403,
	})

	require.NoError(t, logger.Close())

	events := decodeEvents(t, buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, "req-from-ctx", events[0].RequestID)
	assert.Equal(t, traceID.String(), events[0].TraceID)
	assert.False(t, events[0].Time.IsZero())
	assert.Equal(t, time.UTC, events[0].Time.Location())
}

func TestLogger_KeepsExplicitFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger("", WithWriter(&buf), WithMetrics(newTestMetrics()))
	require.NoError(t, err)

	when := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	ctx := observability.ContextWithRequestID(context.Background(), "req-from-ctx")

	logger.Record(ctx, &Event{
		Time:      when,
		RequestID: "req-explicit",
		Method:    "POST",
		Path:      "/admin-panel",
		Decision:  DecisionAllow,
		Status:    200,
	})

	require.NoError(t, logger.Close())

	events := decodeEvents(t, buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, "req-explicit", events[0].RequestID)
	assert.True(t, when.Equal(events[0].Time))
}

func TestLogger_CloseDrainsBufferedEvents(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	metrics := newTestMetrics()
	logger, err := NewLogger("", WithWriter(&buf), WithMetrics(metrics), WithBufferSize(16))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		logger.Record(ctx, &Event{
			Method:   "GET",
			Path:     "/protectedPath",
			Decision: DecisionAllow,
			Status:   200,
		})
	}

	require.NoError(t, logger.Close())

	events := decodeEvents(t, buf.Bytes())
	assert.Len(t, events, 5)
	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.eventsTotal.WithLabelValues(string(DecisionAllow))))
}

func TestLogger_DropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	writer := newBlockingWriter()
	metrics := newTestMetrics()
	logger, err := NewLogger("", WithWriter(writer), WithMetrics(metrics), WithBufferSize(1))
	require.NoError(t, err)

	ctx := context.Background()
	event := func(path string) *Event {
		return &Event{Method: "GET", Path: path, Decision: DecisionAllow, Status: 200}
	}

	// The worker takes the first event and blocks inside Write.
	logger.Record(ctx, event("/one"))
	<-writer.started

	// Second event fills the single-slot buffer, third has nowhere to go.
	logger.Record(ctx, event("/two"))
	logger.Record(ctx, event("/three"))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.droppedTotal))

	close(writer.release)
	require.NoError(t, logger.Close())

	events := decodeEvents(t, writer.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, "/one", events[0].Path)
	assert.Equal(t, "/two", events[1].Path)
}

func TestLogger_RecordAfterCloseIsDiscarded(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	metrics := newTestMetrics()
	logger, err := NewLogger("", WithWriter(&buf), WithMetrics(metrics))
	require.NoError(t, err)

	require.NoError(t, logger.Close())

	logger.Record(context.Background(), &Event{
		Method:   "GET",
		Path:     "/protectedPath",
		Decision: DecisionAllow,
		Status:   200,
	})

	assert.Empty(t, buf.String())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.droppedTotal))
}

func TestLogger_CloseIdempotent(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("", WithWriter(&bytes.Buffer{}), WithMetrics(newTestMetrics()))
	require.NoError(t, err)

	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestLogger_NilEvent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger("", WithWriter(&buf), WithMetrics(newTestMetrics()))
	require.NoError(t, err)

	logger.Record(context.Background(), nil)

	require.NoError(t, logger.Close())
	assert.Empty(t, buf.String())
}

func TestLogger_WriteFailure(t *testing.T) {
	t.Parallel()

	metrics := newTestMetrics()
	logger, err := NewLogger("", WithWriter(failWriter{}), WithMetrics(metrics))
	require.NoError(t, err)

	logger.Record(context.Background(), &Event{
		Method:   "GET",
		Path:     "/protectedPath",
		Decision: DecisionAllow,
		Status:   200,
	})

	require.NoError(t, logger.Close())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.writeFailures))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.eventsTotal.WithLabelValues(string(DecisionAllow))))
}

func TestLogger_FileOutput(t *testing.T) {
	t.Parallel()

	logFile := filepath.Join(t.TempDir(), "audit.log")

	logger, err := NewLogger(logFile, WithMetrics(newTestMetrics()))
	require.NoError(t, err)

	ctx := context.Background()
	logger.Record(ctx, &Event{Method: "GET", Path: "/a", Decision: DecisionAllow, Status: 200})
	logger.Record(ctx, &Event{Method: "GET", Path: "/b", Decision: DecisionDeny, Status: 403})

	require.NoError(t, logger.Close())

	info, err := os.Stat(logFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	events := decodeEvents(t, data)
	require.Len(t, events, 2)
	assert.Equal(t, DecisionAllow, events[0].Decision)
	assert.Equal(t, DecisionDeny, events[1].Decision)
}

func TestLogger_InvalidOutputPath(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("/nonexistent/directory/audit.log", WithMetrics(newTestMetrics()))
	require.Error(t, err)
	assert.Nil(t, logger)
	assert.Contains(t, err.Error(), "open audit output")
}

func TestLogger_StandardOutputs(t *testing.T) {
	t.Parallel()

	for _, output := range []string{"", "stdout", "stderr"} {
		logger, err := NewLogger(output, WithMetrics(newTestMetrics()))
		require.NoError(t, err, "output %q", output)
		require.NotNil(t, logger)
		assert.NoError(t, logger.Close())
	}
}

func TestNoopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNoopLogger()

	logger.Record(context.Background(), &Event{Decision: DecisionAllow})
	logger.Record(context.Background(), nil)

	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("nil config yields noop", func(t *testing.T) {
		t.Parallel()

		logger, err := FromConfig(nil)
		require.NoError(t, err)
		assert.IsType(t, noopLogger{}, logger)
	})

	t.Run("disabled yields noop", func(t *testing.T) {
		t.Parallel()

		logger, err := FromConfig(&config.AuditConfig{Enabled: false, Output: "stdout"})
		require.NoError(t, err)
		assert.IsType(t, noopLogger{}, logger)
	})

	t.Run("enabled yields async logger", func(t *testing.T) {
		t.Parallel()

		logger, err := FromConfig(
			&config.AuditConfig{Enabled: true, Output: "stdout", BufferSize: 4},
			WithMetrics(newTestMetrics()),
		)
		require.NoError(t, err)

		async, ok := logger.(*asyncLogger)
		require.True(t, ok)
		assert.Equal(t, 4, cap(async.events))
		assert.NoError(t, logger.Close())
	})

	t.Run("zero buffer size uses default", func(t *testing.T) {
		t.Parallel()

		logger, err := FromConfig(
			&config.AuditConfig{Enabled: true, Output: "stderr"},
			WithMetrics(newTestMetrics()),
		)
		require.NoError(t, err)

		async, ok := logger.(*asyncLogger)
		require.True(t, ok)
		assert.Equal(t, defaultBufferSize, cap(async.events))
		assert.NoError(t, logger.Close())
	})

	t.Run("invalid file output", func(t *testing.T) {
		t.Parallel()

		logger, err := FromConfig(&config.AuditConfig{
			Enabled: true,
			Output:  "/nonexistent/directory/audit.log",
		})
		require.Error(t, err)
		assert.Nil(t, logger)
	})
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics

	m.RecordEvent(DecisionAllow)
	m.RecordDropped()
	m.RecordWriteFailure()
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer("test", reg)
	m.Init()

	m.RecordEvent(DecisionAllow)
	m.RecordEvent(DecisionAllow)
	m.RecordEvent(DecisionDeny)
	m.RecordDropped()
	m.RecordWriteFailure()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.eventsTotal.WithLabelValues(string(DecisionAllow))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsTotal.WithLabelValues(string(DecisionDeny))))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.eventsTotal.WithLabelValues(string(DecisionError))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.droppedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.writeFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
