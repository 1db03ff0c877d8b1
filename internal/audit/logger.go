package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// defaultBufferSize is the event channel capacity when the
// configuration does not set one.
const defaultBufferSize = 1024

// Logger records decision events.
type Logger interface {
	// Record enqueues an event for writing. It never blocks; when the
	// buffer is full the event is dropped and counted.
	Record(ctx context.Context, event *Event)

	// Close drains buffered events and releases the writer. Events
	// recorded after Close are discarded.
	Close() error
}

// Verify interface compliance at compile time.
var (
	_ Logger = (*asyncLogger)(nil)
	_ Logger = (*noopLogger)(nil)
)

// options holds optional logger settings.
type options struct {
	logger     observability.Logger
	metrics    *Metrics
	bufferSize int
	writer     io.WriteCloser
}

// Option configures the audit logger.
type Option func(*options)

// WithLogger sets the diagnostic logger used for write failures.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithBufferSize sets the event channel capacity.
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithWriter overrides the output destination. The writer replaces
// whatever the output argument of NewLogger would select.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = nopWriteCloser{w}
	}
}

// asyncLogger writes events from a buffered channel on a single
// background goroutine.
type asyncLogger struct {
	writer  io.WriteCloser
	logger  observability.Logger
	metrics *Metrics

	events chan *Event
	quit   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewLogger creates an asynchronous audit logger writing to the given
// output destination ("stdout", "stderr", or a file path; empty means
// stdout).
func NewLogger(output string, opts ...Option) (Logger, error) {
	o := &options{
		logger:     observability.NopLogger(),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	writer := o.writer
	if writer == nil {
		var err error
		writer, err = createWriter(output)
		if err != nil {
			return nil, err
		}
	}

	l := &asyncLogger{
		writer:  writer,
		logger:  o.logger,
		metrics: o.metrics,
		events:  make(chan *Event, o.bufferSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go l.run()

	return l, nil
}

// Record enqueues the event without blocking.
func (l *asyncLogger) Record(ctx context.Context, event *Event) {
	if event == nil {
		return
	}

	select {
	case <-l.quit:
		return
	default:
	}

	event.normalize(ctx)

	select {
	case l.events <- event:
	default:
		l.metrics.RecordDropped()
		l.logger.Debug("audit event dropped",
			observability.String("request_id", event.RequestID),
			observability.String("decision", string(event.Decision)),
		)
	}
}

// Close stops the worker, drains buffered events, and closes the
// underlying writer. It is safe to call multiple times.
func (l *asyncLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.quit)
		<-l.done
		l.closeErr = l.writer.Close()
	})
	return l.closeErr
}

// run is the worker loop. After quit it drains whatever is still
// buffered before signalling done.
func (l *asyncLogger) run() {
	defer close(l.done)

	enc := json.NewEncoder(l.writer)

	for {
		select {
		case event := <-l.events:
			l.write(enc, event)
		case <-l.quit:
			for {
				select {
				case event := <-l.events:
					l.write(enc, event)
				default:
					return
				}
			}
		}
	}
}

func (l *asyncLogger) write(enc *json.Encoder, event *Event) {
	if err := enc.Encode(event); err != nil {
		l.metrics.RecordWriteFailure()
		l.logger.Error("write audit event",
			observability.Error(err),
			observability.String("request_id", event.RequestID),
		)
		return
	}
	l.metrics.RecordEvent(event.Decision)
}

// createWriter resolves the output destination.
func createWriter(output string) (io.WriteCloser, error) {
	switch output {
	case "", "stdout":
		return nopWriteCloser{os.Stdout}, nil
	case "stderr":
		return nopWriteCloser{os.Stderr}, nil
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("open audit output %s: %w", output, err)
		}
		return file, nil
	}
}

// nopWriteCloser wraps a writer whose lifetime the logger does not own.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

// noopLogger discards all events.
type noopLogger struct{}

// NewNoopLogger returns a Logger that discards all events. It is used
// when the audit trail is disabled.
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) Record(context.Context, *Event) {}

func (noopLogger) Close() error { return nil }
