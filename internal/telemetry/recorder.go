// Package telemetry persists the state events of a client: every emitted
// snapshot goes to the local state history and, when configured, to the
// time-series database.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/nomiku/nomiku-go/internal/device"
	"github.com/nomiku/nomiku-go/internal/session"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// HistoryStore records snapshots. device.SQLiteStateHistoryRepository
// satisfies it.
type HistoryStore interface {
	RecordSnapshot(ctx context.Context, snap device.Snapshot, source string) error
}

// StateWriter writes snapshots to a time-series store. *influxdb.Client
// satisfies it.
type StateWriter interface {
	WriteDeviceState(snap device.Snapshot, at time.Time)
}

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Recorder queues state events and writes them from a single goroutine so
// that event delivery never waits on storage.
type Recorder struct {
	history HistoryStore
	writer  StateWriter
	logger  Logger

	queue chan session.Event
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	dropped int
}

// NewRecorder creates a recorder. Either store may be nil.
func NewRecorder(history HistoryStore, writer StateWriter, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		history: history,
		writer:  writer,
		logger:  logger,
		queue:   make(chan session.Event, defaultQueueSize),
		done:    make(chan struct{}),
	}
}

// Handle queues a state event. Other events are ignored. When the queue is
// full the event is dropped and counted.
func (r *Recorder) Handle(e session.Event) {
	if e.Kind != session.EventState {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.logger.Warn("telemetry queue full, dropping state event", "device_id", e.Snapshot.ID)
	}
}

// Dropped returns the number of events lost to a full queue.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Run writes queued events until ctx is cancelled or Stop is called, then
// drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case e := <-r.queue:
			r.record(e)
		case <-ctx.Done():
			r.drain()
			return
		case <-r.done:
			r.drain()
			return
		}
	}
}

// Stop makes Run return after draining the queue.
func (r *Recorder) Stop() {
	r.once.Do(func() { close(r.done) })
}

func (r *Recorder) drain() {
	for {
		select {
		case e := <-r.queue:
			r.record(e)
		default:
			return
		}
	}
}

func (r *Recorder) record(e session.Event) {
	if r.writer != nil {
		r.writer.WriteDeviceState(e.Snapshot, e.Time)
	}
	if r.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()
	if err := r.history.RecordSnapshot(ctx, e.Snapshot, HistorySource(e.Origin)); err != nil {
		r.logger.Warn("state history write failed", "device_id", e.Snapshot.ID, "error", err)
		return
	}
	r.logger.Debug("state recorded", "device_id", e.Snapshot.ID, "origin", string(e.Origin))
}

// HistorySource maps an event origin to a state history source.
func HistorySource(o session.Origin) string {
	switch o {
	case session.OriginCommand:
		return device.StateHistorySourceCommand
	case session.OriginExpiry:
		return device.StateHistorySourceExpiry
	default:
		return device.StateHistorySourceMQTT
	}
}
