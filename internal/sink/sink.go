// Package sink fans completed exchanges out to their destinations.
//
// DESIGN: The gateway hands each finished exchange to the Dispatcher,
// which queues it and returns immediately; a background worker feeds the
// configured sinks so slow destinations never stall request handling.
// When the queue is full the record is dropped and counted, not blocked
// on.
//
// SINKS:
//   - ConsoleSink: Styled or template-expanded lines for operators
//   - JSONLSink:   Append-only structured log with header redaction
//   - StoreSink:   Retention store backing the query endpoints
//   - TailHub:     Live websocket subscribers with per-client filters
//   - S3Sink:      Gzipped batch archival to object storage
package sink

import (
	"sync"
	"sync/atomic"

	"github.com/tschaume/httptrail/internal/accesslog"
	"github.com/tschaume/httptrail/internal/monitoring"
)

// Event is one completed exchange on its way to the sinks. Fields gives
// sinks lazy access to log directives the record does not carry; it must
// not be mutated after dispatch.
type Event struct {
	Record *monitoring.AccessRecord
	Fields accesslog.FieldSource
}

// Sink receives completed exchanges. Write is called from the dispatcher
// worker goroutine only.
type Sink interface {
	Name() string
	Write(ev *Event) error
	Close() error
}

// Dispatcher queues events and feeds them to every sink in order.
type Dispatcher struct {
	sinks  []Sink
	logger *monitoring.Logger

	queue    chan *Event
	dropped  atomic.Int64
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(logger *monitoring.Logger, queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Dispatcher{
		sinks:    sinks,
		logger:   logger,
		queue:    make(chan *Event, queueSize),
		stopChan: make(chan struct{}),
	}
}

// Start launches the dispatch worker.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run()
}

// Stop drains the queue, closes every sink, and waits for the worker.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()
	d.wg.Wait()

	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			d.logger.Error().Err(err).Str("sink", s.Name()).Msg("sink close failed")
		}
	}
}

// Dispatch queues one exchange. Never blocks; full queues drop.
func (d *Dispatcher) Dispatch(rec *monitoring.AccessRecord, fields accesslog.FieldSource) {
	select {
	case d.queue <- &Event{Record: rec, Fields: fields}:
	default:
		d.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded on a full queue.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.write(ev)
		case <-d.stopChan:
			for {
				select {
				case ev := <-d.queue:
					d.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(ev *Event) {
	for _, s := range d.sinks {
		if err := s.Write(ev); err != nil {
			d.logger.Error().Err(err).Str("sink", s.Name()).Str("request_id", ev.Record.RequestID).Msg("sink write failed")
		}
	}
}
