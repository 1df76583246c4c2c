package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering and filtering.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// FailuresOnly suppresses successful events, keeping denials, lockouts,
	// and replays for sinks that only alert.
	FailuresOnly bool
}

// Dispatcher fans audit events out to one or more sinks from a single
// background worker, so the authentication path never waits on sink I/O.
// With DropIfFull set, overflow is counted instead of delivered.
type Dispatcher struct {
	cfg       Config
	sinks     []Sink
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	delivered atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery worker. A disabled config yields a nil
// dispatcher; the nil receiver is safe to emit to and close.
func NewDispatcher(cfg Config, sinks ...Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	kept := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, NoOpSink{})
	}

	d := &Dispatcher{
		cfg:   cfg,
		sinks: kept,
		ch:    make(chan Event, cfg.BufferSize),
		done:  make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

// drain flushes whatever is still buffered, so an event accepted before
// Close is never lost to shutdown.
func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	for _, sink := range d.sinks {
		sink.Emit(context.Background(), event)
	}
	d.delivered.Add(1)
}

// Emit queues an event for delivery. Events without a timestamp are stamped
// on entry, so sink order reflects emission time rather than delivery time.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if d.cfg.FailuresOnly && event.Success {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops the worker after the buffer has drained. Subsequent emissions
// are discarded.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Delivered reports how many events reached the sinks.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// Dropped reports how many events were discarded on a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
