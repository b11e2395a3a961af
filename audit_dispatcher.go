package stepauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples flow code from sink latency: events are
// queued on a buffered channel and delivered by a single goroutine.
type auditDispatcher struct {
	cfg      AuditConfig
	sink     AuditSink
	queue    chan AuditEvent
	quit     chan struct{}
	delivers sync.WaitGroup
	drops    atomic.Uint64
	stopped  atomic.Bool
	stopOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan AuditEvent, buffer),
		quit:  make(chan struct{}),
	}
	d.delivers.Add(1)
	go d.deliver()
	return d
}

func (d *auditDispatcher) deliver() {
	defer d.delivers.Done()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

// drain flushes whatever is still buffered at shutdown.
func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues an event. With DropIfFull set, a full buffer increments
// the dropped counter instead of blocking the flow.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.quit:
		default:
			d.drops.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close drains the buffer and stops the delivery goroutine. Emits that
// race Close may be dropped; none are delivered after it returns.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.quit)
		d.delivers.Wait()
	})
}

// Dropped reports how many events were discarded under backpressure.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.drops.Load()
}
