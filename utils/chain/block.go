package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kris-hansen/promptchain/utils/config"
)

// handler processes one packet and emits zero or more packets
type handler func(ctx context.Context, p Packet, emit func(Packet))

// messageHandler adapts a one-to-one transformation. Faulted packets pass through
// untouched and errors fault the message that caused them.
func messageHandler(fn func(ctx context.Context, msg *Message) (*Message, error)) handler {
	return func(ctx context.Context, p Packet, emit func(Packet)) {
		if p.Err != nil {
			emit(p)
			return
		}
		out, err := fn(ctx, p.Message)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				// report why the stage stopped rather than a bare context error
				err = context.Cause(ctx)
			}
			emit(Packet{Message: p.Message, Err: err})
			return
		}
		emit(Packet{Message: out})
	}
}

type queued struct {
	p     Packet
	watch *watchdog
}

// block is a single goroutine draining an unbounded queue, one packet at a time
type block struct {
	name   string
	handle handler
	out    *Outlet
	ctx    context.Context

	mu       sync.Mutex
	items    []queued
	closed   bool
	closeErr error
	signal   chan struct{}

	watch atomic.Pointer[watchdog]
}

func newBlock(ctx context.Context, name string, w *watchdog, h handler) *block {
	b := &block{
		name:   name,
		handle: h,
		out:    NewOutlet(name),
		ctx:    ctx,
		signal: make(chan struct{}, 1),
	}
	b.watch.Store(w)
	go b.run()
	return b
}

// Post queues a packet
func (b *block) Post(p Packet) error {
	if p.Message == nil {
		return fmt.Errorf("%w: packet without message", ErrInvalidArgument)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if b.ctx.Err() != nil {
			return fmt.Errorf("%s: %w", b.name, context.Cause(b.ctx))
		}
		return fmt.Errorf("%s: %w", b.name, ErrCompleted)
	}
	w := b.watch.Load()
	w.begin()
	b.items = append(b.items, queued{p: p, watch: w})
	b.mu.Unlock()

	b.notify()
	return nil
}

// Complete stops accepting packets; queued packets are still processed
func (b *block) Complete(err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed, b.closeErr = true, err
	b.mu.Unlock()
	b.notify()
}

func (b *block) notify() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *block) run() {
	for {
		item, ok, err := b.next()
		if !ok {
			config.DebugLog("[%s] Block finished: %v", b.name, completionError(err))
			b.out.Complete(err)
			return
		}
		b.handle(b.ctx, item.p, b.out.Emit)
		item.watch.end()
	}
}

func (b *block) next() (queued, bool, error) {
	for {
		if b.ctx.Err() != nil {
			b.discard()
			return queued{}, false, context.Cause(b.ctx)
		}

		b.mu.Lock()
		if len(b.items) > 0 {
			item := b.items[0]
			b.items[0] = queued{}
			b.items = b.items[1:]
			b.mu.Unlock()
			return item, true, nil
		}
		if b.closed {
			err := b.closeErr
			b.mu.Unlock()
			return queued{}, false, err
		}
		b.mu.Unlock()

		select {
		case <-b.signal:
		case <-b.ctx.Done():
		}
	}
}

// discard drops queued packets after cancellation; their waiters are failed by the outlet
func (b *block) discard() {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.closed = true
	b.mu.Unlock()
	for _, item := range items {
		item.watch.end()
	}
}

// watchdog fires once when no packet has been queued or in flight for the idle period
type watchdog struct {
	mu      sync.Mutex
	idle    time.Duration
	active  int
	timer   *time.Timer
	stopped bool
	fire    func()
}

func newWatchdog(idle time.Duration, fire func()) *watchdog {
	w := &watchdog{idle: idle, fire: fire}
	w.timer = time.AfterFunc(idle, w.expire)
	return w
}

func (w *watchdog) begin() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.active++
	w.timer.Stop()
	w.mu.Unlock()
}

func (w *watchdog) end() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.active--
	if w.active == 0 && !w.stopped {
		w.timer.Reset(w.idle)
	}
	w.mu.Unlock()
}

func (w *watchdog) expire() {
	w.mu.Lock()
	if w.stopped || w.active > 0 {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()
	w.fire()
}

func (w *watchdog) stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.stopped = true
	w.timer.Stop()
	w.mu.Unlock()
}
