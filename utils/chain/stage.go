package chain

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"
)

const (
	// DefaultIdleTimeout cancels a graph built without a context after this much inactivity
	DefaultIdleTimeout = time.Minute
	// DefaultOutputKey is the value key written by stages unless configured otherwise
	DefaultOutputKey = "text"
)

// Chain is a stage with one input and one output port
type Chain interface {
	Input() Inlet
	Output() *Outlet
	// InputVariables lists the values a message must carry
	InputVariables() []string
	// DefaultOutputKey names the value the stage adds on success
	DefaultOutputKey() string
	// Cancel stops the stage and every stage it owns
	Cancel()
}

// Option configures a chain
type Option func(*options)

type options struct {
	ctx       context.Context
	idle      time.Duration
	outputKey string
}

// WithContext binds the chain's lifetime to ctx instead of the idle timeout
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithIdleTimeout changes the inactivity timeout. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idle = d }
}

// WithOutputKey sets the key the chain writes its result under
func WithOutputKey(key string) Option {
	return func(o *options) { o.outputKey = key }
}

func buildOptions(opts []Option) options {
	o := options{idle: DefaultIdleTimeout, outputKey: DefaultOutputKey}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// supervised is implemented by chains whose blocks can join a parent's idle
// watchdog and be aborted with a cause
type supervised interface {
	adopt(w *watchdog)
	abort(cause error)
}

// stage holds the lifetime shared by the blocks and sub-chains of one chain
type stage struct {
	name   string
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu       sync.Mutex
	own      *watchdog
	watch    *watchdog
	blocks   []*block
	children []Chain
}

func newStage(name string, o options) *stage {
	s := &stage{name: name}
	parent := o.ctx
	if parent == nil {
		parent = context.Background()
	}
	s.ctx, s.cancel = context.WithCancelCause(parent)

	if o.ctx == nil && o.idle > 0 {
		idle := o.idle
		s.own = newWatchdog(idle, func() {
			log.Printf("[WARN][%s] No activity for %v, cancelling\n", name, idle)
			s.abort(ErrIdleTimeout)
		})
		s.watch = s.own
	}
	context.AfterFunc(s.ctx, s.cascade)
	return s
}

func (s *stage) addBlock(name string, h handler) *block {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := newBlock(s.ctx, name, s.watch, h)
	s.blocks = append(s.blocks, b)
	return b
}

// addChild takes ownership of c: c is cancelled with the stage and shares its idle watchdog
func (s *stage) addChild(c Chain) {
	s.mu.Lock()
	s.children = append(s.children, c)
	w := s.watch
	s.mu.Unlock()

	if sv, ok := c.(supervised); ok {
		sv.adopt(w)
	}
}

func (s *stage) adopt(w *watchdog) {
	s.mu.Lock()
	old := s.watch
	s.watch = w
	blocks := slices.Clone(s.blocks)
	children := slices.Clone(s.children)
	s.mu.Unlock()

	if old != w {
		old.stop()
	}
	for _, b := range blocks {
		b.watch.Store(w)
	}
	for _, c := range children {
		if sv, ok := c.(supervised); ok {
			sv.adopt(w)
		}
	}
}

// Cancel stops the stage, completing its output with ErrCancelled
func (s *stage) Cancel() {
	s.abort(ErrCancelled)
}

func (s *stage) abort(cause error) {
	s.cancel(cause)
}

func (s *stage) cascade() {
	cause := context.Cause(s.ctx)
	s.own.stop()

	s.mu.Lock()
	children := slices.Clone(s.children)
	s.mu.Unlock()

	for _, c := range children {
		if sv, ok := c.(supervised); ok {
			sv.abort(cause)
		} else {
			c.Cancel()
		}
	}
}
