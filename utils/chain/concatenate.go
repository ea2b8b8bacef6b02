package chain

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

const passthroughBranch = -1

// ConcatenateChain runs two stages on copies of each message and joins their
// answers, separated by a newline, under a single output key. Branch results are
// paired by message Id.
type ConcatenateChain struct {
	*stage
	one, two  Chain
	outputKey string
	fanout    *block
	join      *block

	mu       sync.Mutex
	pending  map[uuid.UUID]*[2]*Packet
	failed   map[uuid.UUID]struct{}
	closed   [2]bool
	closeErr error
}

// NewConcatenateChain wires one and two side by side
func NewConcatenateChain(one, two Chain, opts ...Option) (*ConcatenateChain, error) {
	o := buildOptions(opts)
	if one.Output().Linked() || two.Output().Linked() {
		return nil, ErrAlreadyLinked
	}
	c := &ConcatenateChain{
		one:       one,
		two:       two,
		outputKey: o.outputKey,
		pending:   make(map[uuid.UUID]*[2]*Packet),
		failed:    make(map[uuid.UUID]struct{}),
	}
	if slices.Contains(c.InputVariables(), o.outputKey) {
		return nil, fmt.Errorf("%w: output key %q is also an input variable", ErrInvalidOperation, o.outputKey)
	}

	c.stage = newStage("ConcatenateChain", o)
	c.fanout = c.addBlock("ConcatenateChain.fanout", c.broadcast)
	c.join = c.addBlock("ConcatenateChain.join", c.pair)
	c.addChild(one)
	c.addChild(two)

	if err := c.fanout.out.LinkTo(fanoutSink{c}); err != nil {
		return nil, err
	}
	if err := one.Output().LinkTo(joinInlet{c, 0}); err != nil {
		return nil, err
	}
	if err := two.Output().LinkTo(joinInlet{c, 1}); err != nil {
		return nil, err
	}
	return c, nil
}

// Input returns the fan-out input
func (c *ConcatenateChain) Input() Inlet { return c.fanout }

// Output returns the joined output
func (c *ConcatenateChain) Output() *Outlet { return c.join.out }

// InputVariables returns the inputs of both branches
func (c *ConcatenateChain) InputVariables() []string {
	vars := c.one.InputVariables()
	for _, v := range c.two.InputVariables() {
		if !slices.Contains(vars, v) {
			vars = append(vars, v)
		}
	}
	return vars
}

// DefaultOutputKey returns the key the joined text is stored under
func (c *ConcatenateChain) DefaultOutputKey() string { return c.outputKey }

func (c *ConcatenateChain) broadcast(ctx context.Context, p Packet, emit func(Packet)) {
	if p.Err != nil {
		emit(p)
		return
	}
	for i, branch := range []Chain{c.one, c.two} {
		if err := branch.Input().Post(Packet{Message: p.Message.Clone()}); err != nil {
			if i > 0 {
				c.dropSibling(p.Message.ID)
			}
			emit(Packet{Message: p.Message, Err: err})
			return
		}
	}
}

// dropSibling forgets the result of a branch whose request faulted in the other one
func (c *ConcatenateChain) dropSibling(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, waiting := c.pending[id]; waiting {
		delete(c.pending, id)
		return
	}
	c.failed[id] = struct{}{}
}

func (c *ConcatenateChain) pair(ctx context.Context, p Packet, emit func(Packet)) {
	if p.branch == passthroughBranch {
		p.branch = 0
		emit(p)
		return
	}

	id := p.Message.ID
	c.mu.Lock()
	if _, ok := c.failed[id]; ok {
		// the sibling already faulted this request
		delete(c.failed, id)
		c.mu.Unlock()
		return
	}
	if p.Err != nil {
		if _, waiting := c.pending[id]; waiting {
			delete(c.pending, id)
		} else {
			c.failed[id] = struct{}{}
		}
		c.mu.Unlock()
		emit(Packet{Message: p.Message, Err: p.Err})
		return
	}

	slot, ok := c.pending[id]
	if !ok {
		slot = new([2]*Packet)
		c.pending[id] = slot
	}
	pkt := p
	slot[p.branch] = &pkt
	if slot[0] == nil || slot[1] == nil {
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	c.mu.Unlock()

	first, second := slot[0].Message, slot[1].Message
	joined := first.derive(map[string]string{
		c.outputKey: first.Values[c.one.DefaultOutputKey()] + "\n" + second.Values[c.two.DefaultOutputKey()],
	})
	emit(Packet{Message: joined})
}

// branchDone completes the join once both branches have completed
func (c *ConcatenateChain) branchDone(branch int, err error) {
	c.mu.Lock()
	c.closed[branch] = true
	if err != nil && c.closeErr == nil {
		c.closeErr = err
	}
	done := c.closed[0] && c.closed[1]
	if err != nil {
		done = true
	}
	closeErr := c.closeErr
	c.mu.Unlock()

	if done {
		c.join.Complete(closeErr)
	}
}

// fanoutSink receives faults the fan-out passes through and its completion
type fanoutSink struct{ c *ConcatenateChain }

func (s fanoutSink) Post(p Packet) error {
	p.branch = passthroughBranch
	return s.c.join.Post(p)
}

func (s fanoutSink) Complete(err error) {
	s.c.one.Input().Complete(err)
	s.c.two.Input().Complete(err)
}

// joinInlet tags packets with the branch they came from
type joinInlet struct {
	c      *ConcatenateChain
	branch int
}

func (j joinInlet) Post(p Packet) error {
	p.branch = j.branch
	return j.c.join.Post(p)
}

func (j joinInlet) Complete(err error) {
	j.c.branchDone(j.branch, err)
}
