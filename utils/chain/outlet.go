package chain

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/kris-hansen/promptchain/utils/config"
)

// Packet carries a message, or the fault raised while processing it. A faulted
// packet keeps the message so the fault reaches the request with the same Id.
type Packet struct {
	Message *Message
	Err     error

	// branch tags packets entering a join
	branch int
}

// Inlet is the input port of a stage
type Inlet interface {
	// Post queues a packet. It fails once the inlet has completed.
	Post(p Packet) error
	// Complete tells the inlet no more packets will arrive. A non-nil err faults it.
	Complete(err error)
}

// Outlet is the output port of a stage. Packets go to the waiter subscribed to
// their Id first, then to the linked inlet. Completion is passed on to both.
type Outlet struct {
	name string

	mu      sync.Mutex
	waiters map[uuid.UUID]chan Packet
	target  Inlet
	done    bool
	err     error
}

// NewOutlet creates an unlinked outlet
func NewOutlet(name string) *Outlet {
	return &Outlet{name: name, waiters: make(map[uuid.UUID]chan Packet)}
}

// LinkTo forwards every unclaimed packet and the completion signal to target
func (o *Outlet) LinkTo(target Inlet) error {
	o.mu.Lock()
	if o.target != nil {
		o.mu.Unlock()
		return ErrAlreadyLinked
	}
	o.target = target
	done, err := o.done, o.err
	o.mu.Unlock()

	if done {
		target.Complete(err)
	}
	return nil
}

// Linked reports whether the outlet feeds an inlet
func (o *Outlet) Linked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target != nil
}

// Subscribe returns a channel receiving the single packet for id. Subscribe before
// posting the request; packets nobody is waiting for are not kept.
func (o *Outlet) Subscribe(id uuid.UUID) <-chan Packet {
	ch := make(chan Packet, 1)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		ch <- Packet{Err: completionError(o.err)}
		return ch
	}
	o.waiters[id] = ch
	return ch
}

// Unsubscribe drops the waiter for id, if any
func (o *Outlet) Unsubscribe(id uuid.UUID) {
	o.mu.Lock()
	delete(o.waiters, id)
	o.mu.Unlock()
}

// Emit routes a packet
func (o *Outlet) Emit(p Packet) {
	o.mu.Lock()
	if ch, ok := o.waiters[p.Message.ID]; ok {
		delete(o.waiters, p.Message.ID)
		o.mu.Unlock()
		ch <- p
		return
	}
	target := o.target
	o.mu.Unlock()

	if target == nil {
		config.DebugLog("[%s] Dropping unclaimed result for %s", o.name, p.Message.ID)
		return
	}
	if err := target.Post(p); err != nil {
		log.Printf("[WARN][%s] Could not forward result for %s: %v\n", o.name, p.Message.ID, err)
	}
}

// Complete fails every waiter and passes the completion to the linked inlet
func (o *Outlet) Complete(err error) {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.done, o.err = true, err
	waiters := o.waiters
	o.waiters = make(map[uuid.UUID]chan Packet)
	target := o.target
	o.mu.Unlock()

	for _, ch := range waiters {
		ch <- Packet{Err: completionError(err)}
	}
	if target != nil {
		target.Complete(err)
	}
}

// Done reports whether the outlet has completed, and with which error
func (o *Outlet) Done() (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done, o.err
}

func completionError(err error) error {
	if err == nil {
		return ErrCompleted
	}
	return err
}
