package chain

import (
	"context"
	"fmt"
	"maps"
)

// Executor runs single requests through a chain and waits for their results.
// Any number of executors may share one chain concurrently.
type Executor struct {
	chain Chain
}

// NewExecutor wraps c
func NewExecutor(c Chain) *Executor {
	return &Executor{chain: c}
}

// Prompt sends input as the chain's only input variable and returns the value
// under the chain's output key.
func (e *Executor) Prompt(ctx context.Context, input string) (string, error) {
	vars := e.chain.InputVariables()
	if len(vars) != 1 {
		return "", fmt.Errorf("%w: Prompt needs a chain with exactly one input variable, got %d", ErrInvalidOperation, len(vars))
	}

	values, err := e.Run(ctx, map[string]string{vars[0]: input}, nil)
	if err != nil {
		return "", err
	}
	return values[e.chain.DefaultOutputKey()], nil
}

// Run posts a new message built from values and stops and returns the values of
// the result for that message. Errors raised inside the chain are returned as is.
func (e *Executor) Run(ctx context.Context, values map[string]string, stops []string) (map[string]string, error) {
	msg := NewMessage(values, stops)
	out := e.chain.Output()

	// subscribe first so the result cannot slip past
	result := out.Subscribe(msg.ID)
	if err := e.chain.Input().Post(Packet{Message: msg}); err != nil {
		out.Unsubscribe(msg.ID)
		select {
		case p := <-result:
			// the chain already finished; its completion error says why
			if p.Err != nil {
				return nil, p.Err
			}
		default:
		}
		return nil, err
	}

	select {
	case p := <-result:
		if p.Err != nil {
			return nil, p.Err
		}
		return maps.Clone(p.Message.Values), nil
	case <-ctx.Done():
		out.Unsubscribe(msg.ID)
		return nil, ctx.Err()
	}
}
