package chain

import (
	"context"
	"fmt"
	"log"
	"slices"
)

// TransformFunc computes a stage's output value from the message values
type TransformFunc func(ctx context.Context, values map[string]string) (string, error)

// TransformChain is a stage backed by a plain function
type TransformChain struct {
	*stage
	inputVariables []string
	outputKey      string
	fn             TransformFunc
	in             *block
}

// NewTransformChain creates a stage that stores fn's result under the output key
func NewTransformChain(inputVariables []string, fn TransformFunc, opts ...Option) (*TransformChain, error) {
	o := buildOptions(opts)
	if slices.Contains(inputVariables, o.outputKey) {
		return nil, fmt.Errorf("%w: output key %q is also an input variable", ErrInvalidOperation, o.outputKey)
	}

	c := &TransformChain{
		stage:          newStage("TransformChain", o),
		inputVariables: slices.Clone(inputVariables),
		outputKey:      o.outputKey,
		fn:             fn,
	}
	c.in = c.addBlock("TransformChain", messageHandler(c.process))
	return c, nil
}

// Input returns the stage's input port
func (c *TransformChain) Input() Inlet { return c.in }

// Output returns the stage's output port
func (c *TransformChain) Output() *Outlet { return c.in.out }

// InputVariables returns the declared inputs
func (c *TransformChain) InputVariables() []string { return slices.Clone(c.inputVariables) }

// DefaultOutputKey returns the key the result is stored under
func (c *TransformChain) DefaultOutputKey() string { return c.outputKey }

func (c *TransformChain) process(ctx context.Context, msg *Message) (*Message, error) {
	var missing []string
	for _, v := range c.inputVariables {
		if _, ok := msg.Values[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing input values %v", ErrInvalidArgument, missing)
	}
	if _, exists := msg.Values[c.outputKey]; exists {
		return nil, fmt.Errorf("%w: message already has a value for output key %q", ErrInvalidArgument, c.outputKey)
	}

	value, err := c.fn(ctx, msg.Values)
	if err != nil {
		log.Printf("[ERROR][TransformChain] %v\n", err)
		return nil, err
	}
	out := msg.Clone()
	out.Values[c.outputKey] = value
	return out, nil
}
