package chain

import (
	"fmt"
	"slices"
)

// Link connects source's output to target's input after checking that target
// consumes the value source produces.
func Link(source, target Chain) error {
	if !slices.Contains(target.InputVariables(), source.DefaultOutputKey()) {
		return fmt.Errorf("%w: %q not in %v", ErrLinkMismatch, source.DefaultOutputKey(), target.InputVariables())
	}
	return source.Output().LinkTo(target.Input())
}

// SequentialChain feeds each stage's output into the next one
type SequentialChain struct {
	*stage
	chains []Chain
}

// NewSequentialChain links chains in order. Every link is checked here, before any
// message flows.
func NewSequentialChain(chains []Chain, opts ...Option) (*SequentialChain, error) {
	if len(chains) == 0 {
		return nil, fmt.Errorf("%w: sequential chain needs at least one stage", ErrInvalidOperation)
	}
	for i := 0; i < len(chains)-1; i++ {
		if !slices.Contains(chains[i+1].InputVariables(), chains[i].DefaultOutputKey()) {
			return nil, fmt.Errorf("%w: stage %d output %q not in stage %d inputs %v",
				ErrLinkMismatch, i, chains[i].DefaultOutputKey(), i+1, chains[i+1].InputVariables())
		}
		if chains[i].Output().Linked() {
			return nil, fmt.Errorf("stage %d: %w", i, ErrAlreadyLinked)
		}
	}

	s := &SequentialChain{stage: newStage("SequentialChain", buildOptions(opts)), chains: slices.Clone(chains)}
	for i, c := range chains {
		s.addChild(c)
		if i > 0 {
			if err := Link(chains[i-1], c); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// Input returns the first stage's input
func (s *SequentialChain) Input() Inlet { return s.chains[0].Input() }

// Output returns the last stage's output
func (s *SequentialChain) Output() *Outlet { return s.chains[len(s.chains)-1].Output() }

// InputVariables returns the first stage's inputs
func (s *SequentialChain) InputVariables() []string { return s.chains[0].InputVariables() }

// DefaultOutputKey returns the last stage's output key
func (s *SequentialChain) DefaultOutputKey() string {
	return s.chains[len(s.chains)-1].DefaultOutputKey()
}

// Chains returns the member stages
func (s *SequentialChain) Chains() []Chain { return slices.Clone(s.chains) }
