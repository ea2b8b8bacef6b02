package chain

import (
	"errors"
	"fmt"

	"github.com/kris-hansen/promptchain/utils/errkind"
)

var (
	// ErrInvalidOperation classifies configuration errors. Never retried.
	ErrInvalidOperation = errkind.InvalidOperation
	// ErrInvalidArgument classifies errors caused by caller input. Never retried.
	ErrInvalidArgument = errkind.InvalidArgument

	// ErrCancelled completes a chain stopped with Cancel
	ErrCancelled = errors.New("chain cancelled")
	// ErrIdleTimeout completes a chain that saw no activity for its idle timeout
	ErrIdleTimeout = errors.New("chain cancelled after inactivity")
	// ErrCompleted is reported when posting to, or waiting on, a chain that has finished
	ErrCompleted = errors.New("chain completed")

	// ErrLinkMismatch is returned when a stage's output key is not among the next stage's inputs
	ErrLinkMismatch = fmt.Errorf("%w: source output does not match target input", ErrInvalidOperation)
	// ErrAlreadyLinked is returned when an outlet already feeds another inlet
	ErrAlreadyLinked = fmt.Errorf("%w: output is already linked", ErrInvalidOperation)
	// ErrTooManyRounds faults a map-reduce request whose merged text never fits the reduce stage
	ErrTooManyRounds = fmt.Errorf("%w: map-reduce exceeded its round limit", ErrInvalidOperation)
)
