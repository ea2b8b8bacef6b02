// Package errkind holds the two error kinds shared by every layer of a chain.
// Concrete errors wrap one of these so callers can test with errors.Is.
package errkind

import "errors"

var (
	// InvalidOperation marks a call made in a state or configuration where it can never succeed
	InvalidOperation = errors.New("invalid operation")
	// InvalidArgument marks input data a chain cannot accept
	InvalidArgument = errors.New("invalid argument")
)
