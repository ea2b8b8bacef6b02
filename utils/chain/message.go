// Package chain implements composable prompt pipelines. Each stage runs as its
// own goroutine, stages are wired output to input, and requests sharing a graph
// are told apart by the Id carried on every Message.
package chain

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// Message is one logical request travelling through a graph
type Message struct {
	ID     uuid.UUID
	Values map[string]string
	Stops  []string
}

// NewMessage creates a message with a fresh Id. values and stops are copied.
func NewMessage(values map[string]string, stops []string) *Message {
	m := &Message{
		ID:     uuid.New(),
		Values: make(map[string]string, len(values)),
		Stops:  slices.Clone(stops),
	}
	maps.Copy(m.Values, values)
	return m
}

// Clone returns a deep copy that keeps the Id
func (m *Message) Clone() *Message {
	values := maps.Clone(m.Values)
	if values == nil {
		values = map[string]string{}
	}
	return &Message{ID: m.ID, Values: values, Stops: slices.Clone(m.Stops)}
}

// derive builds a message for the same request with new values
func (m *Message) derive(values map[string]string) *Message {
	return &Message{ID: m.ID, Values: values, Stops: slices.Clone(m.Stops)}
}
