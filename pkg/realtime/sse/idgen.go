package sse

import (
	"strconv"
	"sync/atomic"
)

// IDGenerator assigns ids to messages that are sent without one.
// Implementations must be safe for concurrent use.
type IDGenerator interface {
	NextID(msg *Message) string
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func(msg *Message) string

// NextID calls f(msg).
func (f IDGeneratorFunc) NextID(msg *Message) string { return f(msg) }

// CounterIDGenerator hands out process-local decimal ids starting at 1.
// Ids are never reused.
type CounterIDGenerator struct {
	last atomic.Uint64
}

// NewCounterIDGenerator creates a counter generator.
func NewCounterIDGenerator() *CounterIDGenerator {
	return &CounterIDGenerator{}
}

// NextID returns the next counter value.
func (g *CounterIDGenerator) NextID(*Message) string {
	return strconv.FormatUint(g.last.Add(1), 10)
}
