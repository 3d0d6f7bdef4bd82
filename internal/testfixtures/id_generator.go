package testfixtures

import (
	"strconv"
	"sync/atomic"
)

// IDGenerator hands out "<prefix>-<n>" identifiers in place of random UUIDs so
// ticket and comment ids are predictable in assertions.
type IDGenerator struct {
	prefix string
	issued atomic.Uint64
}

// NewIDGenerator returns a generator starting at <prefix>-1. An empty prefix
// becomes "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier. Safe for concurrent use.
func (g *IDGenerator) Next() string {
	return g.prefix + "-" + strconv.FormatUint(g.issued.Add(1), 10)
}

// NextFunc adapts Next to the store's id generator option.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return nil
	}
	return g.Next
}

// Issued reports how many identifiers have been handed out.
func (g *IDGenerator) Issued() uint64 {
	return g.issued.Load()
}

// Reset restarts the sequence at <prefix>-1.
func (g *IDGenerator) Reset() {
	g.issued.Store(0)
}
