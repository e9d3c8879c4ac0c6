// Package idgen provides trace id generation for the executor.
package idgen

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces trace ids for root contexts.
type Generator interface {
	New() string
}

// UUID generates UUID v4 trace ids. This is the default used by
// execctx.Root in production.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

var _ Generator = UUID{}

// Sequential generates sequential ids, deterministic for tests.
type Sequential struct {
	prefix  string
	counter uint64
}

// NewSequential creates a sequential id generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential id.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return s.prefix + uitoa(n)
}

// Reset resets the counter (for testing).
func (s *Sequential) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}

func uitoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

var _ Generator = (*Sequential)(nil)
