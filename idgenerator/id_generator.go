// Package idgenerator hands out session identifiers and the guest labels
// derived from them.
package idgenerator

import (
	"strconv"
	"sync/atomic"
)

// IdGenerator generates monotonically increasing uint32 IDs in a concurrency-safe
// manner. The first Id() returns startValue+1, so a generator built with 0 never
// hands out 0 and callers may use 0 as "no session".
type IdGenerator struct {
	id atomic.Uint32
}

// NewIdGenerator creates an IdGenerator whose first Id() is startValue+1.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next unique ID. It is safe for concurrent use.
func (g *IdGenerator) Id() uint32 {
	return g.id.Add(1)
}

// Label formats id as "<prefix>-<id>", e.g. "guest-7".
//
// Parameters:
//   - prefix: Text placed before the dash
//   - id: The numeric part
//
// Returns:
//   - The formatted label
func Label(prefix string, id uint32) string {
	return prefix + "-" + strconv.FormatUint(uint64(id), 10)
}
