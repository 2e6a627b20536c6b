// Package slotcell implements the single-slot "latest value" handoff cell
// used throughout the emulator and the split client (spec §9 design note):
// a producer overwrites the slot and a consumer reads whatever is there,
// with no queueing and no blocking in either direction. Generalizes the
// hub's mutex-guarded shared state (internal/hub.Hub.clients) from a set of
// long-lived entries to a single overwritable value.
package slotcell

import "sync"

// Cell holds at most one value of type T, guarded by a mutex. The zero
// value is an empty cell.
type Cell[T any] struct {
	mu  sync.Mutex
	val T
	set bool
}

// Store overwrites the cell's value, discarding whatever was there before.
func (c *Cell[T]) Store(v T) {
	c.mu.Lock()
	c.val = v
	c.set = true
	c.mu.Unlock()
}

// Load returns the cell's current value and whether one has ever been
// stored. The zero value of T is returned if the cell is empty.
func (c *Cell[T]) Load() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val, c.set
}

// Clear empties the cell.
func (c *Cell[T]) Clear() {
	c.mu.Lock()
	var zero T
	c.val = zero
	c.set = false
	c.mu.Unlock()
}
