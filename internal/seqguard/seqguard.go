// Package seqguard implements the sequence-id and timestamp recovery rule
// of spec §4.6: a frame is accepted iff no frame has been accepted yet, or
// its unsigned forward distance from the last accepted id falls in
// [1, 2^31). This accepts normal forward progress and the full
// forward-wrap region while rejecting old duplicates and deep reorders.
package seqguard

// Guard tracks the last accepted sequence id on one client session. The
// zero value is ready to use (no frame accepted yet).
type Guard struct {
	last    uint32
	hasLast bool
}

// Accept reports whether sequence id s should be accepted, and if so
// records it as the new last-accepted id. Rejected ids do not advance the
// guard's state (a later, genuinely-forward id can still be accepted).
func (g *Guard) Accept(s uint32) bool {
	if !g.hasLast {
		g.last = s
		g.hasLast = true
		return true
	}
	dist := s - g.last // wraps modulo 2^32 by construction
	if dist >= 1 && dist < 1<<31 {
		g.last = s
		return true
	}
	return false
}

// Last returns the last accepted sequence id and whether one exists yet.
func (g *Guard) Last() (uint32, bool) { return g.last, g.hasLast }

// Reset clears the guard back to its zero state, used when a new client
// session begins (sequence ids are per-session, per spec §3).
func (g *Guard) Reset() { *g = Guard{} }
