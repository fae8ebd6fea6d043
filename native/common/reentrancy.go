package common

import (
	"errors"
	"sync/atomic"
)

// ErrReentrantCall is returned when a state-mutating entry point is invoked
// while another one on the same guard is still running.
var ErrReentrantCall = errors.New("reentrant call")

// ReentrancyGuard is a lock flag held for the duration of a mutating call. The
// zero value is unlocked.
type ReentrancyGuard struct {
	locked atomic.Bool
}

// Enter sets the flag or fails with ErrReentrantCall when it is already set.
func (g *ReentrancyGuard) Enter() error {
	if g == nil {
		return nil
	}
	if !g.locked.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Exit clears the flag.
func (g *ReentrancyGuard) Exit() {
	if g == nil {
		return
	}
	g.locked.Store(false)
}

// Locked reports whether a guarded call is in progress.
func (g *ReentrancyGuard) Locked() bool {
	if g == nil {
		return false
	}
	return g.locked.Load()
}
