// Package sync re-exports deadlock-checked mutex types so that the
// consensus core's locks (State.mtx, VoteSet.mtx, evidence Pool's store)
// get deadlock detection in development/test builds, matching the
// cometbft's cmtsync package which wraps the same library.
package sync

import (
	"github.com/sasha-s/go-deadlock"
)

// Mutex is a drop-in replacement for sync.Mutex that additionally
// detects lock-ordering deadlocks.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a drop-in replacement for sync.RWMutex with the same
// deadlock detection.
type RWMutex struct {
	deadlock.RWMutex
}
