//go:build deadlock

package procmgr

import (
	"github.com/sasha-s/go-deadlock"
)

// Built with -tags deadlock, process locks report lock-order inversions
// between parents and children.
type mutex = deadlock.Mutex
