//go:build !deadlock

package procmgr

import "sync"

type mutex = sync.Mutex
