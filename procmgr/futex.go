package procmgr

import (
	"time"

	db "libos/debug"
	"libos/futex"
	"libos/serr"
)

// FutexWait blocks cur while the word at addr in its address space
// holds val.  A zero timeout waits without deadline.
func (mgr *ProcMgr) FutexWait(cur *Thread, addr uintptr, val uint32, flags futex.Flags, timeout time.Duration) error {
	return mgr.futexWait(cur, addr, val, flags, futex.FUTEX_BITSET_MATCH_ANY, timeout)
}

func (mgr *ProcMgr) futexWait(cur *Thread, addr uintptr, val uint32, flags futex.Flags, bitmask uint32, timeout time.Duration) error {
	return mgr.futexes.Wait(cur.ctx, cur.vm, addr, val, flags.Private(), bitmask, timeout)
}

// FutexWake wakes up to n threads waiting on addr and returns how many
// it woke.
func (mgr *ProcMgr) FutexWake(cur *Thread, addr uintptr, n int, flags futex.Flags) (int, error) {
	return mgr.futexWake(cur, addr, n, flags, futex.FUTEX_BITSET_MATCH_ANY)
}

func (mgr *ProcMgr) futexWake(cur *Thread, addr uintptr, n int, flags futex.Flags, bitmask uint32) (int, error) {
	n, err := mgr.futexes.Wake(cur.vm, addr, n, flags.Private(), bitmask)
	if err != nil {
		return 0, err
	}
	mgr.metrics.futexWakes.Add(float64(n))
	return n, nil
}

// Futex dispatches a futex(2) call.  val2 is the requeue count, which
// futex(2) passes in the timeout argument.
func (mgr *ProcMgr) Futex(cur *Thread, addr uintptr, op uint32, val uint32, timeout time.Duration, addr2 uintptr, val2 int, val3 uint32) (int, error) {
	fop, flags, err := futex.OpAndFlagsFromUint32(op)
	if err != nil {
		db.DPrintf(db.FUTEX_ERR, "%v futex op %#x: %v", cur, op, err)
		return 0, err
	}
	db.DPrintf(db.FUTEX, "%v futex %v %v addr %#x val %d", cur, fop, flags, addr, val)
	switch fop {
	case futex.FUTEX_WAIT:
		return 0, mgr.futexWait(cur, addr, val, flags, futex.FUTEX_BITSET_MATCH_ANY, timeout)
	case futex.FUTEX_WAIT_BITSET:
		return 0, mgr.futexWait(cur, addr, val, flags, val3, timeout)
	case futex.FUTEX_WAKE:
		return mgr.futexWake(cur, addr, int(val), flags, futex.FUTEX_BITSET_MATCH_ANY)
	case futex.FUTEX_WAKE_BITSET:
		return mgr.futexWake(cur, addr, int(val), flags, val3)
	case futex.FUTEX_REQUEUE:
		return mgr.futexes.Requeue(cur.vm, addr, addr2, flags.Private(), int(val), val2)
	case futex.FUTEX_CMP_REQUEUE:
		return mgr.futexes.CmpRequeue(cur.vm, addr, addr2, flags.Private(), val3, int(val), val2)
	default:
		return 0, serr.NewErr(serr.TErrNotSupported, fop)
	}
}
