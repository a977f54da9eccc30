package futex

import (
	"fmt"

	"libos/serr"
)

// Op is the command part of a futex(2) op word.
type Op uint32

const (
	FUTEX_WAIT Op = iota
	FUTEX_WAKE
	FUTEX_FD
	FUTEX_REQUEUE
	FUTEX_CMP_REQUEUE
	FUTEX_WAKE_OP
	FUTEX_LOCK_PI
	FUTEX_UNLOCK_PI
	FUTEX_TRYLOCK_PI
	FUTEX_WAIT_BITSET
	FUTEX_WAKE_BITSET
)

// Flags are the modifier bits of a futex(2) op word.
type Flags uint32

const (
	FUTEX_PRIVATE_FLAG   Flags = 128
	FUTEX_CLOCK_REALTIME Flags = 256

	FUTEX_FLAGS_MASK = FUTEX_PRIVATE_FLAG | FUTEX_CLOCK_REALTIME
	FUTEX_CMD_MASK   = ^uint32(FUTEX_FLAGS_MASK)

	FUTEX_BITSET_MATCH_ANY = ^uint32(0)
)

func (op Op) String() string {
	switch op {
	case FUTEX_WAIT:
		return "WAIT"
	case FUTEX_WAKE:
		return "WAKE"
	case FUTEX_FD:
		return "FD"
	case FUTEX_REQUEUE:
		return "REQUEUE"
	case FUTEX_CMP_REQUEUE:
		return "CMP_REQUEUE"
	case FUTEX_WAKE_OP:
		return "WAKE_OP"
	case FUTEX_LOCK_PI:
		return "LOCK_PI"
	case FUTEX_UNLOCK_PI:
		return "UNLOCK_PI"
	case FUTEX_TRYLOCK_PI:
		return "TRYLOCK_PI"
	case FUTEX_WAIT_BITSET:
		return "WAIT_BITSET"
	case FUTEX_WAKE_BITSET:
		return "WAKE_BITSET"
	default:
		return fmt.Sprintf("op(%d)", uint32(op))
	}
}

func (f Flags) Private() bool {
	return f&FUTEX_PRIVATE_FLAG != 0
}

func (f Flags) Realtime() bool {
	return f&FUTEX_CLOCK_REALTIME != 0
}

func (f Flags) String() string {
	s := ""
	if f.Private() {
		s += "PRIVATE"
	}
	if f.Realtime() {
		if s != "" {
			s += "|"
		}
		s += "CLOCK_REALTIME"
	}
	return s
}

// OpAndFlagsFromUint32 splits a futex(2) op word.  Operations this engine
// does not implement fail with TErrNotSupported, unknown ones with
// TErrInval.
func OpAndFlagsFromUint32(bits uint32) (Op, Flags, error) {
	op := Op(bits & FUTEX_CMD_MASK)
	flags := Flags(bits) & FUTEX_FLAGS_MASK
	switch op {
	case FUTEX_WAIT, FUTEX_WAIT_BITSET:
	case FUTEX_WAKE, FUTEX_REQUEUE, FUTEX_CMP_REQUEUE, FUTEX_WAKE_BITSET:
		if flags.Realtime() {
			return op, flags, serr.NewErr(serr.TErrNotSupported, op)
		}
	case FUTEX_FD, FUTEX_WAKE_OP, FUTEX_LOCK_PI, FUTEX_UNLOCK_PI, FUTEX_TRYLOCK_PI:
		return op, flags, serr.NewErr(serr.TErrNotSupported, op)
	default:
		return op, flags, serr.NewErr(serr.TErrInval, bits)
	}
	return op, flags, nil
}
