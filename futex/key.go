package futex

import (
	"fmt"

	"libos/serr"
)

type Tkind int

const (
	KEY_PRIVATE Tkind = iota
	KEY_SHARED
)

// Memory is the address space a futex word lives in.
type Memory interface {
	// ID identifies the address space; private futexes are keyed by it.
	ID() uint64
	Load32(addr uintptr) (uint32, error)
	// SharedKey returns the identity of the memory object backing addr
	// and addr's offset in it, so that the same object mapped at
	// different addresses yields the same key.
	SharedKey(addr uintptr) (uint64, uintptr, error)
}

// Key names the futex word a waiter waits on.  For KEY_PRIVATE, Owner is
// the address space and Offset the virtual address; for KEY_SHARED,
// Owner is the memory object and Offset the offset into it.
type Key struct {
	Kind   Tkind
	Owner  uint64
	Offset uintptr
}

func (k Key) String() string {
	if k.Kind == KEY_PRIVATE {
		return fmt.Sprintf("priv{%d:%#x}", k.Owner, k.Offset)
	}
	return fmt.Sprintf("shared{%d:%#x}", k.Owner, k.Offset)
}

func GetKey(mem Memory, addr uintptr, private bool) (Key, error) {
	if addr%4 != 0 {
		return Key{}, serr.NewErr(serr.TErrInval, fmt.Sprintf("unaligned %#x", addr))
	}
	if private {
		return Key{Kind: KEY_PRIVATE, Owner: mem.ID(), Offset: addr}, nil
	}
	obj, off, err := mem.SharedKey(addr)
	if err != nil {
		return Key{}, err
	}
	return Key{Kind: KEY_SHARED, Owner: obj, Offset: off}, nil
}

// bucketIndex spreads keys over the buckets.  The low two bits of
// Offset are always zero.
func (k Key) bucketIndex() int {
	h := k.Owner*0x9e3779b97f4a7c15 ^ uint64(k.Offset>>2)
	h ^= h >> 29
	h ^= uint64(k.Kind) << 7
	return int(h % bucketCount)
}
