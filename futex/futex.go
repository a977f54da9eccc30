// Package futex implements the futex wait/wake contract on top of
// waitqueue: a waiter atomically checks that a 32-bit word still holds
// an expected value and parks on the word's key until a waker names the
// same key.
package futex

import (
	"context"
	"sync"
	"time"

	db "libos/debug"
	"libos/serr"
	"libos/waitqueue"
)

const (
	bucketCountBits = 10
	bucketCount     = 1 << bucketCountBits
)

type waiter struct {
	key     Key
	bitmask uint32
}

type bucket struct {
	sync.Mutex
	q *waitqueue.WaitQueue[waiter, struct{}]
}

// Manager holds the futex buckets shared by all processes.  A waiter
// for key k always sits in bucket k.bucketIndex().
type Manager struct {
	buckets [bucketCount]bucket
}

func NewManager() *Manager {
	m := &Manager{}
	for i := range m.buckets {
		b := &m.buckets[i]
		b.q = waitqueue.NewWaitQueue[waiter, struct{}](b)
	}
	return m
}

func (m *Manager) lockBucket(k Key) *bucket {
	b := &m.buckets[k.bucketIndex()]
	b.Lock()
	return b
}

// lockBuckets locks the buckets of k1 and k2 in index order.  The
// returned buckets are equal if the keys hash to the same bucket, in
// which case it is locked once.
func (m *Manager) lockBuckets(k1, k2 Key) (*bucket, *bucket) {
	i1, i2 := k1.bucketIndex(), k2.bucketIndex()
	b1, b2 := &m.buckets[i1], &m.buckets[i2]
	switch {
	case i1 < i2:
		b1.Lock()
		b2.Lock()
	case i1 > i2:
		b2.Lock()
		b1.Lock()
	default:
		b1.Lock()
	}
	return b1, b2
}

func unlockBuckets(b1, b2 *bucket) {
	b1.Unlock()
	if b2 != b1 {
		b2.Unlock()
	}
}

func matchKey(k Key, bitmask uint32) func(waiter) bool {
	return func(w waiter) bool {
		return w.key == k && w.bitmask&bitmask != 0
	}
}

func woken(waiter) struct{} { return struct{}{} }

// Wait checks that the word at addr holds val and, if so, blocks until
// woken by a matching Wake, timeout elapses (if positive) or ctx is
// done.  The check and the enqueue happen under the bucket lock, so a
// Wake issued after the word changed cannot be missed.
func (m *Manager) Wait(ctx context.Context, mem Memory, addr uintptr, val uint32, private bool, bitmask uint32, timeout time.Duration) error {
	if bitmask == 0 {
		return serr.NewErr(serr.TErrInval, "bitmask 0")
	}
	k, err := GetKey(mem, addr, private)
	if err != nil {
		return err
	}
	b := m.lockBucket(k)
	cur, err := mem.Load32(addr)
	if err != nil {
		b.Unlock()
		return err
	}
	if cur != val {
		b.Unlock()
		db.DPrintf(db.FUTEX, "Wait %v: %d != %d", k, cur, val)
		return serr.NewErr(serr.TErrAgain, k)
	}
	wctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	db.DPrintf(db.FUTEX, "Wait %v val %d timeout %v", k, val, timeout)
	if _, err := b.q.Park(wctx, waiter{key: k, bitmask: bitmask}); err != nil {
		if ctx.Err() != nil {
			db.DPrintf(db.FUTEX_ERR, "Wait %v interrupted", k)
			return serr.NewErrWrap(serr.TErrIntr, k, err)
		}
		db.DPrintf(db.FUTEX, "Wait %v timed out", k)
		return serr.NewErr(serr.TErrTimedOut, k)
	}
	return nil
}

// Wake wakes up to n waiters on addr whose bitmask intersects bitmask,
// in the order they parked, and returns how many it woke.
func (m *Manager) Wake(mem Memory, addr uintptr, n int, private bool, bitmask uint32) (int, error) {
	if n < 0 || bitmask == 0 {
		return 0, serr.NewErr(serr.TErrInval, n)
	}
	k, err := GetKey(mem, addr, private)
	if err != nil {
		return 0, err
	}
	b := m.lockBucket(k)
	defer b.Unlock()
	done := b.q.Wake(matchKey(k, bitmask), woken, n)
	db.DPrintf(db.FUTEX, "Wake %v n %d: woke %d", k, n, done)
	return done, nil
}

func (m *Manager) doRequeue(mem Memory, addr, naddr uintptr, private bool, checkval bool, val uint32, nwake, nreq int) (int, error) {
	if nwake < 0 || nreq < 0 {
		return 0, serr.NewErr(serr.TErrInval, "requeue count")
	}
	k1, err := GetKey(mem, addr, private)
	if err != nil {
		return 0, err
	}
	k2, err := GetKey(mem, naddr, private)
	if err != nil {
		return 0, err
	}
	b1, b2 := m.lockBuckets(k1, k2)
	defer unlockBuckets(b1, b2)

	if checkval {
		cur, err := mem.Load32(addr)
		if err != nil {
			return 0, err
		}
		if cur != val {
			return 0, serr.NewErr(serr.TErrAgain, k1)
		}
	}
	match := matchKey(k1, FUTEX_BITSET_MATCH_ANY)
	done := b1.q.Wake(match, woken, nwake)
	moved := b1.q.Requeue(b2.q, match, func(w waiter) waiter {
		w.key = k2
		return w
	}, nreq)
	db.DPrintf(db.FUTEX, "Requeue %v -> %v: woke %d moved %d", k1, k2, done, moved)
	return done + moved, nil
}

// Requeue wakes up to nwake waiters on addr and moves up to nreq of the
// rest to naddr.  It returns the number woken plus the number moved.
func (m *Manager) Requeue(mem Memory, addr, naddr uintptr, private bool, nwake, nreq int) (int, error) {
	return m.doRequeue(mem, addr, naddr, private, false, 0, nwake, nreq)
}

// CmpRequeue is Requeue, but only if the word at addr still holds val.
func (m *Manager) CmpRequeue(mem Memory, addr, naddr uintptr, private bool, val uint32, nwake, nreq int) (int, error) {
	return m.doRequeue(mem, addr, naddr, private, true, val, nwake, nreq)
}

// Waiters returns the number of waiters parked on addr.
func (m *Manager) Waiters(mem Memory, addr uintptr, private bool) (int, error) {
	k, err := GetKey(mem, addr, private)
	if err != nil {
		return 0, err
	}
	b := m.lockBucket(k)
	defer b.Unlock()
	return b.q.Count(func(w waiter) bool { return w.key == k }), nil
}
