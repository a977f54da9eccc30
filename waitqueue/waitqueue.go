// Package waitqueue is the blocking primitive the process core builds
// on: wait4 parks on a process's queue of waiting parents and futex
// waiters park on a bucket queue.
//
// A WaitQueue does not own a lock.  It is bound to the lock of the
// structure it belongs to (a process, a futex bucket), and the owner
// holds that lock while it checks its condition and enqueues, and while
// it wakes.  That makes "check then park" atomic with respect to "change
// then wake" without a second lock.
package waitqueue

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	db "libos/debug"
)

// Waiter is one parked execution context.  Once woken it receives
// exactly one result on c.
type Waiter[F any, R any] struct {
	filter F
	c      chan R
	elem   *list.Element
	// q is the queue w is enqueued on, or nil once w has been woken or
	// removed.  Changed only under q's lock.
	q atomic.Pointer[WaitQueue[F, R]]
}

type WaitQueue[F any, R any] struct {
	lk      sync.Locker
	waiters *list.List
}

func NewWaitQueue[F any, R any](lk sync.Locker) *WaitQueue[F, R] {
	return &WaitQueue[F, R]{
		lk:      lk,
		waiters: list.New(),
	}
}

// Caller holds lock
func (wq *WaitQueue[F, R]) Len() int {
	return wq.waiters.Len()
}

// Count returns the number of waiters whose filter matches.  Caller
// holds lock.
func (wq *WaitQueue[F, R]) Count(match func(F) bool) int {
	n := 0
	for e := wq.waiters.Front(); e != nil; e = e.Next() {
		if match(e.Value.(*Waiter[F, R]).filter) {
			n++
		}
	}
	return n
}

// Enqueue adds a waiter with filter at the tail of wq.  Caller holds
// lock; the waiter must be completed with Wait.
func (wq *WaitQueue[F, R]) Enqueue(filter F) *Waiter[F, R] {
	w := &Waiter[F, R]{
		filter: filter,
		c:      make(chan R, 1),
	}
	w.elem = wq.waiters.PushBack(w)
	w.q.Store(wq)
	return w
}

// Park enqueues a waiter with filter, releases the lock and blocks until
// the waiter is woken or ctx is done.  Caller holds lock; Park returns
// without it.
func (wq *WaitQueue[F, R]) Park(ctx context.Context, filter F) (R, error) {
	w := wq.Enqueue(filter)
	wq.lk.Unlock()
	return w.Wait(ctx)
}

// Caller holds lock
func (wq *WaitQueue[F, R]) wakeL(w *Waiter[F, R], r R) {
	wq.waiters.Remove(w.elem)
	w.elem = nil
	w.c <- r
	w.q.Store(nil)
}

// Caller holds lock
func (wq *WaitQueue[F, R]) wake(match func(F) bool, result func(F) R, n int, all bool) int {
	done := 0
	for e := wq.waiters.Front(); e != nil && (all || done < n); {
		w := e.Value.(*Waiter[F, R])
		e = e.Next()
		if !match(w.filter) {
			continue
		}
		wq.wakeL(w, result(w.filter))
		done++
	}
	if done > 0 {
		db.DPrintf(db.WAITQ, "%p: woke %d, %d left", wq, done, wq.waiters.Len())
	}
	return done
}

// WakeAll wakes and removes every waiter whose filter matches,
// delivering result(filter) to each.  Caller holds lock.
func (wq *WaitQueue[F, R]) WakeAll(match func(F) bool, result func(F) R) int {
	return wq.wake(match, result, 0, true)
}

// Wake wakes up to n matching waiters in the order they were enqueued.
// Caller holds lock.
func (wq *WaitQueue[F, R]) Wake(match func(F) bool, result func(F) R, n int) int {
	return wq.wake(match, result, n, false)
}

// Requeue moves up to n matching waiters, in order, to the tail of dst,
// rewriting their filter with retarget.  Caller holds the locks of both
// wq and dst.
func (wq *WaitQueue[F, R]) Requeue(dst *WaitQueue[F, R], match func(F) bool, retarget func(F) F, n int) int {
	done := 0
	for e := wq.waiters.Front(); e != nil && done < n; {
		w := e.Value.(*Waiter[F, R])
		e = e.Next()
		if !match(w.filter) {
			continue
		}
		w.filter = retarget(w.filter)
		if dst != wq {
			wq.waiters.Remove(w.elem)
			w.elem = dst.waiters.PushBack(w)
			w.q.Store(dst)
		}
		done++
	}
	return done
}

// Wait blocks until w is woken or ctx is done.  If both happen
// concurrently exactly one of them wins: either the result is returned,
// or ctx's error is returned and w is no longer on any queue.
func (w *Waiter[F, R]) Wait(ctx context.Context) (R, error) {
	select {
	case r := <-w.c:
		return r, nil
	case <-ctx.Done():
	}
	if w.dequeue() {
		var r R
		return r, ctx.Err()
	}
	// A waker removed w before we could; its result is on the way.
	return <-w.c, nil
}

// dequeue removes w from its queue and reports whether it was still
// queued.  w may be requeued concurrently, so retry until the queue we
// locked is the one w is on.
func (w *Waiter[F, R]) dequeue() bool {
	for {
		q := w.q.Load()
		if q == nil {
			return false
		}
		q.lk.Lock()
		if w.q.Load() != q {
			q.lk.Unlock()
			continue
		}
		q.waiters.Remove(w.elem)
		w.elem = nil
		w.q.Store(nil)
		q.lk.Unlock()
		return true
	}
}
