// Package proctable is the registry of live processes, keyed by pid,
// and the allocator of pids and thread ids.
package proctable

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/slices"

	"libos/config"
	db "libos/debug"
	"libos/proc"
	"libos/serr"
)

type Table[T any] struct {
	sync.RWMutex
	init    proc.Tpid
	max     proc.Tpid
	wrap    proc.Tpid
	next    proc.Tpid
	inuse   map[proc.Tpid]bool
	entries map[proc.Tpid]T
	reaped  *lru.Cache[proc.Tpid, proc.Tpid]
}

func NewTable[T any](cfg *config.Config) *Table[T] {
	reaped, err := lru.New[proc.Tpid, proc.Tpid](cfg.ReapHistory)
	if err != nil {
		db.DFatalf("NewTable: %v", err)
	}
	return &Table[T]{
		init:    proc.Tpid(cfg.InitPid),
		max:     proc.Tpid(cfg.MaxPid),
		wrap:    proc.Tpid(cfg.PidWrap),
		next:    proc.Tpid(cfg.InitPid),
		inuse:   make(map[proc.Tpid]bool),
		entries: make(map[proc.Tpid]T),
		reaped:  reaped,
	}
}

// Alloc reserves the next free id.  Ids increase until max and then
// wrap to the wrap point, skipping ids still reserved.
func (pt *Table[T]) Alloc() (proc.Tpid, error) {
	pt.Lock()
	defer pt.Unlock()

	n := int(pt.max - pt.init + 1)
	for i := 0; i < n; i++ {
		pid := pt.next
		pt.next++
		if pt.next > pt.max {
			pt.next = pt.wrap
		}
		if !pt.inuse[pid] {
			pt.inuse[pid] = true
			// A reused pid is no longer the one reaped earlier.
			pt.reaped.Remove(pid)
			db.DPrintf(db.PROCTAB, "Alloc %v", pid)
			return pid, nil
		}
	}
	db.DPrintf(db.PROCTAB_ERR, "Alloc: %d ids in use", len(pt.inuse))
	return proc.NO_PID, serr.NewErr(serr.TErrNoResource, "pid space")
}

// Free releases an id that was allocated but never inserted, or a
// thread id.
func (pt *Table[T]) Free(pid proc.Tpid) {
	pt.Lock()
	defer pt.Unlock()
	if _, ok := pt.entries[pid]; ok {
		db.DFatalf("Free %v: still in table", pid)
	}
	if !pt.inuse[pid] {
		db.DFatalf("Free %v: not allocated", pid)
	}
	delete(pt.inuse, pid)
	db.DPrintf(db.PROCTAB, "Free %v", pid)
}

func (pt *Table[T]) Insert(pid proc.Tpid, v T) {
	pt.Lock()
	defer pt.Unlock()
	if !pt.inuse[pid] {
		db.DFatalf("Insert %v: not allocated", pid)
	}
	if _, ok := pt.entries[pid]; ok {
		db.DFatalf("Insert %v: exists", pid)
	}
	pt.entries[pid] = v
	db.DPrintf(db.PROCTAB, "Insert %v", pid)
}

func (pt *Table[T]) Lookup(pid proc.Tpid) (T, bool) {
	pt.RLock()
	defer pt.RUnlock()
	v, ok := pt.entries[pid]
	return v, ok
}

// Remove deletes pid's entry and frees the id.
func (pt *Table[T]) Remove(pid proc.Tpid) {
	pt.Lock()
	defer pt.Unlock()
	if _, ok := pt.entries[pid]; !ok {
		db.DFatalf("Remove %v: absent", pid)
	}
	delete(pt.entries, pid)
	delete(pt.inuse, pid)
	db.DPrintf(db.PROCTAB, "Remove %v", pid)
}

// RecordReaped remembers that reaper reaped pid, until pid is reused or
// the history evicts it.
func (pt *Table[T]) RecordReaped(pid, reaper proc.Tpid) {
	pt.reaped.Add(pid, reaper)
}

func (pt *Table[T]) ReapedBy(pid proc.Tpid) (proc.Tpid, bool) {
	return pt.reaped.Get(pid)
}

// Pids returns the pids in the table in increasing order.
func (pt *Table[T]) Pids() []proc.Tpid {
	pt.RLock()
	defer pt.RUnlock()
	pids := make([]proc.Tpid, 0, len(pt.entries))
	for pid := range pt.entries {
		pids = append(pids, pid)
	}
	slices.Sort(pids)
	return pids
}

func (pt *Table[T]) Len() int {
	pt.RLock()
	defer pt.RUnlock()
	return len(pt.entries)
}

// Allocated returns the number of reserved ids, inserted or not.
func (pt *Table[T]) Allocated() int {
	pt.RLock()
	defer pt.RUnlock()
	return len(pt.inuse)
}
