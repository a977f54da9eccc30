package procmgr

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"

	db "libos/debug"
	"libos/futex"
	"libos/proc"
	"libos/task"
	"libos/vm"
)

// Entry is the body of a thread.  Its return value is the thread's exit
// code.
type Entry func(t *Thread) int

// Thread is one execution activation of a process.  Its context is
// cancelled when the thread is doomed by a group exit or a kill.
type Thread struct {
	tid    proc.Tpid
	proc   *Process
	vm     *vm.VM
	task   *task.Task
	ctx    context.Context
	cancel context.CancelFunc
	tls    uintptr
	// clearChildTid, if non-zero, is zeroed and futex-woken when the
	// thread exits.
	clearChildTid uintptr
}

func newThread(p *Process, tid proc.Tpid, as *vm.VM) *Thread {
	ctx, cancel := context.WithCancel(p.mgr.ctx)
	return &Thread{
		tid:    tid,
		proc:   p,
		vm:     as,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (t *Thread) String() string {
	return fmt.Sprintf("{tid %v pid %v}", t.tid, t.proc.pid)
}

func (t *Thread) Tid() proc.Tpid {
	return t.tid
}

func (t *Thread) Process() *Process {
	return t.proc
}

func (t *Thread) Mgr() *ProcMgr {
	return t.proc.mgr
}

// VM returns the address space t runs in.
func (t *Thread) VM() *vm.VM {
	return t.vm
}

func (t *Thread) Tls() uintptr {
	return t.tls
}

// Ctx is done once t is doomed.
func (t *Thread) Ctx() context.Context {
	return t.ctx
}

// Done is closed when t's task has terminated.  It is nil for init's
// thread.
func (t *Thread) Done() <-chan struct{} {
	if t.task == nil {
		return nil
	}
	return t.task.Done()
}

// start runs entry as t's task.  Returning from entry exits the thread;
// a panic is an uncaught fault and exits the whole group.
func (mgr *ProcMgr) start(t *Thread, entry Entry) error {
	t.task = task.NewTask(t.tid, func() {
		code := entry(t)
		mgr.Exit(t, code, false)
	}, func(r *panics.Recovered) {
		db.DPrintf(db.EXIT, "%v faulted: %v", t, r.Value)
		mgr.Exit(t, 128+proc.SIGSEGV, true)
	})
	if err := mgr.sched.Start(t.task); err != nil {
		t.task = nil
		return err
	}
	mgr.metrics.threads.Inc()
	return nil
}

// release gives up what t holds once it has left its group: the
// CLEARTID word is zeroed and a joiner woken, the address space
// reference dropped and a non-leader tid freed.
func (mgr *ProcMgr) release(t *Thread) {
	t.cancel()
	if t.clearChildTid != 0 {
		mgr.clearTid(t)
	}
	t.vm.Release()
	if t.tid != t.proc.pid {
		mgr.pt.Free(t.tid)
	}
	if t.task != nil {
		mgr.metrics.threads.Dec()
	}
}

func (mgr *ProcMgr) clearTid(t *Thread) {
	addr := t.clearChildTid
	if err := t.vm.Store32(addr, 0); err != nil {
		db.DPrintf(db.EXIT, "%v clear tid %#x: %v", t, addr, err)
		return
	}
	n, err := mgr.futexes.Wake(t.vm, addr, 1, false, futex.FUTEX_BITSET_MATCH_ANY)
	if err == nil && n == 0 {
		n, err = mgr.futexes.Wake(t.vm, addr, 1, true, futex.FUTEX_BITSET_MATCH_ANY)
	}
	if err != nil {
		db.DPrintf(db.FUTEX_ERR, "%v clear tid wake %#x: %v", t, addr, err)
		return
	}
	mgr.metrics.futexWakes.Add(float64(n))
}
