package procmgr

import (
	db "libos/debug"
	"libos/fdtable"
	"libos/proc"
	"libos/serr"
	"libos/vm"
)

// CloneArgs are clone's pointer arguments, addresses in the caller's
// address space.
type CloneArgs struct {
	Entry     Entry
	ParentTid uintptr
	ChildTid  uintptr
	Tls       uintptr
}

// Clone creates a thread in cur's process (CLONE_THREAD) or a derived
// process sharing or copying cur's address space and file table as
// flags ask.  It returns the new thread's tid, which for a new process
// is its pid.
func (mgr *ProcMgr) Clone(cur *Thread, flags proc.CloneFlags, args *CloneArgs) (proc.Tpid, error) {
	if s := flags.Validate(); s != "" {
		db.DPrintf(db.CLONE_ERR, "%v clone %v: %v", cur, flags, s)
		return proc.NO_PID, serr.NewErr(serr.TErrInval, s)
	}
	if args == nil || args.Entry == nil {
		return proc.NO_PID, serr.NewErr(serr.TErrInval, "no entry")
	}
	if flags.Has(proc.CLONE_PARENT) && cur.proc == mgr.init {
		return proc.NO_PID, serr.NewErr(serr.TErrInval, "CLONE_PARENT from init")
	}
	var tid proc.Tpid
	var err error
	if flags.Has(proc.CLONE_THREAD) {
		tid, err = mgr.cloneThread(cur, flags, args)
	} else {
		tid, err = mgr.cloneProcess(cur, flags, args)
	}
	if err != nil {
		db.DPrintf(db.CLONE_ERR, "%v clone %v: %v", cur, flags, err)
		return proc.NO_PID, err
	}
	mgr.metrics.clones.Inc()
	db.DPrintf(db.CLONE, "%v clone %v -> %v", cur, flags, tid)
	return tid, nil
}

// settid performs the SETTID stores and records CLEARTID and TLS for the
// new thread t.  A zero address is ignored.
func settid(cur, t *Thread, flags proc.CloneFlags, args *CloneArgs) error {
	if flags.Has(proc.CLONE_PARENT_SETTID) && args.ParentTid != 0 {
		if err := cur.vm.Store32(args.ParentTid, uint32(t.tid)); err != nil {
			return err
		}
	}
	if flags.Has(proc.CLONE_CHILD_SETTID) && args.ChildTid != 0 {
		if err := t.vm.Store32(args.ChildTid, uint32(t.tid)); err != nil {
			return err
		}
	}
	if flags.Has(proc.CLONE_CHILD_CLEARTID) {
		t.clearChildTid = args.ChildTid
	}
	if flags.Has(proc.CLONE_SETTLS) {
		t.tls = args.Tls
	}
	return nil
}

func (mgr *ProcMgr) cloneThread(cur *Thread, flags proc.CloneFlags, args *CloneArgs) (proc.Tpid, error) {
	p := cur.proc
	tid, err := mgr.pt.Alloc()
	if err != nil {
		return proc.NO_PID, err
	}
	p.mu.Lock()
	if !p.runningL() {
		p.mu.Unlock()
		mgr.pt.Free(tid)
		return proc.NO_PID, serr.NewErr(serr.TErrIntr, p.pid)
	}
	t := p.newThreadL(tid)
	p.mu.Unlock()

	err = settid(cur, t, flags, args)
	if err == nil {
		err = mgr.start(t, args.Entry)
	}
	if err != nil {
		p.mu.Lock()
		p.removeThreadL(t)
		p.mu.Unlock()
		t.clearChildTid = 0
		mgr.release(t)
		return proc.NO_PID, err
	}
	return tid, nil
}

func (mgr *ProcMgr) cloneProcess(cur *Thread, flags proc.CloneFlags, args *CloneArgs) (proc.Tpid, error) {
	p := cur.proc

	p.mu.Lock()
	if !p.runningL() {
		p.mu.Unlock()
		return proc.NO_PID, serr.NewErr(serr.TErrIntr, p.pid)
	}
	parent := p
	if flags.Has(proc.CLONE_PARENT) {
		parent = p.parent
	}
	var files *fdtable.FileTable
	if flags.Has(proc.CLONE_FILES) {
		files = p.files.Ref()
	} else {
		files = p.files.Clone()
	}
	pgid, cwd, argv, envp := p.pgid, p.cwd, p.args, p.env
	p.mu.Unlock()

	var as *vm.VM
	if flags.Has(proc.CLONE_VM) {
		as = cur.vm.Ref()
	} else {
		var err error
		if as, err = cur.vm.Fork(); err != nil {
			files.Release()
			return proc.NO_PID, err
		}
	}
	pid, err := mgr.pt.Alloc()
	if err != nil {
		as.Release()
		files.Release()
		return proc.NO_PID, err
	}
	c := newProcess(mgr, pid, pgid, cwd, argv, envp, as, files)
	c.mu.Lock()
	t := c.newThreadL(pid)
	c.mu.Unlock()

	if err := settid(cur, t, flags, args); err != nil {
		mgr.discard(c, t, true)
		return proc.NO_PID, err
	}
	if err := mgr.link(parent, c); err != nil {
		mgr.discard(c, t, true)
		return proc.NO_PID, err
	}
	if err := mgr.start(t, args.Entry); err != nil {
		mgr.unlink(c)
		mgr.discard(c, t, false)
		return proc.NO_PID, err
	}
	return pid, nil
}
