package procmgr

import (
	db "libos/debug"
	"libos/fdtable"
	"libos/proc"
	"libos/serr"
	"libos/vm"
)

// Spawn creates a process running the image at pn as a child of cur's
// process.  The child gets a fresh address space and a copy of the
// caller's file table with actions applied.  It is linked to its parent
// and in the table before it runs; a failure after pid allocation
// undoes both.
func (mgr *ProcMgr) Spawn(cur *Thread, pn string, argv, envp []string, actions []fdtable.FileAction) (proc.Tpid, error) {
	p := cur.proc
	entry, err := mgr.loader.Load(pn)
	if err != nil {
		db.DPrintf(db.SPAWN_ERR, "%v spawn %v: %v", cur, pn, err)
		return proc.NO_PID, err
	}

	p.mu.Lock()
	if !p.runningL() {
		p.mu.Unlock()
		return proc.NO_PID, serr.NewErr(serr.TErrIntr, p.pid)
	}
	files := p.files.Clone()
	pgid, cwd := p.pgid, p.cwd
	p.mu.Unlock()

	if err := files.Apply(actions); err != nil {
		files.Release()
		return proc.NO_PID, err
	}
	pid, err := mgr.pt.Alloc()
	if err != nil {
		files.Release()
		return proc.NO_PID, err
	}
	if len(argv) == 0 {
		argv = []string{pn}
	}
	c := newProcess(mgr, pid, pgid, cwd, argv, envp, vm.New(), files)
	c.mu.Lock()
	t := c.newThreadL(pid)
	c.mu.Unlock()

	if err := mgr.link(p, c); err != nil {
		mgr.discard(c, t, true)
		return proc.NO_PID, err
	}
	if err := mgr.start(t, entry); err != nil {
		db.DPrintf(db.SPAWN_ERR, "%v start %v: %v", cur, c, err)
		mgr.unlink(c)
		mgr.discard(c, t, false)
		return proc.NO_PID, err
	}
	mgr.metrics.spawns.Inc()
	db.DPrintf(db.SPAWN, "%v spawned %v", cur, c)
	return pid, nil
}

// link makes c a child of parent and enters it in the table.
func (mgr *ProcMgr) link(parent, c *Process) error {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if !parent.runningL() {
		return serr.NewErr(serr.TErrIntr, parent.pid)
	}
	c.mu.Lock()
	c.parent = parent
	c.mu.Unlock()
	parent.addChildL(c)
	mgr.pt.Insert(c.pid, c)
	mgr.metrics.procs.Inc()
	return nil
}

// unlink undoes link for a process that never ran.  Its parent may have
// changed by reparenting in between, so retry until the parent locked
// is c's parent.  Waiters that may have seen c rescan.
func (mgr *ProcMgr) unlink(c *Process) {
	for {
		c.mu.Lock()
		parent := c.parent
		c.mu.Unlock()

		parent.mu.Lock()
		c.mu.Lock()
		if c.parent != parent {
			c.mu.Unlock()
			parent.mu.Unlock()
			continue
		}
		c.parent = nil
		c.status = proc.Tzombie
		pgid := c.pgid
		c.mu.Unlock()
		parent.removeChildL(c)
		mgr.pt.Remove(c.pid)
		mgr.metrics.procs.Dec()
		parent.waitingChildren.WakeAll(func(f proc.ChildFilter) bool {
			return f.Matches(c.pid, pgid)
		}, func(proc.ChildFilter) proc.Tpid { return c.pid })
		parent.mu.Unlock()
		return
	}
}

// discard releases the resources of a process that never ran.  free is
// set if its pid was allocated but never entered in the table.
func (mgr *ProcMgr) discard(c *Process, t *Thread, free bool) {
	t.cancel()
	t.vm.Release()
	c.vm.Release()
	c.files.Release()
	if free {
		mgr.pt.Free(c.pid)
	}
}
