package procmgr

import (
	db "libos/debug"
	"libos/proc"
	"libos/serr"
)

// Wait4 reaps a zombie child of cur's process matching filter and
// returns its pid and exit code.  Among several zombies the lowest pid
// is reaped.  With WNOHANG it returns NO_PID if no match is a zombie
// yet; otherwise it parks until a matching child exits or cur is
// doomed.
func (mgr *ProcMgr) Wait4(cur *Thread, filter proc.ChildFilter, opts proc.Twaitopt) (proc.Tpid, int, error) {
	if !opts.Valid() {
		return proc.NO_PID, 0, serr.NewErr(serr.TErrInval, opts)
	}
	p := cur.proc

	p.mu.Lock()
	f := filter.Resolve(p.pgid)
	for {
		c, found := p.findZombieL(f)
		if c != nil {
			pid, code := mgr.reapL(p, c)
			p.mu.Unlock()
			db.DPrintf(db.WAIT, "%v wait4 %v: reaped %v code %d", cur, f, pid, code)
			return pid, code, nil
		}
		if !found {
			p.mu.Unlock()
			return proc.NO_PID, 0, mgr.noChild(p, f)
		}
		if opts.NoHang() {
			p.mu.Unlock()
			return proc.NO_PID, 0, nil
		}
		db.DPrintf(db.WAIT, "%v wait4 %v: park", cur, f)
		if _, err := p.waitingChildren.Park(cur.ctx, f); err != nil {
			db.DPrintf(db.WAIT_ERR, "%v wait4 %v: %v", cur, f, err)
			return proc.NO_PID, 0, serr.NewErrWrap(serr.TErrIntr, f, err)
		}
		p.mu.Lock()
	}
}

// noChild picks the error for a wait4 that matches no child.  A specific
// pid that p itself reaped lost a race with another of p's threads.
func (mgr *ProcMgr) noChild(p *Process, f proc.ChildFilter) error {
	if f.Kind == proc.SPECIFIC_PID {
		if reaper, ok := mgr.pt.ReapedBy(f.Id); ok && reaper == p.pid {
			return serr.NewErr(serr.TErrNoSuchProcess, f.Id)
		}
	}
	return serr.NewErr(serr.TErrNoChild, f)
}

// findZombieL returns the lowest-pid zombie child matching f, and
// whether any child matches f at all.  Caller holds lock.
func (p *Process) findZombieL(f proc.ChildFilter) (*Process, bool) {
	var z *Process
	found := false
	for _, c := range p.liveChildrenL() {
		c.mu.Lock()
		match := f.Matches(c.pid, c.pgid)
		zombie := c.status == proc.Tzombie
		c.mu.Unlock()
		if !match {
			continue
		}
		found = true
		if zombie && (z == nil || c.pid < z.pid) {
			z = c
		}
	}
	return z, found
}

// reapL removes zombie c from p's children and from the table.  Caller
// holds p's lock.
func (mgr *ProcMgr) reapL(p, c *Process) (proc.Tpid, int) {
	c.mu.Lock()
	code, ok := c.exit.getStatus()
	if !ok {
		db.DFatalf("reap %v: no exit status", c)
	}
	c.parent = nil
	c.mu.Unlock()
	p.removeChildL(c)
	mgr.pt.RecordReaped(c.pid, p.pid)
	mgr.pt.Remove(c.pid)
	mgr.metrics.procs.Dec()
	mgr.metrics.reaps.Inc()
	return c.pid, code
}
