package procmgr

import (
	"libos/config"
	db "libos/debug"
	"libos/proc"
	"libos/serr"
	"libos/task"
)

// Exit terminates cur.  If wholeGroup is set, or cur is the last live
// thread, the process becomes a zombie with code and its other threads
// are doomed.  Exit does not return.
func (mgr *ProcMgr) Exit(cur *Thread, code int, wholeGroup bool) {
	mgr.exit(cur, code, wholeGroup)
	task.Exit()
}

func (mgr *ProcMgr) exit(cur *Thread, code int, wholeGroup bool) {
	p := cur.proc

	p.mu.Lock()
	p.removeThreadL(cur)
	zombie := p.runningL() && (wholeGroup || len(p.group.threads) == 0)
	if zombie {
		mgr.exitingL(p, code)
	}
	p.mu.Unlock()

	db.DPrintf(db.EXIT, "%v exit %d group %v zombie %v", cur, code, wholeGroup, zombie)
	mgr.release(cur)
	if zombie {
		mgr.zombify(p)
	}
}

// exitingL records code and dooms p's threads.  Caller holds lock.
func (mgr *ProcMgr) exitingL(p *Process, code int) {
	if p == mgr.init {
		db.DFatalf("init exited with %d", code)
	}
	p.exiting = true
	p.exit.setStatus(code)
	p.doomL()
}

// zombify turns an exiting p into a zombie.  p's children are handed to
// a new parent first, so that a parent reaping p never finds p's
// children missing from both.  Setting Zombie and reading the parent
// happen under p's lock; a concurrent reparent of p then either sees the
// zombie and announces it, or has already changed the parent we wake.
func (mgr *ProcMgr) zombify(p *Process) {
	p.mu.Lock()
	as, files := p.vm, p.files
	p.vm, p.files = nil, nil
	children := p.liveChildrenL()
	p.mu.Unlock()

	as.Release()
	files.Release()
	for _, c := range children {
		mgr.reparent(p, c)
	}

	p.mu.Lock()
	p.status = proc.Tzombie
	parent, pgid := p.parent, p.pgid
	p.mu.Unlock()
	mgr.metrics.exits.Inc()

	parent.mu.Lock()
	n := parent.waitingChildren.WakeAll(func(f proc.ChildFilter) bool {
		return f.Matches(p.pid, pgid)
	}, func(proc.ChildFilter) proc.Tpid { return p.pid })
	parent.mu.Unlock()
	db.DPrintf(db.EXIT, "%v zombie; woke %d in %v", p, n, parent)
}

// reaper returns the process that inherits the children of p.
func (mgr *ProcMgr) reaper(p *Process) *Process {
	if mgr.cfg.Reparent == config.REPARENT_INIT {
		return mgr.init
	}
	p.mu.Lock()
	a := p.parent
	p.mu.Unlock()
	for a != nil {
		a.mu.Lock()
		running, next := a.runningL(), a.parent
		a.mu.Unlock()
		if running {
			return a
		}
		a = next
	}
	return mgr.init
}

// reparent moves c from the exiting p to p's reaper.  Locks are taken
// ancestor first: the reaper, then p, then c.  A child that is already a
// zombie is announced to the reaper's waiters, since its own wake went
// to p.
func (mgr *ProcMgr) reparent(p, c *Process) {
	for {
		r := mgr.reaper(p)
		r.mu.Lock()
		if !r.runningL() {
			// r started exiting after reaper picked it
			r.mu.Unlock()
			continue
		}
		p.mu.Lock()
		c.mu.Lock()
		if c.parent != p {
			// c was reaped or unlinked while p was exiting
			c.mu.Unlock()
			p.mu.Unlock()
			r.mu.Unlock()
			return
		}
		p.removeChildL(c)
		c.parent = r
		r.addChildL(c)
		zombie, pgid := c.status == proc.Tzombie, c.pgid
		c.mu.Unlock()
		p.mu.Unlock()
		if zombie {
			r.waitingChildren.WakeAll(func(f proc.ChildFilter) bool {
				return f.Matches(c.pid, pgid)
			}, func(proc.ChildFilter) proc.Tpid { return c.pid })
		}
		r.mu.Unlock()
		db.DPrintf(db.REPARENT, "%v: parent %v -> %v zombie %v", c, p.pid, r.pid, zombie)
		return
	}
}

// Kill terminates process pid as an uncaught SIGKILL would: the whole
// group exits with 128+SIGKILL.  Its threads are doomed; they leave
// when their blocked calls return TErrIntr.
func (mgr *ProcMgr) Kill(pid proc.Tpid) error {
	p, ok := mgr.pt.Lookup(pid)
	if !ok {
		return serr.NewErr(serr.TErrNoSuchProcess, pid)
	}
	if p == mgr.init {
		return serr.NewErr(serr.TErrPerm, pid)
	}
	p.mu.Lock()
	if !p.runningL() {
		p.mu.Unlock()
		return nil
	}
	mgr.exitingL(p, 128+proc.SIGKILL)
	p.mu.Unlock()
	db.DPrintf(db.EXIT, "Kill %v", p)
	mgr.zombify(p)
	return nil
}
