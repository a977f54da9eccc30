package procmgr

import (
	"libos/proc"
	"libos/serr"
)

func (mgr *ProcMgr) Getpid(cur *Thread) proc.Tpid {
	return cur.proc.pid
}

func (mgr *ProcMgr) Gettid(cur *Thread) proc.Tpid {
	return cur.tid
}

func (mgr *ProcMgr) Getpgid(cur *Thread) proc.Tpid {
	return cur.proc.Pgid()
}

// Getppid returns 0 for init.  A process whose parent already reaped it
// (a doomed thread still running) has no parent left.
func (mgr *ProcMgr) Getppid(cur *Thread) (proc.Tpid, error) {
	p := cur.proc
	if p == mgr.init {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parent == nil {
		return proc.NO_PID, serr.NewErr(serr.TErrNoSuchProcess, "parent")
	}
	return p.parent.pid, nil
}

// Setpgid moves process pid (0 for the caller) into group pgid (0 for
// pid's own).  pid must be the caller or one of its running children.
func (mgr *ProcMgr) Setpgid(cur *Thread, pid, pgid proc.Tpid) error {
	if pgid < 0 || pid < 0 {
		return serr.NewErr(serr.TErrInval, pgid)
	}
	p := cur.proc
	if pid == 0 {
		pid = p.pid
	}
	if pgid == 0 {
		pgid = pid
	}
	if pid == p.pid {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.pgid = pgid
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.liveChildrenL() {
		if c.pid != pid {
			continue
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.status != proc.Trunning {
			return serr.NewErr(serr.TErrNoSuchProcess, pid)
		}
		c.pgid = pgid
		return nil
	}
	return serr.NewErr(serr.TErrNoSuchProcess, pid)
}
