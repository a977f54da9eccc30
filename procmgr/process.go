package procmgr

import (
	"fmt"
	"weak"

	"golang.org/x/exp/slices"

	db "libos/debug"
	"libos/fdtable"
	"libos/proc"
	"libos/vm"
	"libos/waitqueue"
)

// ThreadGroup is the set of live threads of a process; its tgid is the
// process's pid.
type ThreadGroup struct {
	tgid    proc.Tpid
	threads map[proc.Tpid]*Thread
}

type Process struct {
	mu     mutex
	mgr    *ProcMgr
	pid    proc.Tpid
	pgid   proc.Tpid
	status proc.Tstatus
	exit   exitStatus
	cwd    string
	args   []string
	env    []string
	// exiting is set when p starts turning into a zombie; from then on
	// p gains no children or threads.
	exiting bool
	// parent is nil only for init and for a reaped process.
	parent   *Process
	children []weak.Pointer[Process]
	// waitingChildren holds threads in wait4; a child's exit wakes
	// those whose filter matches it.
	waitingChildren *waitqueue.WaitQueue[proc.ChildFilter, proc.Tpid]
	vm              *vm.VM
	files           *fdtable.FileTable
	group           ThreadGroup
	leader          *Thread
}

func newProcess(mgr *ProcMgr, pid, pgid proc.Tpid, cwd string, args, env []string, as *vm.VM, files *fdtable.FileTable) *Process {
	p := &Process{
		mgr:    mgr,
		pid:    pid,
		pgid:   pgid,
		status: proc.Trunning,
		cwd:    cwd,
		args:   args,
		env:    env,
		vm:     as,
		files:  files,
		group: ThreadGroup{
			tgid:    pid,
			threads: make(map[proc.Tpid]*Thread),
		},
	}
	p.waitingChildren = waitqueue.NewWaitQueue[proc.ChildFilter, proc.Tpid](&p.mu)
	return p
}

func (p *Process) String() string {
	return fmt.Sprintf("{pid %v pgid %v %v}", p.pid, p.pgid, p.args)
}

func (p *Process) Pid() proc.Tpid {
	return p.pid
}

func (p *Process) Tgid() proc.Tpid {
	return p.group.tgid
}

func (p *Process) Pgid() proc.Tpid {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pgid
}

func (p *Process) Status() proc.Tstatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// ExitStatus returns the exit code, once p is a zombie.
func (p *Process) ExitStatus() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit.getStatus()
}

func (p *Process) Cwd() string {
	return p.cwd
}

func (p *Process) Args() []string {
	return p.args
}

func (p *Process) Env() []string {
	return p.env
}

// Files returns p's file table, or nil once p is a zombie.
func (p *Process) Files() *fdtable.FileTable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.files
}

// Ppid returns the parent's pid, or NO_PID for init and reaped
// processes.
func (p *Process) Ppid() proc.Tpid {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parent == nil {
		return proc.NO_PID
	}
	return p.parent.pid
}

func (p *Process) Children() []proc.Tpid {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs := p.liveChildrenL()
	pids := make([]proc.Tpid, 0, len(cs))
	for _, c := range cs {
		pids = append(pids, c.pid)
	}
	slices.Sort(pids)
	return pids
}

// Leader returns p's leader thread, the one whose tid is p's pid, or
// nil once it has exited.
func (p *Process) Leader() *Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.group.threads[p.pid]; !ok {
		return nil
	}
	return p.leader
}

// Threads returns the tids of p's live threads.
func (p *Process) Threads() []proc.Tpid {
	p.mu.Lock()
	defer p.mu.Unlock()
	tids := make([]proc.Tpid, 0, len(p.group.threads))
	for tid := range p.group.threads {
		tids = append(tids, tid)
	}
	slices.Sort(tids)
	return tids
}

// Caller holds lock
func (p *Process) runningL() bool {
	return p.status == proc.Trunning && !p.exiting
}

// liveChildrenL prunes stale entries from p.children and returns the
// children still present.  Caller holds lock.
func (p *Process) liveChildrenL() []*Process {
	cs := make([]*Process, 0, len(p.children))
	p.children = slices.DeleteFunc(p.children, func(wp weak.Pointer[Process]) bool {
		c := wp.Value()
		if c == nil {
			return true
		}
		cs = append(cs, c)
		return false
	})
	return cs
}

// Caller holds lock
func (p *Process) addChildL(c *Process) {
	p.children = append(p.children, weak.Make(c))
}

// Caller holds lock
func (p *Process) removeChildL(c *Process) {
	wc := weak.Make(c)
	i := slices.Index(p.children, wc)
	if i < 0 {
		db.DFatalf("%v: %v not a child", p, c)
	}
	p.children = slices.Delete(p.children, i, i+1)
}

// newThreadL adds a thread with id tid to p's group; the thread holds
// its own reference to p's address space.  Caller holds lock.
func (p *Process) newThreadL(tid proc.Tpid) *Thread {
	t := newThread(p, tid, p.vm.Ref())
	p.group.threads[tid] = t
	if tid == p.pid {
		p.leader = t
	}
	return t
}

// Caller holds lock
func (p *Process) removeThreadL(t *Thread) {
	delete(p.group.threads, t.tid)
}

// doomL cancels every thread of p so that blocked calls return
// TErrIntr.  Caller holds lock.
func (p *Process) doomL() {
	for _, t := range p.group.threads {
		t.cancel()
	}
}
