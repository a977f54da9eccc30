// Package procmgr is the process and thread lifecycle core: it creates
// processes (Spawn) and threads or derived processes (Clone), runs them
// as tasks, turns them into zombies on exit and reaps them in Wait4.
package procmgr

import (
	"context"

	"github.com/spf13/afero"

	"libos/config"
	db "libos/debug"
	"libos/fdtable"
	"libos/futex"
	"libos/proc"
	"libos/proctable"
	"libos/serr"
	"libos/task"
	"libos/vm"
)

type ProcMgr struct {
	cfg     *config.Config
	pt      *proctable.Table[*Process]
	futexes *futex.Manager
	loader  Loader
	sched   *task.Scheduler
	ctx     context.Context
	cancel  context.CancelFunc
	init    *Process
	metrics *metrics
}

// NewProcMgr boots the process core: it creates the init process, whose
// files live on fs, and returns init's thread.  The caller's goroutine
// acts as that thread; it has no task of its own.
func NewProcMgr(cfg *config.Config, fs afero.Fs, loader Loader) (*ProcMgr, *Thread, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, serr.NewErrWrap(serr.TErrInval, "config", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	mgr := &ProcMgr{
		cfg:     cfg,
		pt:      proctable.NewTable[*Process](cfg),
		futexes: futex.NewManager(),
		loader:  loader,
		sched:   task.NewScheduler(cfg.MaxTasks),
		ctx:     ctx,
		cancel:  cancel,
		metrics: newMetrics(),
	}
	pid, err := mgr.pt.Alloc()
	if err != nil {
		return nil, nil, err
	}
	if pid != proc.Tpid(cfg.InitPid) {
		db.DFatalf("init pid %v != %v", pid, cfg.InitPid)
	}
	p := newProcess(mgr, pid, pid, cfg.Cwd, []string{"init"}, nil, vm.New(), fdtable.NewFileTable(fs))
	p.mu.Lock()
	t := p.newThreadL(pid)
	p.mu.Unlock()
	mgr.init = p
	mgr.pt.Insert(pid, p)
	mgr.metrics.procs.Inc()
	mgr.metrics.threads.Inc()
	db.DPrintf(db.PROCMGR, "Boot %v cfg %v", p, cfg)
	return mgr, t, nil
}

func (mgr *ProcMgr) Config() *config.Config {
	return mgr.cfg
}

func (mgr *ProcMgr) Futexes() *futex.Manager {
	return mgr.futexes
}

func (mgr *ProcMgr) InitPid() proc.Tpid {
	return mgr.init.pid
}

func (mgr *ProcMgr) Lookup(pid proc.Tpid) (*Process, error) {
	p, ok := mgr.pt.Lookup(pid)
	if !ok {
		return nil, serr.NewErr(serr.TErrNoSuchProcess, pid)
	}
	return p, nil
}

// Pids returns the pids of every process in the table, zombies included.
func (mgr *ProcMgr) Pids() []proc.Tpid {
	return mgr.pt.Pids()
}

// Shutdown kills every process but init and waits for all tasks to
// terminate.  Zombies left behind stay in the table until reaped.
func (mgr *ProcMgr) Shutdown() {
	pids := mgr.pt.Pids()
	for i := len(pids) - 1; i >= 0; i-- {
		pid := pids[i]
		if pid == mgr.init.pid {
			continue
		}
		if err := mgr.Kill(pid); err != nil {
			db.DPrintf(db.PROCMGR_ERR, "Shutdown kill %v: %v", pid, err)
		}
	}
	mgr.sched.Wait()
	db.DPrintf(db.PROCMGR, "Shutdown done; %d procs in table", mgr.pt.Len())
}
