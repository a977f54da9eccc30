// Package task runs execution activations.  Every thread of every
// process is a Task: a goroutine running the thread's body, with
// panics captured and handed to a fault handler.
package task

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	db "libos/debug"
	"libos/proc"
	"libos/serr"
)

type Task struct {
	tid     proc.Tpid
	run     func()
	onFault func(*panics.Recovered)
	done    chan struct{}
}

// NewTask makes a task for thread tid.  If run panics, onFault is called
// on the task's goroutine with the recovered panic.
func NewTask(tid proc.Tpid, run func(), onFault func(*panics.Recovered)) *Task {
	return &Task{
		tid:     tid,
		run:     run,
		onFault: onFault,
		done:    make(chan struct{}),
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("{task %v}", t.tid)
}

func (t *Task) Tid() proc.Tpid {
	return t.tid
}

// Done is closed when the task's goroutine has terminated.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Join() {
	<-t.done
}

func (t *Task) exec() {
	defer close(t.done)
	var pc panics.Catcher
	pc.Try(t.run)
	if r := pc.Recovered(); r != nil {
		db.DPrintf(db.TASK_ERR, "%v fault: %v", t, r.Value)
		if t.onFault != nil {
			t.onFault(r)
		}
	}
}

// Exit terminates the calling task.  Deferred calls run; Exit does not
// return.
func Exit() {
	runtime.Goexit()
}

// Scheduler starts tasks and bounds how many run at once.
type Scheduler struct {
	wg   conc.WaitGroup
	max  int
	nrun atomic.Int64
}

// NewScheduler returns a scheduler running at most max tasks; 0 means
// no limit.
func NewScheduler(max int) *Scheduler {
	return &Scheduler{max: max}
}

func (s *Scheduler) Running() int {
	return int(s.nrun.Load())
}

func (s *Scheduler) Start(t *Task) error {
	n := s.nrun.Add(1)
	if s.max > 0 && n > int64(s.max) {
		s.nrun.Add(-1)
		db.DPrintf(db.TASK_ERR, "Start %v: %d tasks running", t, n-1)
		return serr.NewErr(serr.TErrNoResource, t.tid)
	}
	db.DPrintf(db.TASK, "Start %v", t)
	s.wg.Go(func() {
		defer s.nrun.Add(-1)
		t.exec()
	})
	return nil
}

// Wait blocks until every started task has terminated.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
