package procmgr

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libos/proc"
	"libos/serr"
)

func TestCloneInval(t *testing.T) {
	ts := newTstate(t)
	defer ts.shutdown()

	args := &CloneArgs{Entry: exitWith(0)}
	for _, f := range []proc.CloneFlags{
		proc.CLONE_THREAD,
		proc.CLONE_SIGHAND,
		proc.CLONE_THREAD | proc.CLONE_SIGHAND,
		proc.CLONE_VM | 0x00020000,
		proc.CLONE_PARENT,
	} {
		_, err := ts.mgr.Clone(ts.init, f, args)
		assert.True(t, serr.IsErrCode(err, serr.TErrInval), "flags %v err %v", f, err)
	}
	_, err := ts.mgr.Clone(ts.init, proc.CLONE_PTHREAD, nil)
	assert.True(t, serr.IsErrCode(err, serr.TErrInval), "no args")
	_, err = ts.mgr.Clone(ts.init, proc.CLONE_PTHREAD, &CloneArgs{})
	assert.True(t, serr.IsErrCode(err, serr.TErrInval), "no entry")
	assert.Equal(t, 1, ts.mgr.pt.Allocated())
	assert.Equal(t, []proc.Tpid{1}, ts.lookup(1).Threads())
}

// A pthread_create-style thread: the tid is stored at both SETTID
// addresses before it runs, and its exit clears the CLEARTID word and
// wakes the joiner.
func TestClonePthread(t *testing.T) {
	ts := newTstate(t)
	defer ts.shutdown()

	as := ts.init.VM()
	addr, err := as.Mmap(8, false)
	require.Nil(t, err)
	ptid, ctid := addr, addr+4

	type ids struct {
		pid, tid proc.Tpid
		tls      uintptr
	}
	ch := make(chan ids, 1)
	release := make(chan struct{})
	tid, err := ts.mgr.Clone(ts.init, proc.CLONE_PTHREAD|proc.CLONE_CHILD_SETTID, &CloneArgs{
		Entry: func(t *Thread) int {
			mgr := t.Mgr()
			ch <- ids{mgr.Getpid(t), mgr.Gettid(t), t.Tls()}
			<-release
			return 0
		},
		ParentTid: ptid,
		ChildTid:  ctid,
		Tls:       0x7000,
	})
	require.Nil(t, err)
	assert.NotEqual(t, proc.Tpid(1), tid)

	v, err := as.Load32(ptid)
	require.Nil(t, err)
	assert.Equal(t, uint32(tid), v, "parent settid")
	v, err = as.Load32(ctid)
	require.Nil(t, err)
	assert.Equal(t, uint32(tid), v, "child settid")

	r := <-ch
	assert.Equal(t, ids{1, tid, 0x7000}, r)
	assert.Equal(t, []proc.Tpid{1, tid}, ts.lookup(1).Threads())
	assert.Equal(t, []proc.Tpid{1}, ts.mgr.Pids(), "a thread is not a process")

	close(release)
	for {
		v, err := as.Load32(ctid)
		require.Nil(t, err)
		if v == 0 {
			break
		}
		err = ts.mgr.FutexWait(ts.init, ctid, v, 0, WAIT_TIMEOUT)
		if err != nil {
			require.True(t, serr.IsErrCode(err, serr.TErrAgain), "err %v", err)
		}
	}
	require.Eventually(t, func() bool {
		return ts.mgr.pt.Allocated() == 1
	}, WAIT_TIMEOUT, POLL, "tid freed")
	assert.Equal(t, []proc.Tpid{1}, ts.lookup(1).Threads())
	assert.Equal(t, proc.Trunning, ts.lookup(1).Status())
}

func TestCloneSettidFault(t *testing.T) {
	ts := newTstate(t)
	defer ts.shutdown()

	_, err := ts.mgr.Clone(ts.init, proc.CLONE_PTHREAD, &CloneArgs{
		Entry:     exitWith(0),
		ParentTid: 0x4,
	})
	assert.True(t, serr.IsErrCode(err, serr.TErrFault), "err %v", err)
	assert.Equal(t, 1, ts.mgr.pt.Allocated())
	assert.Equal(t, []proc.Tpid{1}, ts.lookup(1).Threads())
}

// A forked child shares shared mappings with its parent; a CLONE_VM
// child shares private ones too.
func TestCloneProcessVM(t *testing.T) {
	ts := newTstate(t)
	defer ts.shutdown()

	type res struct {
		shared, priv uint32
		fork, vmcode int
		ppid         proc.Tpid
		err          error
	}
	ch := make(chan res, 1)
	pid := ts.spawn("forker", func(t *Thread) int {
		mgr := t.Mgr()
		as := t.VM()
		var r res
		defer func() { ch <- r }()
		priv, err := as.Mmap(4, false)
		if err != nil {
			r.err = err
			return 1
		}
		shared, err := as.Mmap(4, true)
		if err != nil {
			r.err = err
			return 1
		}
		ppid := make(chan proc.Tpid, 1)
		c, err := mgr.Clone(t, 0, &CloneArgs{Entry: func(t2 *Thread) int {
			p, _ := t2.Mgr().Getppid(t2)
			ppid <- p
			t2.VM().Store32(shared, 3)
			return 5
		}})
		if err != nil {
			r.err = err
			return 1
		}
		if _, r.fork, r.err = mgr.Wait4(t, proc.SpecificPid(c), 0); r.err != nil {
			return 1
		}
		r.ppid = <-ppid
		if _, r.err = mgr.Clone(t, proc.CLONE_VM, &CloneArgs{Entry: func(t2 *Thread) int {
			t2.VM().Store32(priv, 9)
			return 6
		}}); r.err != nil {
			return 1
		}
		if _, r.vmcode, r.err = mgr.Wait4(t, proc.AnyChild(), 0); r.err != nil {
			return 1
		}
		r.shared, _ = as.Load32(shared)
		r.priv, _ = as.Load32(priv)
		return 0
	})
	r := <-ch
	require.Nil(t, r.err)
	assert.Equal(t, 5, r.fork)
	assert.Equal(t, pid, r.ppid)
	assert.Equal(t, uint32(3), r.shared, "shared mapping written by forked child")
	assert.Equal(t, 6, r.vmcode)
	assert.Equal(t, uint32(9), r.priv, "private mapping written by CLONE_VM child")
	_, code := ts.wait4(proc.SpecificPid(pid))
	assert.Equal(t, 0, code)
}

// The forked child's writes to private memory do not reach the parent.
func TestCloneForkPrivate(t *testing.T) {
	ts := newTstate(t)
	defer ts.shutdown()

	as := ts.init.VM()
	priv, err := as.Mmap(4, false)
	require.Nil(t, err)
	require.Nil(t, as.Store32(priv, 1))
	seen := make(chan uint32, 1)
	c, err := ts.mgr.Clone(ts.init, 0, &CloneArgs{Entry: func(t *Thread) int {
		v, _ := t.VM().Load32(priv)
		seen <- v
		t.VM().Store32(priv, 2)
		return 0
	}})
	require.Nil(t, err)
	wpid, _ := ts.wait4(proc.SpecificPid(c))
	assert.Equal(t, c, wpid)
	assert.Equal(t, uint32(1), <-seen)
	v, err := as.Load32(priv)
	require.Nil(t, err)
	assert.Equal(t, uint32(1), v)
}

// CLONE_PARENT makes the new process a sibling of the caller.
func TestCloneParent(t *testing.T) {
	ts := newTstate(t)
	defer ts.shutdown()

	release := make(chan struct{})
	cpid := make(chan proc.Tpid, 1)
	m := ts.spawn("middle", func(t *Thread) int {
		c, err := t.Mgr().Clone(t, proc.CLONE_PARENT|proc.CLONE_VM, &CloneArgs{Entry: func(*Thread) int {
			<-release
			return 8
		}})
		assert.Nil(ts.T, err)
		cpid <- c
		return 0
	})
	c := <-cpid
	assert.Equal(t, proc.Tpid(1), ts.lookup(c).Ppid())
	assert.ElementsMatch(t, []proc.Tpid{m, c}, ts.lookup(1).Children())

	wpid, _ := ts.wait4(proc.SpecificPid(m))
	assert.Equal(t, m, wpid)
	close(release)
	wpid, code := ts.wait4(proc.SpecificPid(c))
	assert.Equal(t, c, wpid)
	assert.Equal(t, 8, code)
}

// CLONE_FILES shares the descriptor table; without it the child works
// on a copy.
func TestCloneFiles(t *testing.T) {
	ts := newTstate(t)
	defer ts.shutdown()

	require.Nil(t, afero.WriteFile(ts.fs, "/etc/motd", []byte("hello\n"), 0644))
	ft := ts.lookup(1).Files()
	for _, f := range []proc.CloneFlags{0, proc.CLONE_FILES} {
		fd, err := ft.Open("/etc/motd", os.O_RDONLY, 0)
		require.Nil(t, err)
		c, err := ts.mgr.Clone(ts.init, f, &CloneArgs{Entry: func(t *Thread) int {
			if err := t.Process().Files().Close(fd); err != nil {
				return 1
			}
			return 0
		}})
		require.Nil(t, err)
		_, code := ts.wait4(proc.SpecificPid(c))
		assert.Equal(t, 0, code)
		_, err = ft.Lookup(fd)
		if f.Has(proc.CLONE_FILES) {
			assert.True(t, serr.IsErrCode(err, serr.TErrBadFd), "shared table closed")
		} else {
			assert.Nil(t, err, "copy closed")
			require.Nil(t, ft.Close(fd))
		}
	}
}
