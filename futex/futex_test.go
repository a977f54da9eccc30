package futex

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libos/serr"
)

type mem struct {
	id    uint64
	obj   uint64
	base  uintptr
	words []uint32
}

func newMem(id, obj uint64, base uintptr, words []uint32) *mem {
	return &mem{id: id, obj: obj, base: base, words: words}
}

func (m *mem) ID() uint64 { return m.id }

func (m *mem) word(addr uintptr) (*uint32, error) {
	if addr < m.base || addr >= m.base+uintptr(4*len(m.words)) {
		return nil, serr.NewErr(serr.TErrFault, addr)
	}
	return &m.words[(addr-m.base)/4], nil
}

func (m *mem) Load32(addr uintptr) (uint32, error) {
	w, err := m.word(addr)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(w), nil
}

func (m *mem) SharedKey(addr uintptr) (uint64, uintptr, error) {
	if _, err := m.word(addr); err != nil {
		return 0, 0, err
	}
	return m.obj, addr - m.base, nil
}

const base = 0x10000

func waitFor(t *testing.T, fm *Manager, m Memory, addr uintptr, private bool, n int) {
	require.Eventually(t, func() bool {
		k, err := fm.Waiters(m, addr, private)
		return err == nil && k == n
	}, 5*time.Second, time.Millisecond)
}

func TestWaitMismatch(t *testing.T) {
	fm := NewManager()
	m := newMem(1, 1, base, []uint32{5})
	err := fm.Wait(context.Background(), m, base, 6, true, FUTEX_BITSET_MATCH_ANY, 0)
	assert.True(t, serr.IsErrCode(err, serr.TErrAgain), "err %v", err)
}

func TestWaitInval(t *testing.T) {
	fm := NewManager()
	m := newMem(1, 1, base, []uint32{0, 0})
	err := fm.Wait(context.Background(), m, base+2, 0, true, FUTEX_BITSET_MATCH_ANY, 0)
	assert.True(t, serr.IsErrCode(err, serr.TErrInval))
	err = fm.Wait(context.Background(), m, base, 0, true, 0, 0)
	assert.True(t, serr.IsErrCode(err, serr.TErrInval))
	_, err = fm.Wake(m, base, -1, true, FUTEX_BITSET_MATCH_ANY)
	assert.True(t, serr.IsErrCode(err, serr.TErrInval))
	err = fm.Wait(context.Background(), m, base+64, 0, true, FUTEX_BITSET_MATCH_ANY, 0)
	assert.True(t, serr.IsErrCode(err, serr.TErrFault))
}

func TestWakeFIFO(t *testing.T) {
	fm := NewManager()
	m := newMem(1, 1, base, []uint32{0})
	order := make(chan int, 3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			err := fm.Wait(context.Background(), m, base, 0, true, FUTEX_BITSET_MATCH_ANY, 0)
			assert.Nil(t, err)
			order <- i
		}(i)
		waitFor(t, fm, m, base, true, i+1)
	}
	n, err := fm.Wake(m, base, 2, true, FUTEX_BITSET_MATCH_ANY)
	require.Nil(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []int{0, 1}, []int{<-order, <-order})

	n, err = fm.Wake(m, base, 5, true, FUTEX_BITSET_MATCH_ANY)
	require.Nil(t, err)
	assert.Equal(t, 1, n, "min(n, queued)")
	assert.Equal(t, 2, <-order)

	n, err = fm.Wake(m, base, 1, true, FUTEX_BITSET_MATCH_ANY)
	require.Nil(t, err)
	assert.Equal(t, 0, n)
}

func TestWaitTimeout(t *testing.T) {
	fm := NewManager()
	m := newMem(1, 1, base, []uint32{0})
	start := time.Now()
	err := fm.Wait(context.Background(), m, base, 0, true, FUTEX_BITSET_MATCH_ANY, 20*time.Millisecond)
	assert.True(t, serr.IsErrCode(err, serr.TErrTimedOut), "err %v", err)
	assert.True(t, time.Since(start) >= 20*time.Millisecond)
	n, _ := fm.Waiters(m, base, true)
	assert.Equal(t, 0, n)
}

func TestWaitInterrupted(t *testing.T) {
	fm := NewManager()
	m := newMem(1, 1, base, []uint32{0})
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan error)
	go func() {
		ch <- fm.Wait(ctx, m, base, 0, true, FUTEX_BITSET_MATCH_ANY, time.Hour)
	}()
	waitFor(t, fm, m, base, true, 1)
	cancel()
	err := <-ch
	assert.True(t, serr.IsErrCode(err, serr.TErrIntr), "err %v", err)
	waitFor(t, fm, m, base, true, 0)
}

func TestSharedKey(t *testing.T) {
	fm := NewManager()
	words := []uint32{0, 0, 0, 0}
	a := newMem(1, 77, base, words)
	b := newMem(2, 77, 4*base, words)
	ch := make(chan error)
	go func() {
		ch <- fm.Wait(context.Background(), a, base+8, 0, false, FUTEX_BITSET_MATCH_ANY, 0)
	}()
	waitFor(t, fm, a, base+8, false, 1)

	// A private wake in another address space does not match.
	n, err := fm.Wake(b, 4*base+8, 1, true, FUTEX_BITSET_MATCH_ANY)
	require.Nil(t, err)
	assert.Equal(t, 0, n)

	n, err = fm.Wake(b, 4*base+8, 1, false, FUTEX_BITSET_MATCH_ANY)
	require.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, <-ch)
}

func TestPrivateKeyPerAddressSpace(t *testing.T) {
	fm := NewManager()
	a := newMem(1, 1, base, []uint32{0})
	b := newMem(2, 2, base, []uint32{0})
	ch := make(chan error)
	go func() {
		ch <- fm.Wait(context.Background(), a, base, 0, true, FUTEX_BITSET_MATCH_ANY, 0)
	}()
	waitFor(t, fm, a, base, true, 1)
	n, _ := fm.Wake(b, base, 1, true, FUTEX_BITSET_MATCH_ANY)
	assert.Equal(t, 0, n)
	n, _ = fm.Wake(a, base, 1, true, FUTEX_BITSET_MATCH_ANY)
	assert.Equal(t, 1, n)
	assert.Nil(t, <-ch)
}

func TestBitset(t *testing.T) {
	fm := NewManager()
	m := newMem(1, 1, base, []uint32{0})
	ch := make(chan error)
	go func() {
		ch <- fm.Wait(context.Background(), m, base, 0, true, 0x1, 0)
	}()
	waitFor(t, fm, m, base, true, 1)
	n, _ := fm.Wake(m, base, 1, true, 0x2)
	assert.Equal(t, 0, n)
	n, _ = fm.Wake(m, base, 1, true, 0x3)
	assert.Equal(t, 1, n)
	assert.Nil(t, <-ch)
}

func TestRequeue(t *testing.T) {
	fm := NewManager()
	m := newMem(1, 1, base, []uint32{0, 0})
	ch := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			ch <- fm.Wait(context.Background(), m, base, 0, true, FUTEX_BITSET_MATCH_ANY, 0)
		}()
		waitFor(t, fm, m, base, true, i+1)
	}
	n, err := fm.CmpRequeue(m, base, base+4, true, 1, 1, 2)
	assert.True(t, serr.IsErrCode(err, serr.TErrAgain))
	assert.Equal(t, 0, n)

	n, err = fm.Requeue(m, base, base+4, true, 1, 2)
	require.Nil(t, err)
	assert.Equal(t, 3, n)
	assert.Nil(t, <-ch)
	waitFor(t, fm, m, base, true, 0)
	waitFor(t, fm, m, base+4, true, 2)

	n, err = fm.CmpRequeue(m, base+4, base, true, 0, 0, 1)
	require.Nil(t, err)
	assert.Equal(t, 1, n)
	waitFor(t, fm, m, base, true, 1)

	n, _ = fm.Wake(m, base, 1, true, FUTEX_BITSET_MATCH_ANY)
	assert.Equal(t, 1, n)
	n, _ = fm.Wake(m, base+4, 1, true, FUTEX_BITSET_MATCH_ANY)
	assert.Equal(t, 1, n)
	assert.Nil(t, <-ch)
	assert.Nil(t, <-ch)
}

// A waiter racing its deadline against a wake sees exactly one outcome,
// and it agrees with the waker's count.
func TestTimeoutWakeRace(t *testing.T) {
	const N = 100
	fm := NewManager()
	m := newMem(1, 1, base, make([]uint32, N))
	var wg sync.WaitGroup
	var ok, timedout, woken atomic.Int64
	for i := 0; i < N; i++ {
		addr := base + uintptr(4*i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := fm.Wait(context.Background(), m, addr, 0, true, FUTEX_BITSET_MATCH_ANY, time.Millisecond)
			if err == nil {
				ok.Add(1)
			} else {
				assert.True(t, serr.IsErrCode(err, serr.TErrTimedOut), "err %v", err)
				timedout.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			n, err := fm.Wake(m, addr, 1, true, FUTEX_BITSET_MATCH_ANY)
			assert.Nil(t, err)
			woken.Add(int64(n))
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(N), ok.Load()+timedout.Load())
	assert.Equal(t, woken.Load(), ok.Load())
}

func TestOpAndFlags(t *testing.T) {
	op, flags, err := OpAndFlagsFromUint32(uint32(FUTEX_WAIT) | uint32(FUTEX_PRIVATE_FLAG))
	require.Nil(t, err)
	assert.Equal(t, FUTEX_WAIT, op)
	assert.True(t, flags.Private())
	assert.False(t, flags.Realtime())

	op, flags, err = OpAndFlagsFromUint32(uint32(FUTEX_WAIT_BITSET) | uint32(FUTEX_CLOCK_REALTIME))
	require.Nil(t, err)
	assert.Equal(t, FUTEX_WAIT_BITSET, op)
	assert.True(t, flags.Realtime())

	_, _, err = OpAndFlagsFromUint32(uint32(FUTEX_WAKE) | uint32(FUTEX_CLOCK_REALTIME))
	assert.True(t, serr.IsErrCode(err, serr.TErrNotSupported))
	for _, op := range []Op{FUTEX_FD, FUTEX_WAKE_OP, FUTEX_LOCK_PI, FUTEX_UNLOCK_PI, FUTEX_TRYLOCK_PI} {
		_, _, err = OpAndFlagsFromUint32(uint32(op))
		assert.True(t, serr.IsErrCode(err, serr.TErrNotSupported), "%v", op)
	}
	_, _, err = OpAndFlagsFromUint32(42)
	assert.True(t, serr.IsErrCode(err, serr.TErrInval))
}
