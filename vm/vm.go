// Package vm is the address space collaborator of the process core.  A
// VM is a set of mappings, each backed by host anonymous memory, and is
// reference counted so threads and CLONE_VM children can share it.
package vm

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	db "libos/debug"
	"libos/serr"
)

const (
	PAGESZ   = 4096
	MMAPBASE = uintptr(0x10000)
)

var ids atomic.Uint64

func nextId() uint64 {
	return ids.Add(1)
}

// object is a host memory region, shared by every mapping of it.
type object struct {
	id   uint64
	buf  []byte
	refs atomic.Int32
}

func newObject(len int) (*object, error) {
	buf, err := unix.Mmap(-1, 0, len, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		db.DPrintf(db.VM_ERR, "mmap %v: %v", humanize.IBytes(uint64(len)), err)
		return nil, serr.UxErrnoToErr(err, "mmap")
	}
	o := &object{id: nextId(), buf: buf}
	o.refs.Store(1)
	return o, nil
}

func (o *object) ref() *object {
	o.refs.Add(1)
	return o
}

func (o *object) release() {
	n := o.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		db.DFatalf("object %d released twice", o.id)
	}
	if err := unix.Munmap(o.buf); err != nil {
		db.DFatalf("munmap object %d: %v", o.id, err)
	}
	o.buf = nil
}

type mapping struct {
	start  uintptr
	obj    *object
	shared bool
}

func (m *mapping) end() uintptr {
	return m.start + uintptr(len(m.obj.buf))
}

type VM struct {
	mu   sync.RWMutex
	id   uint64
	refs atomic.Int32
	next uintptr
	maps []*mapping // sorted by start
}

func New() *VM {
	vm := &VM{id: nextId(), next: MMAPBASE}
	vm.refs.Store(1)
	db.DPrintf(db.VM, "New vm %d", vm.id)
	return vm
}

func (vm *VM) ID() uint64 {
	return vm.id
}

func (vm *VM) String() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	sz := uint64(0)
	for _, m := range vm.maps {
		sz += uint64(len(m.obj.buf))
	}
	return fmt.Sprintf("{vm %d refs %d maps %d size %v}", vm.id, vm.refs.Load(), len(vm.maps), humanize.IBytes(sz))
}

func (vm *VM) Ref() *VM {
	vm.refs.Add(1)
	return vm
}

func (vm *VM) Refs() int {
	return int(vm.refs.Load())
}

// Release drops a reference; the last one unmaps everything.
func (vm *VM) Release() {
	n := vm.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		db.DFatalf("vm %d released twice", vm.id)
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for _, m := range vm.maps {
		m.obj.release()
	}
	vm.maps = nil
	db.DPrintf(db.VM, "Release vm %d", vm.id)
}

// Fork returns a new VM with the same layout: private mappings are
// copied, shared mappings share their backing object.
func (vm *VM) Fork() (*VM, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	nvm := New()
	nvm.next = vm.next
	for _, m := range vm.maps {
		var o *object
		if m.shared {
			o = m.obj.ref()
		} else {
			var err error
			o, err = newObject(len(m.obj.buf))
			if err != nil {
				nvm.Release()
				return nil, err
			}
			copy(o.buf, m.obj.buf)
		}
		nvm.maps = append(nvm.maps, &mapping{start: m.start, obj: o, shared: m.shared})
	}
	db.DPrintf(db.VM, "Fork vm %d -> %d", vm.id, nvm.id)
	return nvm, nil
}

// Mmap maps length bytes of zeroed memory, rounded up to whole pages.
// A shared mapping stays shared with children created by Fork.
func (vm *VM) Mmap(length int, shared bool) (uintptr, error) {
	if length <= 0 {
		return 0, serr.NewErr(serr.TErrInval, length)
	}
	sz := (length + PAGESZ - 1) &^ (PAGESZ - 1)
	o, err := newObject(sz)
	if err != nil {
		return 0, err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	m := &mapping{start: vm.next, obj: o, shared: shared}
	// Leave a guard page between mappings.
	vm.next += uintptr(sz + PAGESZ)
	vm.maps = append(vm.maps, m)
	db.DPrintf(db.VM, "Mmap vm %d %#x %v shared %v", vm.id, m.start, humanize.IBytes(uint64(sz)), shared)
	return m.start, nil
}

func (vm *VM) Munmap(addr uintptr) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	i := sort.Search(len(vm.maps), func(i int) bool { return vm.maps[i].start >= addr })
	if i == len(vm.maps) || vm.maps[i].start != addr {
		return serr.NewErr(serr.TErrInval, fmt.Sprintf("munmap %#x", addr))
	}
	m := vm.maps[i]
	vm.maps = append(vm.maps[:i], vm.maps[i+1:]...)
	m.obj.release()
	return nil
}

// Caller holds lock
func (vm *VM) lookupL(addr uintptr) (*mapping, error) {
	i := sort.Search(len(vm.maps), func(i int) bool { return vm.maps[i].end() > addr })
	if i == len(vm.maps) || vm.maps[i].start > addr {
		return nil, serr.NewErr(serr.TErrFault, fmt.Sprintf("%#x", addr))
	}
	return vm.maps[i], nil
}

// wordL returns the word at addr.  Caller holds lock, and must not use
// the pointer after releasing it: Munmap may unmap the buffer.
func (vm *VM) wordL(addr uintptr) (*uint32, error) {
	if addr%4 != 0 {
		return nil, serr.NewErr(serr.TErrInval, fmt.Sprintf("unaligned %#x", addr))
	}
	m, err := vm.lookupL(addr)
	if err != nil {
		return nil, err
	}
	return (*uint32)(unsafe.Pointer(&m.obj.buf[addr-m.start])), nil
}

func (vm *VM) Load32(addr uintptr) (uint32, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	w, err := vm.wordL(addr)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(w), nil
}

func (vm *VM) Store32(addr uintptr, v uint32) error {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	w, err := vm.wordL(addr)
	if err != nil {
		return err
	}
	atomic.StoreUint32(w, v)
	return nil
}

// SharedKey returns the backing object of addr and addr's offset in it.
func (vm *VM) SharedKey(addr uintptr) (uint64, uintptr, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	m, err := vm.lookupL(addr)
	if err != nil {
		return 0, 0, err
	}
	return m.obj.id, addr - m.start, nil
}
