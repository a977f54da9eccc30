// Package fdtable is the file descriptor table collaborator.  Files are
// opened on an afero file system; a FileTable is reference counted so
// CLONE_FILES children share it, and Clone duplicates every descriptor
// for children that get their own table.
package fdtable

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"
	"golang.org/x/exp/slices"

	db "libos/debug"
	"libos/serr"
)

// File is an open file description; dup'ed descriptors share one.
type File struct {
	f    afero.File
	path string
	refs atomic.Int32
}

func newFile(f afero.File, path string) *File {
	fd := &File{f: f, path: path}
	fd.refs.Store(1)
	return fd
}

func (f *File) Path() string {
	return f.path
}

func (f *File) File() afero.File {
	return f.f
}

func (f *File) ref() *File {
	f.refs.Add(1)
	return f
}

func (f *File) release() {
	if f.refs.Add(-1) > 0 {
		return
	}
	if err := f.f.Close(); err != nil {
		db.DPrintf(db.FDTABLE_ERR, "Close %v: %v", f.path, err)
	}
}

type FileTable struct {
	sync.Mutex
	fs   afero.Fs
	refs atomic.Int32
	fds  map[int]*File
}

func NewFileTable(fs afero.Fs) *FileTable {
	ft := &FileTable{fs: fs, fds: make(map[int]*File)}
	ft.refs.Store(1)
	return ft
}

func (ft *FileTable) String() string {
	ft.Lock()
	defer ft.Unlock()
	return fmt.Sprintf("{fds %v refs %d}", ft.fdsL(), ft.refs.Load())
}

func (ft *FileTable) Fs() afero.Fs {
	return ft.fs
}

func (ft *FileTable) Ref() *FileTable {
	ft.refs.Add(1)
	return ft
}

func (ft *FileTable) Refs() int {
	return int(ft.refs.Load())
}

// Release drops a reference; the last one closes every descriptor.
func (ft *FileTable) Release() {
	n := ft.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		db.DFatalf("file table released twice")
	}
	ft.Lock()
	defer ft.Unlock()
	for fd, f := range ft.fds {
		f.release()
		delete(ft.fds, fd)
	}
}

// Clone returns a new table holding a dup of every descriptor.
func (ft *FileTable) Clone() *FileTable {
	ft.Lock()
	defer ft.Unlock()
	nft := NewFileTable(ft.fs)
	for fd, f := range ft.fds {
		nft.fds[fd] = f.ref()
	}
	return nft
}

// Caller holds lock
func (ft *FileTable) fdsL() []int {
	fds := make([]int, 0, len(ft.fds))
	for fd := range ft.fds {
		fds = append(fds, fd)
	}
	slices.Sort(fds)
	return fds
}

func (ft *FileTable) Fds() []int {
	ft.Lock()
	defer ft.Unlock()
	return ft.fdsL()
}

func (ft *FileTable) Lookup(fd int) (*File, error) {
	ft.Lock()
	defer ft.Unlock()
	f, ok := ft.fds[fd]
	if !ok {
		return nil, serr.NewErr(serr.TErrBadFd, fd)
	}
	return f, nil
}

// Caller holds lock
func (ft *FileTable) lowestFreeL() int {
	fd := 0
	for _, ok := ft.fds[fd]; ok; _, ok = ft.fds[fd] {
		fd++
	}
	return fd
}

// Caller holds lock
func (ft *FileTable) installL(fd int, f *File) {
	if old, ok := ft.fds[fd]; ok {
		old.release()
	}
	ft.fds[fd] = f
}

func (ft *FileTable) open(path string, flags int, mode os.FileMode) (*File, error) {
	f, err := ft.fs.OpenFile(path, flags, mode)
	if err != nil {
		db.DPrintf(db.FDTABLE_ERR, "Open %v: %v", path, err)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, serr.NewErrWrap(serr.TErrNotfound, path, err)
		case errors.Is(err, fs.ErrExist):
			return nil, serr.NewErrWrap(serr.TErrExists, path, err)
		case errors.Is(err, fs.ErrPermission):
			return nil, serr.NewErrWrap(serr.TErrPerm, path, err)
		default:
			return nil, serr.NewErrWrap(serr.TErrError, path, err)
		}
	}
	return newFile(f, path), nil
}

// Open opens path at the lowest free descriptor.
func (ft *FileTable) Open(path string, flags int, mode os.FileMode) (int, error) {
	f, err := ft.open(path, flags, mode)
	if err != nil {
		return -1, err
	}
	ft.Lock()
	defer ft.Unlock()
	fd := ft.lowestFreeL()
	ft.fds[fd] = f
	db.DPrintf(db.FDTABLE, "Open %v -> %d", path, fd)
	return fd, nil
}

// OpenAt opens path at descriptor fd, closing whatever fd referred to.
func (ft *FileTable) OpenAt(fd int, path string, flags int, mode os.FileMode) error {
	if fd < 0 {
		return serr.NewErr(serr.TErrBadFd, fd)
	}
	f, err := ft.open(path, flags, mode)
	if err != nil {
		return err
	}
	ft.Lock()
	defer ft.Unlock()
	ft.installL(fd, f)
	db.DPrintf(db.FDTABLE, "Open %v at %d", path, fd)
	return nil
}

func (ft *FileTable) Close(fd int) error {
	ft.Lock()
	defer ft.Unlock()
	f, ok := ft.fds[fd]
	if !ok {
		return serr.NewErr(serr.TErrBadFd, fd)
	}
	delete(ft.fds, fd)
	f.release()
	return nil
}

// Dup2 makes nfd refer to the same open file as ofd.
func (ft *FileTable) Dup2(ofd, nfd int) error {
	ft.Lock()
	defer ft.Unlock()
	f, ok := ft.fds[ofd]
	if !ok || nfd < 0 {
		return serr.NewErr(serr.TErrBadFd, fmt.Sprintf("dup2 %d %d", ofd, nfd))
	}
	if ofd == nfd {
		return nil
	}
	ft.installL(nfd, f.ref())
	return nil
}
