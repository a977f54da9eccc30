package fdtable

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libos/serr"
)

func newFs(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	require.Nil(t, afero.WriteFile(fs, "/etc/motd", []byte("hi"), 0644))
	return fs
}

func TestOpenClose(t *testing.T) {
	ft := NewFileTable(newFs(t))
	defer ft.Release()
	fd, err := ft.Open("/etc/motd", os.O_RDONLY, 0)
	require.Nil(t, err)
	assert.Equal(t, 0, fd)
	fd, err = ft.Open("/tmp/out", os.O_CREATE|os.O_WRONLY, 0644)
	require.Nil(t, err)
	assert.Equal(t, 1, fd)

	_, err = ft.Open("/nope", os.O_RDONLY, 0)
	assert.True(t, serr.IsErrCode(err, serr.TErrNotfound))

	require.Nil(t, ft.Close(0))
	assert.True(t, serr.IsErrCode(ft.Close(0), serr.TErrBadFd))
	fd, err = ft.Open("/etc/motd", os.O_RDONLY, 0)
	require.Nil(t, err)
	assert.Equal(t, 0, fd, "lowest free")
}

func TestDup2(t *testing.T) {
	ft := NewFileTable(newFs(t))
	defer ft.Release()
	_, err := ft.Open("/etc/motd", os.O_RDONLY, 0)
	require.Nil(t, err)
	require.Nil(t, ft.Dup2(0, 5))
	f0, err := ft.Lookup(0)
	require.Nil(t, err)
	f5, err := ft.Lookup(5)
	require.Nil(t, err)
	assert.Same(t, f0, f5)
	require.Nil(t, ft.Close(0))
	_, err = f5.File().Stat()
	assert.Nil(t, err, "description still open")
	assert.True(t, serr.IsErrCode(ft.Dup2(3, 4), serr.TErrBadFd))
	assert.Nil(t, ft.Dup2(5, 5))
	assert.Equal(t, []int{5}, ft.Fds())
}

func TestClone(t *testing.T) {
	ft := NewFileTable(newFs(t))
	_, err := ft.Open("/etc/motd", os.O_RDONLY, 0)
	require.Nil(t, err)
	nft := ft.Clone()
	require.Nil(t, nft.Close(0))
	assert.Equal(t, []int{0}, ft.Fds(), "parent unaffected")
	assert.Equal(t, []int{}, nft.Fds())
	nft.Release()

	ft.Ref()
	assert.Equal(t, 2, ft.Refs())
	ft.Release()
	assert.Equal(t, []int{0}, ft.Fds())
	ft.Release()
	assert.Equal(t, []int{}, ft.Fds())
}

func TestApply(t *testing.T) {
	ft := NewFileTable(newFs(t))
	defer ft.Release()
	err := ft.Apply([]FileAction{
		&Open{Fd: 3, Path: "/etc/motd", Flags: os.O_RDONLY},
		&Dup2{Old: 3, New: 0},
		&Close{Fd: 3},
	})
	require.Nil(t, err)
	assert.Equal(t, []int{0}, ft.Fds())
	f, err := ft.Lookup(0)
	require.Nil(t, err)
	assert.Equal(t, "/etc/motd", f.Path())

	err = ft.Apply([]FileAction{&Close{Fd: 9}, &Open{Fd: 1, Path: "/etc/motd"}})
	assert.True(t, serr.IsErrCode(err, serr.TErrBadFd))
	assert.Equal(t, []int{0}, ft.Fds(), "stops at first failure")
}
