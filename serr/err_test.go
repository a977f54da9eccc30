package serr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestErrno(t *testing.T) {
	tests := []struct {
		code  Terror
		errno unix.Errno
	}{
		{TErrNoSuchProcess, unix.ESRCH},
		{TErrNoChild, unix.ECHILD},
		{TErrInval, unix.EINVAL},
		{TErrNoResource, unix.EAGAIN},
		{TErrAgain, unix.EAGAIN},
		{TErrTimedOut, unix.ETIMEDOUT},
		{TErrIntr, unix.EINTR},
		{TErrNotSupported, unix.ENOSYS},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.errno, NewErr(tt.code, "x").Errno(), "%v", tt.code)
	}
	assert.Equal(t, unix.Errno(0), Errno(nil))
	assert.Equal(t, unix.EIO, Errno(fmt.Errorf("plain")))
}

func TestIsErrCodeWrapped(t *testing.T) {
	err := fmt.Errorf("wait4: %w", NewErr(TErrNoChild, 5))
	assert.True(t, IsErrCode(err, TErrNoChild))
	assert.False(t, IsErrCode(err, TErrNoSuchProcess))
	assert.False(t, IsErrCode(nil, TErrNoChild))
	sr, ok := IsErr(err)
	assert.True(t, ok)
	assert.True(t, sr.IsErrNoChild())
	assert.Equal(t, unix.ECHILD, Errno(err))
}

func TestUxErrnoToErr(t *testing.T) {
	assert.Equal(t, TErrNoMem, UxErrnoToErr(unix.ENOMEM, "mmap").Code())
	assert.Equal(t, TErrInval, UxErrnoToErr(fmt.Errorf("mmap: %w", unix.EINVAL), "mmap").Code())
	err := UxErrnoToErr(unix.EXDEV, "x")
	assert.Equal(t, TErrError, err.Code())
	assert.Equal(t, unix.EXDEV, err.Errno())
}
