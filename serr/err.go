// Package serr defines the errors the process core returns to the
// syscall layer.  Each error carries a Terror code that maps onto a
// POSIX errno.
package serr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

type Terror uint32

const (
	TErrNoError Terror = iota
	TErrNoSuchProcess
	TErrNoChild
	TErrInval
	TErrNoResource
	TErrNoMem
	TErrAgain
	TErrTimedOut
	TErrIntr
	TErrNotfound
	TErrBadFd
	TErrPerm
	TErrNotSupported
	TErrExists
	TErrFault
	TErrError
)

func (err Terror) String() string {
	switch err {
	case TErrNoError:
		return "no error"
	case TErrNoSuchProcess:
		return "no such process"
	case TErrNoChild:
		return "no eligible child"
	case TErrInval:
		return "invalid argument"
	case TErrNoResource:
		return "resource exhausted"
	case TErrNoMem:
		return "out of memory"
	case TErrAgain:
		return "futex value mismatch"
	case TErrTimedOut:
		return "timed out"
	case TErrIntr:
		return "interrupted"
	case TErrNotfound:
		return "file not found"
	case TErrBadFd:
		return "bad file descriptor"
	case TErrPerm:
		return "operation not permitted"
	case TErrNotSupported:
		return "not supported"
	case TErrExists:
		return "exists"
	case TErrFault:
		return "bad address"
	case TErrError:
		return "error"
	default:
		return "unknown error"
	}
}

type Err struct {
	ErrCode Terror
	Obj     string
	Err     error
}

func NewErr(err Terror, obj interface{}) *Err {
	return &Err{
		ErrCode: err,
		Obj:     fmt.Sprintf("%v", obj),
		Err:     nil,
	}
}

func NewErrError(error error) *Err {
	return &Err{
		ErrCode: TErrError,
		Obj:     "",
		Err:     error,
	}
}

func NewErrWrap(err Terror, obj interface{}, error error) *Err {
	return &Err{
		ErrCode: err,
		Obj:     fmt.Sprintf("%v", obj),
		Err:     error,
	}
}

func (err *Err) Code() Terror {
	return err.ErrCode
}

func (err *Err) Unwrap() error { return err.Err }

func (err *Err) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("{Err: %q Obj: %q (%v)}", err.ErrCode, err.Obj, err.Err)
	}
	return fmt.Sprintf("{Err: %q Obj: %q}", err.ErrCode, err.Obj)
}

func (err *Err) String() string {
	return err.Error()
}

func (err *Err) IsErrNoChild() bool {
	return err.Code() == TErrNoChild
}

func (err *Err) IsErrNoSuchProcess() bool {
	return err.Code() == TErrNoSuchProcess
}

func (err *Err) IsErrAgain() bool {
	return err.Code() == TErrAgain
}

func (err *Err) IsErrTimedOut() bool {
	return err.Code() == TErrTimedOut
}

func (err *Err) IsErrIntr() bool {
	return err.Code() == TErrIntr
}

// IsErr returns the *Err in err's chain, if any.
func IsErr(error error) (*Err, bool) {
	var err *Err
	if errors.As(error, &err) {
		return err, true
	}
	return nil, false
}

func IsErrCode(error error, code Terror) bool {
	if err, ok := IsErr(error); ok {
		return err.Code() == code
	}
	return false
}

// Errno returns the POSIX errno the syscall layer reports for err.
func (err *Err) Errno() unix.Errno {
	switch err.ErrCode {
	case TErrNoError:
		return 0
	case TErrNoSuchProcess:
		return unix.ESRCH
	case TErrNoChild:
		return unix.ECHILD
	case TErrInval:
		return unix.EINVAL
	case TErrNoResource, TErrAgain:
		return unix.EAGAIN
	case TErrNoMem:
		return unix.ENOMEM
	case TErrTimedOut:
		return unix.ETIMEDOUT
	case TErrIntr:
		return unix.EINTR
	case TErrNotfound:
		return unix.ENOENT
	case TErrBadFd:
		return unix.EBADF
	case TErrPerm:
		return unix.EPERM
	case TErrNotSupported:
		return unix.ENOSYS
	case TErrExists:
		return unix.EEXIST
	case TErrFault:
		return unix.EFAULT
	default:
		if e, ok := err.Err.(unix.Errno); ok {
			return e
		}
		return unix.EIO
	}
}

// Errno maps any error to an errno; nil maps to 0.
func Errno(error error) unix.Errno {
	if error == nil {
		return 0
	}
	if err, ok := IsErr(error); ok {
		return err.Errno()
	}
	var e unix.Errno
	if errors.As(error, &e) {
		return e
	}
	return unix.EIO
}

// UxErrnoToErr converts an errno from a host call (e.g., mmap) into an
// *Err.
func UxErrnoToErr(error error, obj interface{}) *Err {
	var e unix.Errno
	if !errors.As(error, &e) {
		return NewErrWrap(TErrError, obj, error)
	}
	switch e {
	case unix.ESRCH:
		return NewErr(TErrNoSuchProcess, obj)
	case unix.ECHILD:
		return NewErr(TErrNoChild, obj)
	case unix.EINVAL:
		return NewErr(TErrInval, obj)
	case unix.EAGAIN:
		return NewErr(TErrNoResource, obj)
	case unix.ENOMEM:
		return NewErr(TErrNoMem, obj)
	case unix.ETIMEDOUT:
		return NewErr(TErrTimedOut, obj)
	case unix.EINTR:
		return NewErr(TErrIntr, obj)
	case unix.ENOENT:
		return NewErr(TErrNotfound, obj)
	case unix.EBADF:
		return NewErr(TErrBadFd, obj)
	case unix.EPERM, unix.EACCES:
		return NewErr(TErrPerm, obj)
	case unix.ENOSYS:
		return NewErr(TErrNotSupported, obj)
	case unix.EEXIST:
		return NewErr(TErrExists, obj)
	case unix.EFAULT:
		return NewErr(TErrFault, obj)
	default:
		return NewErrWrap(TErrError, obj, e)
	}
}
