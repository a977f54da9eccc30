package fdtable

import (
	"fmt"
	"os"

	db "libos/debug"
)

// FileAction is a descriptor operation applied to a spawned child's
// table before it runs.
type FileAction interface {
	Apply(ft *FileTable) error
	String() string
}

type Open struct {
	Fd    int
	Path  string
	Flags int
	Mode  os.FileMode
}

func (a *Open) Apply(ft *FileTable) error {
	return ft.OpenAt(a.Fd, a.Path, a.Flags, a.Mode)
}

func (a *Open) String() string {
	return fmt.Sprintf("open{%d %v %#x %v}", a.Fd, a.Path, a.Flags, a.Mode)
}

type Close struct {
	Fd int
}

func (a *Close) Apply(ft *FileTable) error {
	return ft.Close(a.Fd)
}

func (a *Close) String() string {
	return fmt.Sprintf("close{%d}", a.Fd)
}

type Dup2 struct {
	Old int
	New int
}

func (a *Dup2) Apply(ft *FileTable) error {
	return ft.Dup2(a.Old, a.New)
}

func (a *Dup2) String() string {
	return fmt.Sprintf("dup2{%d %d}", a.Old, a.New)
}

// Apply runs actions in order and stops at the first failure.
func (ft *FileTable) Apply(actions []FileAction) error {
	for _, a := range actions {
		if err := a.Apply(ft); err != nil {
			db.DPrintf(db.FDTABLE_ERR, "Apply %v: %v", a, err)
			return err
		}
	}
	return nil
}
