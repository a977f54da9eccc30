package proc

import (
	"strings"
)

type CloneFlags uint64

// Linux clone(2) flag values.
const (
	CLONE_VM             CloneFlags = 0x00000100
	CLONE_FS             CloneFlags = 0x00000200
	CLONE_FILES          CloneFlags = 0x00000400
	CLONE_SIGHAND        CloneFlags = 0x00000800
	CLONE_PARENT         CloneFlags = 0x00008000
	CLONE_THREAD         CloneFlags = 0x00010000
	CLONE_SYSVSEM        CloneFlags = 0x00040000
	CLONE_SETTLS         CloneFlags = 0x00080000
	CLONE_PARENT_SETTID  CloneFlags = 0x00100000
	CLONE_CHILD_CLEARTID CloneFlags = 0x00200000
	CLONE_CHILD_SETTID   CloneFlags = 0x01000000

	CSIGNAL CloneFlags = 0x000000ff

	CLONE_SUPPORTED = CLONE_VM | CLONE_FS | CLONE_FILES | CLONE_SIGHAND |
		CLONE_PARENT | CLONE_THREAD | CLONE_SYSVSEM | CLONE_SETTLS |
		CLONE_PARENT_SETTID | CLONE_CHILD_CLEARTID | CLONE_CHILD_SETTID |
		CSIGNAL

	// What pthread_create passes.
	CLONE_PTHREAD = CLONE_VM | CLONE_FS | CLONE_FILES | CLONE_SIGHAND |
		CLONE_THREAD | CLONE_SYSVSEM | CLONE_SETTLS |
		CLONE_PARENT_SETTID | CLONE_CHILD_CLEARTID
)

var cloneNames = []struct {
	f CloneFlags
	n string
}{
	{CLONE_VM, "VM"},
	{CLONE_FS, "FS"},
	{CLONE_FILES, "FILES"},
	{CLONE_SIGHAND, "SIGHAND"},
	{CLONE_PARENT, "PARENT"},
	{CLONE_THREAD, "THREAD"},
	{CLONE_SYSVSEM, "SYSVSEM"},
	{CLONE_SETTLS, "SETTLS"},
	{CLONE_PARENT_SETTID, "PARENT_SETTID"},
	{CLONE_CHILD_CLEARTID, "CHILD_CLEARTID"},
	{CLONE_CHILD_SETTID, "CHILD_SETTID"},
}

func (f CloneFlags) Has(g CloneFlags) bool {
	return f&g == g
}

// Validate reports which rule, if any, f violates; it returns "" for a
// valid combination.  The exit signal in the low byte is accepted and
// ignored.
func (f CloneFlags) Validate() string {
	if f&^CLONE_SUPPORTED != 0 {
		return "unsupported flags"
	}
	if f.Has(CLONE_THREAD) && !f.Has(CLONE_SIGHAND) {
		return "CLONE_THREAD without CLONE_SIGHAND"
	}
	if f.Has(CLONE_SIGHAND) && !f.Has(CLONE_VM) {
		return "CLONE_SIGHAND without CLONE_VM"
	}
	return ""
}

func (f CloneFlags) String() string {
	ns := make([]string, 0, len(cloneNames))
	for _, cn := range cloneNames {
		if f.Has(cn.f) {
			ns = append(ns, cn.n)
		}
	}
	if len(ns) == 0 {
		return "0"
	}
	return strings.Join(ns, "|")
}
