package proc

import (
	"fmt"
)

type Tfilter uint8

const (
	ANY_CHILD Tfilter = iota + 1
	SPECIFIC_PID
	PROCESS_GROUP
	ANY_CHILD_IN_CALLER_GROUP
)

// ChildFilter selects which children a wait4 call accepts.  Id is the
// pid for SPECIFIC_PID and the pgid for PROCESS_GROUP.
type ChildFilter struct {
	Kind Tfilter
	Id   Tpid
}

func AnyChild() ChildFilter {
	return ChildFilter{Kind: ANY_CHILD}
}

func SpecificPid(pid Tpid) ChildFilter {
	return ChildFilter{Kind: SPECIFIC_PID, Id: pid}
}

func ProcessGroup(pgid Tpid) ChildFilter {
	return ChildFilter{Kind: PROCESS_GROUP, Id: pgid}
}

func AnyChildInCallerGroup() ChildFilter {
	return ChildFilter{Kind: ANY_CHILD_IN_CALLER_GROUP}
}

// FilterFromWait4Pid decodes wait4's pid argument: < -1 selects the
// process group -pid, -1 any child, 0 the caller's group, > 0 one pid.
func FilterFromWait4Pid(pid int) ChildFilter {
	switch {
	case pid < -1:
		return ProcessGroup(Tpid(-pid))
	case pid == -1:
		return AnyChild()
	case pid == 0:
		return AnyChildInCallerGroup()
	default:
		return SpecificPid(Tpid(pid))
	}
}

// Resolve replaces the caller-relative filter by the group it denotes,
// so that the filter can be matched by an exiting child that does not
// know the caller.
func (f ChildFilter) Resolve(callerPgid Tpid) ChildFilter {
	if f.Kind == ANY_CHILD_IN_CALLER_GROUP {
		return ProcessGroup(callerPgid)
	}
	return f
}

// Matches reports whether a child with pid and pgid satisfies a
// resolved filter.
func (f ChildFilter) Matches(pid, pgid Tpid) bool {
	switch f.Kind {
	case ANY_CHILD:
		return true
	case SPECIFIC_PID:
		return f.Id == pid
	case PROCESS_GROUP:
		return f.Id == pgid
	default:
		return false
	}
}

func (f ChildFilter) String() string {
	switch f.Kind {
	case ANY_CHILD:
		return "AnyChild"
	case SPECIFIC_PID:
		return fmt.Sprintf("SpecificPid(%v)", f.Id)
	case PROCESS_GROUP:
		return fmt.Sprintf("ProcessGroup(%v)", f.Id)
	case ANY_CHILD_IN_CALLER_GROUP:
		return "AnyChildInCallerGroup"
	default:
		return "unknown filter"
	}
}
