package proc

import (
	"strconv"
)

// Tpid names a process or a thread.  Pids and tids come from the same
// allocator, so a Tpid is unique among live processes and threads.
type Tpid int32

const NO_PID Tpid = 0

func (pid Tpid) String() string {
	return strconv.Itoa(int(pid))
}
