package debug

type Tselector string

// ALWAYS
const (
	ALWAYS Tselector = "ALWAYS"
	ERROR            = "ERROR"
	NEVER            = "NEVER"
)

// ERR
const (
	ERR Tselector = "_ERR"
)

// Tests
const (
	TEST  Tselector = "TEST"
	TEST1           = "TEST1"
)

// Config
const (
	CONFIG Tselector = "CONFIG"
)

// Process manager
const (
	PROCMGR     Tselector = "PROCMGR"
	PROCMGR_ERR           = PROCMGR + ERR
	SPAWN                 = "SPAWN"
	SPAWN_ERR             = SPAWN + ERR
	CLONE                 = "CLONE"
	CLONE_ERR             = CLONE + ERR
	EXIT                  = "EXIT"
	WAIT                  = "WAIT"
	WAIT_ERR              = WAIT + ERR
	REPARENT              = "REPARENT"
)

// Process table
const (
	PROCTAB     Tselector = "PROCTAB"
	PROCTAB_ERR           = PROCTAB + ERR
)

// Blocking primitives
const (
	WAITQ     Tselector = "WAITQ"
	FUTEX               = "FUTEX"
	FUTEX_ERR           = FUTEX + ERR
)

// Collaborators
const (
	VM          Tselector = "VM"
	VM_ERR                = VM + ERR
	FDTABLE               = "FDTABLE"
	FDTABLE_ERR           = FDTABLE + ERR
	TASK                  = "TASK"
	TASK_ERR              = TASK + ERR
	LOADER                = "LOADER"
)

// Simulator
const (
	PROCSIM Tselector = "PROCSIM"
)
