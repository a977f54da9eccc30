package proc

type Twaitopt uint32

// Option bits of wait4, with Linux values.
const (
	WNOHANG    Twaitopt = 0x1
	WUNTRACED  Twaitopt = 0x2
	WCONTINUED Twaitopt = 0x8

	// There are no stopped or continued states, so WUNTRACED and
	// WCONTINUED are accepted and have no effect.
	WAIT_OPTS_SUPPORTED = WNOHANG | WUNTRACED | WCONTINUED
)

func (o Twaitopt) NoHang() bool {
	return o&WNOHANG != 0
}

func (o Twaitopt) Valid() bool {
	return o&^WAIT_OPTS_SUPPORTED == 0
}

// Signals the core uses to encode abnormal terminations.
const (
	SIGKILL = 9
	SIGSEGV = 11
)

// WaitStatusExited encodes a normal exit the way wait4 reports it in
// its status word (WIFEXITED, WEXITSTATUS).
func WaitStatusExited(code int) int {
	return (code & 0xff) << 8
}

func WaitStatusExitCode(ws int) int {
	return (ws >> 8) & 0xff
}
