package proc

type Tstatus uint8

const (
	Trunning Tstatus = iota + 1
	Tzombie
)

func (status Tstatus) String() string {
	switch status {
	case Trunning:
		return "RUNNING"
	case Tzombie:
		return "ZOMBIE"
	default:
		return "unknown status"
	}
}
