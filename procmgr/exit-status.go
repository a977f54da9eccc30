package procmgr

// exitStatus is a zombie's exit code.  It is set once, by whichever
// exit turns the process into a zombie.
type exitStatus struct {
	code int
	set  bool
}

// caller holds lock
func (es *exitStatus) setStatus(code int) {
	if es.set {
		return
	}
	es.code = code
	es.set = true
}

// caller holds lock
func (es *exitStatus) getStatus() (int, bool) {
	return es.code, es.set
}
