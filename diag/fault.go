package diag

// Fault receives programming faults: broken preconditions such as a second
// transfer while the bus is busy. A fault is never recoverable; components
// that report one stop accepting work.
type Fault func(err error)

// Halt is the default Fault. It reports err and aborts.
func Halt(err error) {
	globalLogger.Error("FAULT: " + err.Error())
	panic(err)
}

// OrHalt returns f, or Halt when f is nil.
func OrHalt(f Fault) Fault {
	if f == nil {
		return Halt
	}
	return f
}
