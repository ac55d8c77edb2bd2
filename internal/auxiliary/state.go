package auxiliary

// State is the lifecycle position of an auxiliary instance. The terminal
// state equals the initial state so an instance can be created again after
// deletion (suspend/resume relies on this).
type State int

const (
	// Uninstantiated: no worker, channel closed. Initial and terminal.
	Uninstantiated State = iota
	// Starting: worker spawned, create hook in flight.
	Starting
	// Running: create hook succeeded, commands accepted.
	Running
	// Stopping: delete sentinel submitted, worker shutting down.
	Stopping
	// Suspended: deleted by Suspend, expected to Resume.
	Suspended
)

func (s State) String() string {
	switch s {
	case Uninstantiated:
		return "uninstantiated"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}
