package fuser

// WatcherState is the lifecycle state of a fuser's file watcher
type WatcherState int

const (
	StateNotStarted WatcherState = iota
	StateStarting
	StateStarted
	StateFailed
	StateClosed
)

func (s WatcherState) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
