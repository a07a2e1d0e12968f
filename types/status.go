package types

// Status is the lifecycle state of an instance as last reported by its provider.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusStopped    Status = "stopped"
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusStopping   Status = "stopping"
	StatusTerminated Status = "terminated"
)

// Transient reports whether the status is on its way to another one.
func (s Status) Transient() bool {
	return s == StatusStarting || s == StatusStopping
}

func (s Status) String() string {
	if s == "" {
		return string(StatusUnknown)
	}
	return string(s)
}
