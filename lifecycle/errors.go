package lifecycle

import "errors"

var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrResizeRequiresStop     = errors.New("resize requires a stopped instance")
	ErrConfirmationTimeout    = errors.New("confirmation timed out")
	ErrConcurrentModification = errors.New("instance modified concurrently")
	ErrNotRunning             = errors.New("instance not running")
	ErrNoAddress              = errors.New("instance has no public address")
	ErrUnsupported            = errors.New("operation not supported by provider")

	// errRevisionChanged is internal: a claim lost its compare-and-swap and
	// the caller should re-read and re-evaluate.
	errRevisionChanged = errors.New("revision changed")
)
