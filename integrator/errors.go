package integrator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when a pipeline stage is called out of
	// order.
	ErrInvalidState = errors.New("integrator: stage called out of order")

	// ErrUnsupported is returned for features this integrator does not
	// implement, such as denoising or AOV output.
	ErrUnsupported = errors.New("integrator: unsupported feature")

	// ErrSceneNotFinalized is returned by UploadGPUData for a scene that has
	// not been finalized.
	ErrSceneNotFinalized = errors.New("integrator: scene not finalized")
)

// StageError reports a failed pipeline stage. The wrapped error is usually
// a compute error carrying the kernel name and device details.
type StageError struct {
	Stage  string
	Bounce int
	Err    error
}

func (e *StageError) Error() string {
	if e.Bounce >= 0 {
		return fmt.Sprintf("integrator: %s (bounce %d): %v", e.Stage, e.Bounce, e.Err)
	}
	return fmt.Sprintf("integrator: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stateError(stage string, s State, bounce int) error {
	return fmt.Errorf("%w: %s in state %s (bounce %d)", ErrInvalidState, stage, s, bounce)
}
