package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventbus"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
)

var (
	ErrNotFound          = errors.New("orchestrator: not found")
	ErrInvalidTransition = errors.New("orchestrator: invalid status transition")
	ErrNoCommandCenter   = errors.New("orchestrator: no command center")
	ErrNoGovernanceCycle = errors.New("orchestrator: no governance cycle recorded")
)

// ValidationError rejects malformed operation input. State is unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("orchestrator: invalid %s: %s", e.Field, e.Reason)
}

// GatingError is returned when command center generation is refused. The
// refusal itself is recorded as a command_center.generation_blocked event.
type GatingError struct {
	ReportID    string
	Reason      string
	HealthScore float64
	Gaps        []planning.Gap
	Questions   []string
}

func (e *GatingError) Error() string {
	return "orchestrator: command center generation blocked: " + e.Reason
}

// CollaboratorError is a failed generator call, tagged with the execution id
// the failure was logged under.
type CollaboratorError struct {
	Step        string
	Template    string
	ExecutionID string
	Timestamp   time.Time
	Err         error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("orchestrator: %s failed (execution %s): %v", e.Step, e.ExecutionID, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// cause strips dispatcher wrapping so callers see the handler's own error.
// Multiple failures are joined.
func cause(err error) error {
	for {
		var de *eventbus.DispatchError
		if !errors.As(err, &de) || len(de.Failures) == 0 {
			return err
		}
		if len(de.Failures) == 1 {
			err = de.Failures[0].Err
			continue
		}
		errs := make([]error, 0, len(de.Failures))
		for _, f := range de.Failures {
			errs = append(errs, f.Err)
		}
		return errors.Join(errs...)
	}
}
