package circuit

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode classifies why a tick was not committed.
type ErrorCode int

const (
	TopologyError ErrorCode = iota + 1
	SingularMatrixError
	ConvergenceError
)

func (c ErrorCode) String() string {
	switch c {
	case TopologyError:
		return "TopologyError"
	case SingularMatrixError:
		return "SingularMatrixError"
	case ConvergenceError:
		return "ConvergenceError"
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

var (
	ErrShortedSource = errors.New("voltage source shorted across a single node")
	ErrForeignLead   = errors.New("lead does not belong to this circuit")
	ErrNoConvergence = errors.New("newton iteration did not converge")
)

// SimulationError is delivered to the error sink and returned by DoTick.
type SimulationError struct {
	Code ErrorCode
	Tick uint64
	Time float64
	Err  error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("%s at tick %d (t=%g): %v", e.Code, e.Tick, e.Time, e.Err)
}

func (e *SimulationError) Unwrap() error { return e.Err }

// ErrorHandler receives every uncommitted tick.
type ErrorHandler func(err *SimulationError)

// CodeOf returns the code of a *SimulationError anywhere in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var se *SimulationError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
