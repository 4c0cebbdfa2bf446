package faucet

import (
	"errors"
	"fmt"

	"github.com/jmehdipour/coin-faucet/internal/throttle"
	"github.com/jmehdipour/coin-faucet/internal/wallet"
)

var ErrInvalidAddress = errors.New("invalid address")

// Kind classifies a pipeline failure for the caller and for logging.
type Kind int

const (
	KindInternal Kind = iota
	// KindInput: malformed request, no side effects.
	KindInput
	// KindIneligible: throttled or wrong credential, no side effects.
	KindIneligible
	// KindDependency: a read failed before any irreversible action.
	KindDependency
	// KindPaymentUnknown: the send failed or timed out, funds may have moved.
	KindPaymentUnknown
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindIneligible:
		return "ineligible"
	case KindDependency:
		return "dependency"
	case KindPaymentUnknown:
		return "payment_unknown"
	default:
		return "internal"
	}
}

// StageError is returned by Pipeline.Claim and names the stage that failed.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// KindOf classifies err. Errors that did not come from the pipeline are
// internal.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func classifyVisit(err error) Kind {
	switch {
	case throttle.IsIneligible(err):
		return KindIneligible
	case errors.Is(err, throttle.ErrMissingCredential):
		return KindInput
	default:
		// includes throttle.ErrUnidentified: fail closed as a system fault
		return KindDependency
	}
}

func classifySend(err error) Kind {
	if errors.Is(err, wallet.ErrNodeUnavailable) {
		return KindDependency
	}
	return KindPaymentUnknown
}
