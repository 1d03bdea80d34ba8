package errors

import (
	"fmt"

	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/pkg/errors"
)

var (
	ErrChainNotFound          = errors.New("chain not found")
	ErrInvalidConfig          = errors.New("invalid configuration")
	ErrChainExists            = errors.New("chain already exists in registry")
	ErrFactoryNotProvided     = errors.New("chain factory not provided")
	ErrInvalidChainType       = errors.New("invalid chain type")
	ErrNotImplemented         = errors.New("functionality not implemented")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrStatusFinal            = errors.New("transaction status is final")
	ErrMissingSignature       = errors.New("permit signature missing for async swap")
	ErrUnsupportedStep        = errors.New("unsupported transaction step")
	ErrWaitFailed             = errors.New("transaction did not succeed")
	ErrInvalidApproveCalldata = errors.New("invalid approve calldata")
)

// StepFailedError is returned when a plan aborts on its first failing step.
// Results holds every result gathered so far, the failing one last.
type StepFailedError struct {
	Step    types.StepType
	Index   int
	Results []types.TransactionExecutionResult
	Err     error
}

// NewStepFailedError creates a StepFailedError for the step at index.
func NewStepFailedError(step types.StepType, index int, results []types.TransactionExecutionResult, err error) *StepFailedError {
	return &StepFailedError{
		Step:    step,
		Index:   index,
		Results: results,
		Err:     err,
	}
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index, e.Step, e.Err)
}

// Unwrap returns the underlying failure.
func (e *StepFailedError) Unwrap() error {
	return e.Err
}

// Cause returns the underlying failure for pkg/errors.Cause.
func (e *StepFailedError) Cause() error {
	return e.Err
}
