package types

// TransactionExecutionResult is the outcome of executing one step.
// A successful result never carries an error; a failed one always does.
type TransactionExecutionResult struct {
	Step      StepType
	Success   bool
	ID        string // local record id, set when a record was created
	Hash      string // set only when a submission occurred
	OrderHash string // set when an order was handed to the order service
	Signature string // set for signature steps
	Error     error
}

// SyncExecutionResult is the outcome of executing one step when the caller needs
// the full submitted record, for instance to read its nonce.
type SyncExecutionResult struct {
	Transaction *TransactionDetails
	Success     bool
	Error       error
}
