// Package executor runs planned transaction steps in order.
package executor

import (
	"context"
	"time"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/txwaiter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Waiter blocks until a submitted operation settles.
type Waiter interface {
	WaitFor(ctx context.Context, id string) (*txwaiter.Result, error)
}

// Executor submits steps through a Submitter and, for steps that must land
// before the next one starts, blocks on a Waiter. It keeps no state between calls.
type Executor struct {
	submitter types.Submitter
	waiter    Waiter
	logger    *logrus.Logger

	orders types.OrderPublisher
	store  types.TransactionStore
}

// Option configures optional Executor collaborators.
type Option func(*Executor)

// WithOrderPublisher hands signed orders to publisher and records them in store.
func WithOrderPublisher(publisher types.OrderPublisher, store types.TransactionStore) Option {
	return func(e *Executor) {
		e.orders = publisher
		e.store = store
	}
}

// NewExecutor creates a new Executor.
//
// Parameters:
// - submitter: the signing and submission capability.
// - waiter: the confirmation waiter.
// - logger: the logger for logging events.
// - opts: optional collaborators.
//
// Returns:
// - *Executor: the executor.
func NewExecutor(submitter types.Submitter, waiter Waiter, logger *logrus.Logger, opts ...Option) *Executor {
	e := &Executor{
		submitter: submitter,
		waiter:    waiter,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteStep executes a single step. Failures never escape as errors or panics:
// they are returned as a result with Success false and the cause in Error.
//
// Parameters:
// - ctx: the context for managing the request.
// - step: the step to execute.
//
// Returns:
// - types.TransactionExecutionResult: the outcome of the step.
func (e *Executor) ExecuteStep(ctx context.Context, step types.TransactionStep) (result types.TransactionExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = e.failed(step, result, errors.Errorf("panic while executing step: %v", r))
		}
	}()

	result, err := e.executeStep(ctx, step)
	if err != nil {
		return e.failed(step, result, err)
	}
	result.Success = true
	return result
}

// ExecuteStepSync executes a single on-chain step and returns the full submitted
// record, for callers that need it right away (for instance to read the nonce).
//
// Parameters:
// - ctx: the context for managing the request.
// - step: the step to execute, signature and batched steps are not supported.
//
// Returns:
// - types.SyncExecutionResult: the outcome of the step with the submitted record.
func (e *Executor) ExecuteStepSync(ctx context.Context, step types.TransactionStep) (result types.SyncExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = e.failedSync(step, result.Transaction, errors.Errorf("panic while executing step: %v", r))
		}
	}()

	req, wait, err := e.submitRequest(ctx, step)
	if err != nil {
		return e.failedSync(step, nil, err)
	}

	tx, err := e.submitter.SubmitSync(context.WithoutCancel(ctx), req)
	if err != nil {
		return e.failedSync(step, nil, errors.Wrapf(err, "failed to submit %s", step.Type()))
	}

	if wait {
		outcome, err := e.wait(ctx, step.Type(), tx.ID, tx.Hash)
		if outcome != nil && outcome.Transaction != nil {
			tx = outcome.Transaction
		}
		if err != nil {
			return e.failedSync(step, tx, err)
		}
	}

	return types.SyncExecutionResult{Transaction: tx, Success: true}
}

// ExecuteSteps executes steps strictly in order and stops at the first failure.
// Later steps depend on the state earlier ones create, so they are never attempted
// after a failure. The returned error is a *StepFailedError naming the failing step
// and carrying every result gathered so far, the failing one included.
// A permit signature produced by one step is bound to the async swap that follows it.
//
// Parameters:
// - ctx: the context for managing the request.
// - steps: the plan to execute.
//
// Returns:
// - []types.TransactionExecutionResult: one result per attempted step.
// - error: a *StepFailedError if a step failed, or the context error if ctx ended between steps.
func (e *Executor) ExecuteSteps(ctx context.Context, steps []types.TransactionStep) ([]types.TransactionExecutionResult, error) {
	results := make([]types.TransactionExecutionResult, 0, len(steps))
	var signature string

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrapf(err, "plan interrupted before step %d (%s)", i, stepKind(step))
		}

		if async, ok := step.(types.SwapTransactionAsyncStep); ok && async.Signature() == "" && signature != "" {
			step = async.WithSignature(signature)
		}

		result := e.ExecuteStep(ctx, step)
		results = append(results, result)

		if !result.Success {
			return results, commonerrors.NewStepFailedError(stepKind(step), i, results, result.Error)
		}

		if stepKind(step) == types.StepPermit2Signature {
			signature = result.Signature
		}
	}

	return results, nil
}

func (e *Executor) executeStep(ctx context.Context, step types.TransactionStep) (types.TransactionExecutionResult, error) {
	if step == nil {
		return types.TransactionExecutionResult{}, errors.Wrap(commonerrors.ErrUnsupportedStep, "nil step")
	}
	result := types.TransactionExecutionResult{Step: step.Type()}

	switch s := step.(type) {
	case types.Permit2SignatureStep:
		signature, err := e.submitter.SignTypedData(context.WithoutCancel(ctx), s.ChainID, s.TypedData)
		if err != nil {
			return result, errors.Wrap(err, "failed to sign permit")
		}
		result.Signature = signature
		return result, nil

	case types.OrderSignatureStep:
		return e.signOrder(ctx, s)

	case types.SwapTransactionBatchedStep:
		submitted, err := e.submitter.SubmitBatch(context.WithoutCancel(ctx), &types.SubmitBatchRequest{
			ChainID:  s.ChainID,
			Requests: s.Requests,
			Routing:  s.Routing,
			Type:     swapType(s.Routing),
		})
		if err != nil {
			return result, errors.Wrap(err, "failed to submit batch")
		}
		result.ID = submitted.ID
		result.Hash = submitted.Hash

		if s.Wait {
			_, err = e.wait(ctx, step.Type(), result.ID, result.Hash)
		}
		return result, err
	}

	req, wait, err := e.submitRequest(ctx, step)
	if err != nil {
		return result, err
	}

	submitted, err := e.submitter.Submit(context.WithoutCancel(ctx), req)
	if err != nil {
		return result, errors.Wrapf(err, "failed to submit %s", step.Type())
	}
	result.ID = submitted.ID
	result.Hash = submitted.Hash

	if wait {
		_, err = e.wait(ctx, step.Type(), result.ID, result.Hash)
	}
	return result, err
}

// submitRequest builds the submission for steps that send exactly one transaction.
func (e *Executor) submitRequest(ctx context.Context, step types.TransactionStep) (*types.SubmitRequest, bool, error) {
	switch s := step.(type) {
	case types.WrapStep:
		return onChainRequest(s.OnChainStep, types.TransactionTypeWrap), s.Wait, nil
	case types.RevocationStep:
		return onChainRequest(s.OnChainStep, types.TransactionTypeApprove), s.Wait, nil
	case types.ApprovalStep:
		return onChainRequest(s.OnChainStep, types.TransactionTypeApprove), s.Wait, nil
	case types.Permit2TransactionStep:
		return onChainRequest(s.OnChainStep, types.TransactionTypePermit2Approve), s.Wait, nil
	case types.SwapTransactionStep:
		return onChainRequest(s.OnChainStep, swapType(s.Routing)), s.Wait, nil

	case types.SwapTransactionAsyncStep:
		if s.Signature() == "" {
			return nil, false, commonerrors.ErrMissingSignature
		}
		if s.Resolver == nil {
			return nil, false, errors.New("async swap has no request resolver")
		}

		request, err := s.Resolver.ResolveSwapRequest(ctx, s.Signature())
		if err != nil {
			return nil, false, errors.Wrap(err, "failed to resolve swap request")
		}
		if request.IsEmpty() {
			return nil, false, errors.New("resolved swap request is empty")
		}

		resolved := *request
		if resolved.ChainID == 0 {
			resolved.ChainID = s.ChainID
		}
		return &types.SubmitRequest{
			Request: resolved,
			Routing: s.Routing,
			Type:    swapType(s.Routing),
		}, s.Wait, nil

	default:
		return nil, false, errors.Wrapf(commonerrors.ErrUnsupportedStep, "%s (%T)", stepKind(step), step)
	}
}

func (e *Executor) signOrder(ctx context.Context, s types.OrderSignatureStep) (types.TransactionExecutionResult, error) {
	result := types.TransactionExecutionResult{Step: s.Type()}

	signature, err := e.submitter.SignTypedData(context.WithoutCancel(ctx), s.ChainID, s.TypedData)
	if err != nil {
		return result, errors.Wrap(err, "failed to sign order")
	}
	result.Signature = signature

	if e.orders == nil {
		return result, nil
	}

	orderHash, err := e.orders.PublishOrder(context.WithoutCancel(ctx), &types.SignedOrder{
		ChainID:      s.ChainID,
		QuoteID:      s.QuoteID,
		EncodedOrder: s.EncodedOrder,
		Signature:    signature,
	})
	if err != nil {
		return result, errors.Wrap(err, "failed to publish order")
	}
	result.OrderHash = orderHash

	if e.store != nil {
		record := &types.TransactionDetails{
			ID:        uuid.NewString(),
			ChainID:   s.ChainID,
			OrderHash: orderHash,
			Status:    types.StatusPending,
			Routing:   types.RoutingAuctionedOrder,
			Type:      types.TransactionTypeSwap,
			AddedTime: time.Now().UTC(),
		}
		if err := e.store.Put(ctx, record); err != nil {
			return result, errors.Wrap(err, "failed to record order")
		}
		result.ID = record.ID
	}

	return result, nil
}

func (e *Executor) wait(ctx context.Context, kind types.StepType, id, hash string) (*txwaiter.Result, error) {
	outcome, err := e.waiter.WaitFor(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to wait for %s transaction %s", kind, hash)
	}
	if !outcome.Success {
		status := types.StatusUnknown
		if outcome.Transaction != nil {
			status = outcome.Transaction.Status
		}
		return outcome, errors.Wrapf(commonerrors.ErrWaitFailed, "%s transaction %s ended as %s", kind, hash, status)
	}
	return outcome, nil
}

func (e *Executor) failed(step types.TransactionStep, result types.TransactionExecutionResult, err error) types.TransactionExecutionResult {
	e.logStepError(step, err)

	result.Step = stepKind(step)
	result.Success = false
	result.Error = err
	return result
}

func (e *Executor) failedSync(step types.TransactionStep, tx *types.TransactionDetails, err error) types.SyncExecutionResult {
	e.logStepError(step, err)
	return types.SyncExecutionResult{Transaction: tx, Success: false, Error: err}
}

func (e *Executor) logStepError(step types.TransactionStep, err error) {
	e.logger.WithError(err).WithField("step", stepKind(step)).Error("Transaction step failed")
}

func stepKind(step types.TransactionStep) types.StepType {
	if step == nil {
		return ""
	}
	return step.Type()
}

func onChainRequest(step types.OnChainStep, txType types.TransactionType) *types.SubmitRequest {
	return &types.SubmitRequest{
		Request: step.Request,
		Routing: step.Routing,
		Type:    txType,
	}
}

func swapType(routing types.Routing) types.TransactionType {
	if routing == types.RoutingBridge {
		return types.TransactionTypeBridge
	}
	return types.TransactionTypeSwap
}
