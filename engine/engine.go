// Package engine runs complete swap flows: it plans a classified trade,
// executes the steps and, for bridge transfers, resolves the cross-chain settlement.
package engine

import (
	"context"

	"github.com/ClipFinance/swap-lib/bridgepoller"
	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/executor"
	"github.com/ClipFinance/swap-lib/planner"
	"github.com/ClipFinance/swap-lib/txwaiter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency bounds the flows RunAll executes at once.
const defaultConcurrency = 8

// Canceller cancels pending transactions by record id.
type Canceller interface {
	Cancel(ctx context.Context, chainID uint64, id string) (*types.TransactionDetails, error)
}

// Outcome is the result of one swap flow.
type Outcome struct {
	Routing  types.Routing
	Executed bool // false when the trade planned to no steps
	Results  []types.TransactionExecutionResult
	Status   types.TransactionStatus
}

// Dependencies are the collaborators of an Engine. Registry, Canceller and
// Publisher are optional.
type Dependencies struct {
	Logger     *logrus.Logger
	Store      types.TransactionStore
	Registry   types.ChainRegistry
	Submitter  types.Submitter
	Canceller  Canceller
	Settlement types.SettlementAPI
	Publisher  types.OrderPublisher
	Bridge     bridgepoller.Config
	PollerOpts []bridgepoller.Option
}

// Engine executes swap flows end to end.
type Engine struct {
	logger      *logrus.Logger
	store       types.TransactionStore
	registry    types.ChainRegistry
	canceller   Canceller
	executor    *executor.Executor
	poller      *bridgepoller.Poller
	concurrency int
}

// NewWithDependencies assembles an Engine from already built collaborators.
//
// Parameters:
// - deps: the collaborators.
//
// Returns:
// - *Engine: the engine.
func NewWithDependencies(deps Dependencies) *Engine {
	var opts []executor.Option
	if deps.Publisher != nil {
		opts = append(opts, executor.WithOrderPublisher(deps.Publisher, deps.Store))
	}

	waiter := txwaiter.New(deps.Store, deps.Logger)

	return &Engine{
		logger:      deps.Logger,
		store:       deps.Store,
		registry:    deps.Registry,
		canceller:   deps.Canceller,
		executor:    executor.NewExecutor(deps.Submitter, waiter, deps.Logger, opts...),
		poller:      bridgepoller.New(deps.Settlement, deps.Store, deps.Logger, deps.Bridge, deps.PollerOpts...),
		concurrency: defaultConcurrency,
	}
}

// Run executes one trade. Bridge trades always wait for the source leg to
// confirm and then poll the settlement until the transfer is final.
//
// Parameters:
// - ctx: the context bounding the flow. Submissions already sent are not withdrawn when it ends.
// - trade: the classified trade.
//
// Returns:
// - *Outcome: the step results and the final status, never nil.
// - error: a *StepFailedError if a step failed, or an error if the settlement could not be resolved.
func (e *Engine) Run(ctx context.Context, trade types.TradeContext) (*Outcome, error) {
	if trade.Routing == types.RoutingBridge {
		trade.WaitForSwap = true
	}

	logger := e.logger.WithFields(logrus.Fields{
		"routing": trade.Routing,
		"chainId": trade.ChainID,
	})

	outcome := &Outcome{Routing: trade.Routing, Status: types.StatusUnknown}

	steps := planner.Plan(trade)
	if len(steps) == 0 {
		logger.Info("Trade has nothing to execute")
		return outcome, nil
	}
	outcome.Executed = true

	results, err := e.executor.ExecuteSteps(ctx, steps)
	outcome.Results = results
	if err != nil {
		outcome.Status = types.StatusFailed
		return outcome, err
	}

	last := results[len(results)-1]
	switch {
	case trade.Routing == types.RoutingBridge:
		outcome.Status, err = e.bridgeStatus(ctx, last)
	case last.Step == types.StepOrderSignature && last.ID == "":
		// Signed but never handed to the order service; only the caller can submit it.
		outcome.Status = types.StatusUnknown
	case last.ID == "":
		outcome.Status = types.StatusSuccess
	default:
		outcome.Status, err = e.recordStatus(ctx, last.ID)
	}
	if err != nil {
		return outcome, err
	}

	logger.WithField("status", outcome.Status).Info("Trade executed")
	return outcome, nil
}

// RunAll executes independent trades concurrently. A failing trade does not
// stop the others.
//
// Parameters:
// - ctx: the context bounding every flow.
// - trades: the trades to execute.
//
// Returns:
// - []*Outcome: one outcome per trade, in input order.
// - error: the combined errors of the failed trades.
func (e *Engine) RunAll(ctx context.Context, trades []types.TradeContext) ([]*Outcome, error) {
	outcomes := make([]*Outcome, len(trades))
	errs := make([]error, len(trades))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range trades {
		i := i // per-iteration copy; the module targets go 1.21 loop semantics.
		g.Go(func() error {
			outcomes[i], errs[i] = e.Run(ctx, trades[i])
			if errs[i] != nil {
				errs[i] = errors.Wrapf(errs[i], "trade %d", i)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, multierr.Combine(errs...)
}

// Cancel replaces a pending transaction with a cancellation. Once the
// cancellation lands the record becomes Canceled, a bridge flow polling the
// record ends with that status.
//
// Parameters:
// - ctx: the context for managing the request.
// - chainID: the chain the transaction was sent on.
// - id: the record id.
//
// Returns:
// - *types.TransactionDetails: the record of the cancellation.
// - error: ErrNotImplemented if the chain cannot cancel, or the cancellation error.
func (e *Engine) Cancel(ctx context.Context, chainID uint64, id string) (*types.TransactionDetails, error) {
	if e.canceller == nil {
		return nil, errors.New("cancellation is not configured")
	}
	return e.canceller.Cancel(ctx, chainID, id)
}

// Close closes the chain backends and the store.
func (e *Engine) Close() error {
	var err error
	if e.registry != nil {
		err = multierr.Append(err, errors.Wrap(e.registry.Close(), "failed to close chains"))
	}
	return multierr.Append(err, errors.Wrap(e.store.Close(), "failed to close store"))
}

func (e *Engine) bridgeStatus(ctx context.Context, result types.TransactionExecutionResult) (types.TransactionStatus, error) {
	if result.ID == "" {
		return types.StatusUnknown, nil
	}

	tx, err := e.store.Get(ctx, result.ID)
	if err != nil {
		return types.StatusUnknown, errors.Wrapf(err, "failed to load source transaction %s", result.ID)
	}

	status, err := e.poller.WaitForBridgingStatus(ctx, tx)
	if err != nil {
		return status, err
	}

	// A status set locally, such as a cancellation, is already final.
	err = e.store.UpdateStatus(context.WithoutCancel(ctx), tx.ID, status)
	if err != nil && !errors.Is(err, commonerrors.ErrStatusFinal) {
		return status, errors.Wrapf(err, "failed to record bridge status of %s", tx.ID)
	}
	return status, nil
}

func (e *Engine) recordStatus(ctx context.Context, id string) (types.TransactionStatus, error) {
	tx, err := e.store.Get(ctx, id)
	if err != nil {
		return types.StatusUnknown, errors.Wrapf(err, "failed to load transaction %s", id)
	}
	return tx.Status, nil
}
