package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ClipFinance/swap-lib/bridgepoller"
	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/config"
	"github.com/ClipFinance/swap-lib/txstore"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// stubSubmitter records every submission in the store and settles it at once.
type stubSubmitter struct {
	mu      sync.Mutex
	store   *txstore.MemoryStore
	n       int
	failFor uint64 // chain id whose submissions fail
	status  types.TransactionStatus
}

func (s *stubSubmitter) Submit(ctx context.Context, req *types.SubmitRequest) (*types.SubmitResult, error) {
	tx, err := s.SubmitSync(ctx, req)
	if err != nil {
		return nil, err
	}
	return &types.SubmitResult{ID: tx.ID, Hash: tx.Hash}, nil
}

func (s *stubSubmitter) SubmitSync(ctx context.Context, req *types.SubmitRequest) (*types.TransactionDetails, error) {
	if req.Request.ChainID == s.failFor {
		return nil, errors.New("insufficient funds for gas")
	}

	s.mu.Lock()
	s.n++
	n := s.n
	s.mu.Unlock()

	tx := &types.TransactionDetails{
		ID:      fmt.Sprintf("%d-%d", req.Request.ChainID, n),
		ChainID: req.Request.ChainID,
		Hash:    fmt.Sprintf("0x%x", n),
		Status:  types.StatusPending,
		Routing: req.Routing,
		Type:    req.Type,
	}
	if err := s.store.Put(ctx, tx); err != nil {
		return nil, err
	}

	status := s.status
	if status == "" {
		status = types.StatusSuccess
	}
	if err := txstore.Settle(ctx, s.store, tx.ID, status); err != nil {
		return nil, err
	}
	return tx.Clone(), nil
}

func (s *stubSubmitter) SubmitBatch(context.Context, *types.SubmitBatchRequest) (*types.SubmitResult, error) {
	return nil, commonerrors.ErrNotImplemented
}

func (s *stubSubmitter) SignTypedData(context.Context, uint64, apitypes.TypedData) (string, error) {
	return "0xsignature", nil
}

type stubSettlement struct {
	mu      sync.Mutex
	status  types.SwapStatus
	hashes  []string
	onFetch func(hash string)
}

func (s *stubSettlement) FetchStatus(_ context.Context, txHash string, _ uint64) (types.SwapStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes = append(s.hashes, txHash)
	if s.onFetch != nil {
		s.onFetch(txHash)
	}
	return s.status, nil
}

func (s *stubSettlement) SupportsChain(chainID uint64) bool {
	return chainID == 1
}

type stubCanceller struct {
	chainID uint64
	id      string
}

func (c *stubCanceller) Cancel(_ context.Context, chainID uint64, id string) (*types.TransactionDetails, error) {
	c.chainID, c.id = chainID, id
	return &types.TransactionDetails{ID: "cancel", Type: types.TransactionTypeCancel}, nil
}

type stubRegistry struct {
	types.ChainRegistry
	closed bool
}

func (r *stubRegistry) Close() error {
	r.closed = true
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestEngine(t *testing.T, submitter *stubSubmitter, api types.SettlementAPI) (*Engine, *txstore.MemoryStore) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := txstore.NewMemoryStore()
	submitter.store = store

	e := NewWithDependencies(Dependencies{
		Logger:     logger,
		Store:      store,
		Submitter:  submitter,
		Settlement: api,
		PollerOpts: []bridgepoller.Option{bridgepoller.WithSleep(noSleep)},
	})
	return e, store
}

func swapTrade(routing types.Routing, chainID uint64) types.TradeContext {
	return types.TradeContext{
		Routing:       routing,
		ChainID:       chainID,
		SwapTxRequest: &types.TxRequest{To: "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD", Data: []byte{0x01}},
	}
}

func TestRunClassic(t *testing.T) {
	e, _ := newTestEngine(t, &stubSubmitter{}, &stubSettlement{})

	outcome, err := e.Run(context.Background(), swapTrade(types.RoutingClassic, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Executed || len(outcome.Results) != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Status != types.StatusSuccess {
		t.Fatalf("status = %s, want %s", outcome.Status, types.StatusSuccess)
	}
}

func TestRunClassicReportsRecordStatus(t *testing.T) {
	e, _ := newTestEngine(t, &stubSubmitter{status: types.StatusPending}, &stubSettlement{})

	// Classic swaps are not waited for, the outcome reflects the record as it is.
	outcome, err := e.Run(context.Background(), swapTrade(types.RoutingClassic, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != types.StatusPending {
		t.Fatalf("status = %s, want %s", outcome.Status, types.StatusPending)
	}
}

func TestRunBridgePollsSettlement(t *testing.T) {
	api := &stubSettlement{status: types.SwapStatusFilled}
	e, store := newTestEngine(t, &stubSubmitter{}, api)

	outcome, err := e.Run(context.Background(), swapTrade(types.RoutingBridge, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != types.StatusSuccess {
		t.Fatalf("status = %s, want %s", outcome.Status, types.StatusSuccess)
	}
	if len(api.hashes) != 1 || api.hashes[0] != outcome.Results[0].Hash {
		t.Fatalf("settlement polled with %v, want [%s]", api.hashes, outcome.Results[0].Hash)
	}

	tx, err := store.Get(context.Background(), outcome.Results[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tx.Status != types.StatusSuccess || tx.Type != types.TransactionTypeBridge {
		t.Fatalf("record = %+v, want a settled bridge", tx)
	}
}

func TestRunBridgeSettlementFails(t *testing.T) {
	api := &stubSettlement{status: types.SwapStatusFailed}
	e, store := newTestEngine(t, &stubSubmitter{}, api)

	outcome, err := e.Run(context.Background(), swapTrade(types.RoutingBridge, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != types.StatusFailed {
		t.Fatalf("status = %s, want %s", outcome.Status, types.StatusFailed)
	}
	if tx, _ := store.Get(context.Background(), outcome.Results[0].ID); tx.Status != types.StatusFailed {
		t.Fatalf("record = %s, want %s", tx.Status, types.StatusFailed)
	}
}

func TestRunBridgeCanceledLocally(t *testing.T) {
	api := &stubSettlement{status: types.SwapStatusPending}
	submitter := &stubSubmitter{}
	e, store := newTestEngine(t, submitter, api)

	// The record is cancelled while the settlement is still pending.
	api.onFetch = func(hash string) {
		_ = store.UpdateStatus(context.Background(), "1-1", types.StatusCanceled)
	}

	outcome, err := e.Run(context.Background(), swapTrade(types.RoutingBridge, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != types.StatusCanceled {
		t.Fatalf("status = %s, want %s", outcome.Status, types.StatusCanceled)
	}
}

func TestRunBridgeSourceLegFails(t *testing.T) {
	api := &stubSettlement{status: types.SwapStatusFilled}
	e, _ := newTestEngine(t, &stubSubmitter{status: types.StatusFailed}, api)

	outcome, err := e.Run(context.Background(), swapTrade(types.RoutingBridge, 1))

	var stepErr *commonerrors.StepFailedError
	if !errors.As(err, &stepErr) {
		t.Fatalf("err = %v, want StepFailedError", err)
	}
	if !errors.Is(err, commonerrors.ErrWaitFailed) {
		t.Fatalf("err = %v, want ErrWaitFailed", err)
	}
	if outcome.Status != types.StatusFailed {
		t.Fatalf("status = %s, want %s", outcome.Status, types.StatusFailed)
	}
	if len(api.hashes) != 0 {
		t.Fatal("settlement must not be polled when the source leg failed")
	}
}

func TestRunBridgeUnsupportedChain(t *testing.T) {
	api := &stubSettlement{status: types.SwapStatusFilled}
	e, _ := newTestEngine(t, &stubSubmitter{}, api)

	outcome, err := e.Run(context.Background(), swapTrade(types.RoutingBridge, 56))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != types.StatusUnknown {
		t.Fatalf("status = %s, want %s", outcome.Status, types.StatusUnknown)
	}
}

func TestRunEmptyPlan(t *testing.T) {
	submitter := &stubSubmitter{}
	e, _ := newTestEngine(t, submitter, &stubSettlement{})

	outcome, err := e.Run(context.Background(), types.TradeContext{Routing: types.RoutingClassic, ChainID: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Executed || len(outcome.Results) != 0 {
		t.Fatalf("outcome = %+v, want nothing executed", outcome)
	}
	if submitter.n != 0 {
		t.Fatalf("submissions = %d, want 0", submitter.n)
	}
}

func TestRunAll(t *testing.T) {
	e, _ := newTestEngine(t, &stubSubmitter{failFor: 10}, &stubSettlement{})

	trades := []types.TradeContext{
		swapTrade(types.RoutingClassic, 1),
		swapTrade(types.RoutingClassic, 10),
		swapTrade(types.RoutingClassic, 1),
	}
	outcomes, err := e.RunAll(context.Background(), trades)
	if err == nil {
		t.Fatal("expected the error of trade 1")
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	for i, want := range []types.TransactionStatus{types.StatusSuccess, types.StatusFailed, types.StatusSuccess} {
		if outcomes[i] == nil || outcomes[i].Status != want {
			t.Errorf("outcome %d = %+v, want status %s", i, outcomes[i], want)
		}
	}
}

func TestCancel(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	canceller := &stubCanceller{}

	e := NewWithDependencies(Dependencies{
		Logger:     logger,
		Store:      txstore.NewMemoryStore(),
		Submitter:  &stubSubmitter{},
		Canceller:  canceller,
		Settlement: noSettlement{},
	})

	tx, err := e.Cancel(context.Background(), 1, "swap")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if tx.Type != types.TransactionTypeCancel || canceller.chainID != 1 || canceller.id != "swap" {
		t.Fatalf("cancel = %+v, canceller = %+v", tx, canceller)
	}

	e.canceller = nil
	if _, err := e.Cancel(context.Background(), 1, "swap"); err == nil {
		t.Fatal("expected an error without a canceller")
	}
}

func TestClose(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry := &stubRegistry{}

	e := NewWithDependencies(Dependencies{
		Logger:     logger,
		Store:      txstore.NewMemoryStore(),
		Registry:   registry,
		Submitter:  &stubSubmitter{},
		Settlement: noSettlement{},
	})

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !registry.closed {
		t.Fatal("registry was not closed")
	}
}

func TestNewRejectsUnknownChainType(t *testing.T) {
	cfg := &config.Config{
		Log:    config.LogConfig{Level: "error"},
		Chains: []types.ChainConfig{{ChainID: 1, ChainType: "COSMOS", RpcUrl: "https://rpc.example"}},
		Store:  config.StoreConfig{Driver: config.StoreMemory},
	}

	if _, err := New(context.Background(), cfg); !errors.Is(err, commonerrors.ErrInvalidChainType) {
		t.Fatalf("err = %v, want ErrInvalidChainType", err)
	}
}

func TestRunAuctionedOrderWithoutPublisher(t *testing.T) {
	e, _ := newTestEngine(t, &stubSubmitter{}, &stubSettlement{})

	outcome, err := e.Run(context.Background(), types.TradeContext{
		Routing: types.RoutingAuctionedOrder,
		ChainID: 1,
		Order:   &types.Order{QuoteID: "q-1", EncodedOrder: "0xabc", TypedData: apitypes.TypedData{PrimaryType: "Order"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcome.Results) != 1 || outcome.Results[0].Step != types.StepOrderSignature {
		t.Fatalf("results = %+v", outcome.Results)
	}
	if outcome.Results[0].Signature != "0xsignature" {
		t.Fatalf("signature = %q", outcome.Results[0].Signature)
	}
	if outcome.Status != types.StatusUnknown {
		t.Fatalf("status = %s, an unpublished order must not be reported as %s", outcome.Status, types.StatusSuccess)
	}
}
