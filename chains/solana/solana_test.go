package solana

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ClipFinance/swap-lib/chains/solana/utils"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/txstore"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type stubStatuses struct {
	mu      sync.Mutex
	results []*rpc.SignatureStatusesResult
	calls   int
}

func (s *stubStatuses) GetSignatureStatuses(_ context.Context, _ bool, _ ...sol.Signature) (*rpc.GetSignatureStatusesResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls > len(s.results) {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	result := s.results[s.calls-1]
	if result == nil {
		return nil, errors.New("node unavailable")
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{result}}, nil
}

func newTestSolana(t *testing.T, statuses signatureStatusSource) (*solana, *txstore.MemoryStore) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := txstore.NewMemoryStore()
	s := newSolana(&types.ChainConfig{Name: "solana", ChainType: types.SOLANA, ChainID: 501}, store, logger, nil)
	s.statuses = statuses
	s.pollInterval = time.Millisecond
	s.expiry = time.Second
	t.Cleanup(func() { _ = s.Close() })
	return s, store
}

func transferTx(t *testing.T, payer sol.PublicKey) *sol.Transaction {
	t.Helper()

	recipient := sol.NewWallet().PublicKey()
	tx, err := sol.NewTransaction(
		[]sol.Instruction{system.NewTransferInstruction(1000, payer, recipient).Build()},
		sol.Hash{1, 2, 3},
		sol.TransactionPayer(payer),
	)
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	return tx
}

func TestSignTransaction(t *testing.T) {
	key := sol.NewWallet().PrivateKey
	serialized, err := utils.EncodeTransaction(transferTx(t, key.PublicKey()))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tx, err := utils.DecodeTransaction(serialized)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !utils.FeePayer(tx).Equals(key.PublicKey()) {
		t.Fatalf("fee payer = %s, want %s", utils.FeePayer(tx), key.PublicKey())
	}

	sig, err := signTransaction(tx, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(tx.Signatures) != 1 || tx.Signatures[0] != sig {
		t.Fatalf("signatures = %v, want [%s]", tx.Signatures, sig)
	}
	if err := tx.VerifySignatures(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestSignTransactionRejectsForeignKey(t *testing.T) {
	tx := transferTx(t, sol.NewWallet().PublicKey())

	if _, err := signTransaction(tx, sol.NewWallet().PrivateKey); err == nil {
		t.Fatal("expected an error for a key that is not a signer")
	}
}

func TestDecodeTransactionErrors(t *testing.T) {
	for _, serialized := range []string{"", "not base64!", "AAAA"} {
		if _, err := utils.DecodeTransaction(serialized); err == nil {
			t.Errorf("DecodeTransaction(%q) succeeded", serialized)
		}
	}
}

func TestSignatureStatus(t *testing.T) {
	tests := []struct {
		name   string
		status *rpc.SignatureStatusesResult
		want   types.TransactionStatus
		done   bool
	}{
		{name: "unknown", status: nil},
		{name: "processed", status: &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusProcessed}},
		{name: "confirmed", status: &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}, want: types.StatusSuccess, done: true},
		{name: "finalized", status: &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusFinalized}, want: types.StatusSuccess, done: true},
		{name: "error", status: &rpc.SignatureStatusesResult{Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}, want: types.StatusFailed, done: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, done := signatureStatus(tt.status)
			if got != tt.want || done != tt.done {
				t.Fatalf("got (%q, %v), want (%q, %v)", got, done, tt.want, tt.done)
			}
		})
	}
}

func TestTrackSettlesRecord(t *testing.T) {
	statuses := &stubStatuses{results: []*rpc.SignatureStatusesResult{
		nil,
		{ConfirmationStatus: rpc.ConfirmationStatusProcessed},
		{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
	}}
	s, store := newTestSolana(t, statuses)

	err := store.Put(context.Background(), &types.TransactionDetails{ID: "swap", ChainID: 501, Status: types.StatusPending})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	updates, err := store.Subscribe(ctx, "swap")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	s.track("swap", sol.Signature{9})

	for tx := range updates {
		if tx.Status.IsFinal() {
			if tx.Status != types.StatusSuccess {
				t.Fatalf("status = %s, want %s", tx.Status, types.StatusSuccess)
			}
			return
		}
	}
	t.Fatal("record never settled")
}

func TestWaitSignatureExpires(t *testing.T) {
	s, _ := newTestSolana(t, &stubStatuses{})
	s.expiry = 20 * time.Millisecond

	status, ok := s.waitSignature(context.Background(), sol.Signature{1})
	if !ok || status != types.StatusExpired {
		t.Fatalf("got (%s, %v), want (%s, true)", status, ok, types.StatusExpired)
	}
}

func TestWaitSignatureStopsOnClose(t *testing.T) {
	s, _ := newTestSolana(t, &stubStatuses{})
	s.expiry = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := s.waitSignature(ctx, sol.Signature{1}); ok {
		t.Fatal("expected no status once the context ended")
	}
}

func TestSendTransactionValidation(t *testing.T) {
	s, _ := newTestSolana(t, &stubStatuses{})

	if _, err := s.SendTransaction(context.Background(), &types.SubmitRequest{}); err == nil {
		t.Fatal("expected an error without a signer")
	}

	key := sol.NewWallet().PrivateKey
	s.signer = &key

	_, err := s.SendTransaction(context.Background(), &types.SubmitRequest{Request: types.TxRequest{ChainID: 1}})
	if err == nil {
		t.Fatal("expected an error for a request targeting another chain")
	}
	_, err = s.SendTransaction(context.Background(), &types.SubmitRequest{Request: types.TxRequest{SerializedTx: "AAAA"}})
	if err == nil {
		t.Fatal("expected an error for a malformed transaction")
	}
}

func TestLamports(t *testing.T) {
	if got := utils.LamportsToSol(1_500_000_000); got != 1.5 {
		t.Errorf("LamportsToSol = %v, want 1.5", got)
	}
	if got := utils.SolToLamports(0.25); got != 250_000_000 {
		t.Errorf("SolToLamports = %d, want 250000000", got)
	}
	if got := utils.SolToLamports(-1); got != 0 {
		t.Errorf("SolToLamports(-1) = %d, want 0", got)
	}
}

func TestTrackAfterCloseIsIgnored(t *testing.T) {
	statuses := &stubStatuses{results: []*rpc.SignatureStatusesResult{{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}}}
	s, store := newTestSolana(t, statuses)

	err := store.Put(context.Background(), &types.TransactionDetails{ID: "swap", ChainID: 501, Status: types.StatusPending})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	s.stopTrackers()
	s.track("swap", sol.Signature{9})
	s.trackers.Wait()

	tx, err := store.Get(context.Background(), "swap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tx.Status != types.StatusPending {
		t.Fatalf("status = %s, a stopped backend must not track", tx.Status)
	}
}

func TestTrackRacingClose(t *testing.T) {
	s, _ := newTestSolana(t, &stubStatuses{})
	s.expiry = time.Hour

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.track("swap", sol.Signature{byte(i)})
		}(i)
	}
	s.stopTrackers()
	wg.Wait()
	s.trackers.Wait()
}
