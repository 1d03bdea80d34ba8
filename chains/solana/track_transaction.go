package solana

import (
	"context"
	"time"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ClipFinance/swap-lib/txstore"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// signatureStatusSource reads signature statuses, *rpc.Client satisfies it.
type signatureStatusSource interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...sol.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// track polls the status of sig until it settles and writes the outcome to the record id.
func (s *solana) track(id string, sig sol.Signature) {
	s.trackMutex.Lock()
	defer s.trackMutex.Unlock()
	if s.trackCtx.Err() != nil {
		return
	}

	s.trackers.Add(1)
	go func() {
		defer s.trackers.Done()

		status, ok := s.waitSignature(s.trackCtx, sig)
		if !ok {
			return
		}

		err := txstore.Settle(context.Background(), s.store, id, status)
		if err != nil && !errors.Is(err, commonerrors.ErrStatusFinal) {
			s.logger.WithField("txId", id).WithError(err).Error("Failed to update transaction status")
			return
		}

		s.logger.WithFields(logrus.Fields{
			"chain":     s.config.Name,
			"txId":      id,
			"signature": sig.String(),
			"status":    status,
		}).Info("Transaction settled")
	}()
}

// stopTrackers cancels the signature trackers and waits for them. No tracker
// starts once it has been called.
func (s *solana) stopTrackers() {
	s.trackMutex.Lock()
	s.trackCancel()
	s.trackMutex.Unlock()

	s.trackers.Wait()
}

// waitSignature polls getSignatureStatuses every pollInterval.
//
// Parameters:
// - ctx: the tracking context.
// - sig: the signature to watch.
//
// Returns:
// - types.TransactionStatus: Success, Failed, or Expired when nothing confirmed before the expiry.
// - bool: false if ctx ended before the signature settled.
func (s *solana) waitSignature(ctx context.Context, sig sol.Signature) (types.TransactionStatus, bool) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(s.expiry)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", false
		case <-deadline.C:
			return types.StatusExpired, true
		case <-ticker.C:
			source := s.statusSource()
			if source == nil {
				continue
			}

			result, err := source.GetSignatureStatuses(ctx, false, sig)
			if err != nil {
				s.logger.WithField("signature", sig.String()).WithError(err).Debug("Failed to get signature status")
				continue
			}
			if result == nil || len(result.Value) == 0 {
				continue
			}
			if status, done := signatureStatus(result.Value[0]); done {
				return status, true
			}
		}
	}
}

func (s *solana) statusSource() signatureStatusSource {
	if s.statuses != nil {
		return s.statuses
	}
	if client := s.GetClient(); client != nil {
		return client
	}
	return nil
}

// signatureStatus maps a node status to a settled record status.
func signatureStatus(status *rpc.SignatureStatusesResult) (types.TransactionStatus, bool) {
	if status == nil {
		return "", false
	}
	if status.Err != nil {
		return types.StatusFailed, true
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return types.StatusSuccess, true
	default:
		return "", false
	}
}
