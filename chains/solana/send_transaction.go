package solana

import (
	"context"
	"time"

	"github.com/ClipFinance/swap-lib/chains/solana/utils"
	"github.com/ClipFinance/swap-lib/common/types"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SendTransaction signs the routing-built transaction carried in
// req.Request.SerializedTx, broadcasts it with preflight checks, records it
// as Pending and starts tracking its signature.
//
// Parameters:
// - ctx: the context for managing the request.
// - req: the transaction to submit.
//
// Returns:
// - *types.TransactionDetails: the persisted record, Hash holds the signature.
// - error: an error if the transaction cannot be decoded, signed, sent or recorded.
func (s *solana) SendTransaction(ctx context.Context, req *types.SubmitRequest) (*types.TransactionDetails, error) {
	if req.Request.ChainID != 0 && req.Request.ChainID != s.config.ChainID {
		return nil, errors.Errorf("request for chain %d sent to chain %d", req.Request.ChainID, s.config.ChainID)
	}

	signer := s.getSigner()
	if signer == nil {
		return nil, errors.New("signer not initialized")
	}

	tx, err := utils.DecodeTransaction(req.Request.SerializedTx)
	if err != nil {
		return nil, err
	}

	if _, err := signTransaction(tx, *signer); err != nil {
		return nil, err
	}

	client := s.GetClient()
	if client == nil {
		return nil, errors.New("client not initialized")
	}

	sig, err := client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		s.logger.WithField("chain", s.config.Name).WithError(err).Error("Failed to send transaction")
		return nil, errors.Wrap(err, "failed to send transaction")
	}

	now := time.Now().UTC()
	record := &types.TransactionDetails{
		ID:          uuid.NewString(),
		ChainID:     s.config.ChainID,
		From:        signer.PublicKey().String(),
		Hash:        sig.String(),
		Status:      types.StatusPending,
		Routing:     req.Routing,
		Type:        req.Type,
		AddedTime:   now,
		UpdatedTime: now,
	}
	if err := s.store.Put(ctx, record); err != nil {
		return nil, errors.Wrapf(err, "failed to record transaction %s", record.Hash)
	}

	s.logger.WithFields(logrus.Fields{
		"chain":     s.config.Name,
		"txId":      record.ID,
		"signature": record.Hash,
		"type":      record.Type,
	}).Info("Transaction sent")

	s.track(record.ID, sig)

	return record.Clone(), nil
}

// signTransaction places the signature of key in its required-signer slot.
// Signatures already present for other signers are kept.
//
// Parameters:
// - tx: the decoded transaction.
// - key: the key to sign with.
//
// Returns:
// - sol.Signature: the new signature.
// - error: an error if key is not a required signer of tx.
func signTransaction(tx *sol.Transaction, key sol.PrivateKey) (sol.Signature, error) {
	self := key.PublicKey()
	required := int(tx.Message.Header.NumRequiredSignatures)

	slot := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(self) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return sol.Signature{}, errors.Errorf("%s is not a signer of the transaction", self)
	}

	content, err := tx.Message.MarshalBinary()
	if err != nil {
		return sol.Signature{}, errors.Wrap(err, "failed to encode message")
	}

	signature, err := key.Sign(content)
	if err != nil {
		return sol.Signature{}, errors.Wrap(err, "failed to sign transaction")
	}

	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, sol.Signature{})
	}
	tx.Signatures[slot] = signature

	return signature, nil
}
