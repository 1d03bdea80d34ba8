package solana

import (
	"context"

	"github.com/ClipFinance/swap-lib/chains/solana/utils"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// getNativeBalance gets native SOL balance in lamports.
func (s *solana) getNativeBalance(ctx context.Context, account sol.PublicKey) (uint64, error) {
	client := s.GetClient()
	if client == nil {
		return 0, errors.New("client not initialized")
	}

	balance, err := client.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get native balance")
	}
	return balance.Value, nil
}

// logBalance reports the fee payer balance, an empty payer cannot submit anything.
func (s *solana) logBalance(ctx context.Context) {
	signer := s.getSigner()
	if signer == nil {
		return
	}

	payer := signer.PublicKey()
	lamports, err := s.getNativeBalance(ctx, payer)
	if err != nil {
		s.logger.WithField("chain", s.config.Name).WithError(err).Warn("Failed to read fee payer balance")
		return
	}

	entry := s.logger.WithFields(logrus.Fields{
		"chain": s.config.Name,
		"payer": payer.String(),
		"sol":   utils.LamportsToSol(lamports),
	})
	if lamports == 0 {
		entry.Warn("Fee payer has no balance")
		return
	}
	entry.Debug("Fee payer balance")
}
