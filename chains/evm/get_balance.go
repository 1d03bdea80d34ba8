package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// getNativeBalance gets the native token balance of address.
func (e *evm) getNativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	client := e.GetClient()
	if client == nil {
		return nil, errors.New("client not initialized")
	}

	balance, err := client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get native token balance")
	}
	return balance, nil
}

// logBalance reports the signer balance, a signer without gas cannot submit anything.
func (e *evm) logBalance(ctx context.Context) {
	signer := e.getSigner()
	if signer == nil {
		return
	}

	balance, err := e.getNativeBalance(ctx, signer.Address())
	if err != nil {
		e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Failed to read signer balance")
		return
	}

	ether, _ := new(big.Float).Quo(new(big.Float).SetInt(balance), big.NewFloat(params.Ether)).Float64()
	entry := e.logger.WithFields(logrus.Fields{
		"chain":   e.config.Name,
		"signer":  signer.Address().Hex(),
		"balance": ether,
	})
	if balance.Sign() == 0 {
		entry.Warn("Signer has no balance")
		return
	}
	entry.Debug("Signer balance")
}
