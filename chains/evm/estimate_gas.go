package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// GasPriceData represents the gas price data for EIP-1559 transactions.
type GasPriceData struct {
	MaxFeePerGas         *big.Int // The maximum fee per gas.
	MaxPriorityFeePerGas *big.Int // The maximum priority fee per gas.
}

// EstimateGas estimates the gas required for a call sent by the chain signer.
//
// Parameters:
// - ctx: the context for managing the request.
// - to: the recipient of the call.
// - value: the amount of native currency sent with the call.
// - data: the input data of the call.
//
// Returns:
// - uint64: the estimated gas required for the transaction.
// - error: an error if the client or signer is not initialized or if the gas estimation fails.
func (e *evm) EstimateGas(ctx context.Context, to common.Address, value *big.Int, data []byte) (uint64, error) {
	client := e.GetClient()
	signer := e.getSigner()
	if client == nil || signer == nil {
		return 0, errors.New("client or signer not initialized")
	}

	msg := ethereum.CallMsg{
		From:  signer.Address(),
		To:    &to,
		Value: value,
		Data:  data,
	}

	return client.EstimateGas(ctx, msg)
}

// getEIP1559GasPrice returns fees for a transaction that should land in the next
// few blocks: base fee plus 30% headroom plus the suggested tip.
//
// Parameters:
// - ctx: the context for managing the request.
//
// Returns:
// - *GasPriceData: the gas price data for EIP-1559 transactions.
// - error: an error if the client is not initialized or if there is an issue retrieving the gas price data.
func (e *evm) getEIP1559GasPrice(ctx context.Context) (*GasPriceData, error) {
	client := e.GetClient()
	if client == nil {
		return nil, errors.New("client not initialized")
	}

	suggestedTip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Failed to get suggested gas tip")
		suggestedTip = big.NewInt(1)
	}

	if suggestedTip.Sign() == 0 {
		suggestedTip = big.NewInt(1)
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Failed to get header by number")
		return nil, errors.Wrap(err, "failed to get header by number")
	}

	if header.BaseFee == nil {
		return nil, errors.New("base fee is nil")
	}

	return &GasPriceData{
		MaxFeePerGas:         eip1559FeeCap(header.BaseFee, suggestedTip),
		MaxPriorityFeePerGas: suggestedTip,
	}, nil
}

// getLegacyGasPrice returns the suggested gas price with 50% headroom.
func (e *evm) getLegacyGasPrice(ctx context.Context) (*big.Int, error) {
	client := e.GetClient()
	if client == nil {
		return nil, errors.New("client not initialized")
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gas price")
	}

	return percentOf(gasPrice, 150), nil
}

func eip1559FeeCap(baseFee, tip *big.Int) *big.Int {
	maxFeePerGas := new(big.Int).Add(percentOf(baseFee, 130), tip)
	if maxFeePerGas.Cmp(tip) <= 0 {
		maxFeePerGas = new(big.Int).Add(tip, baseFee)
	}
	return maxFeePerGas
}

// withGasHeadroom adds 10% to an estimated gas limit.
func withGasHeadroom(estimated uint64) uint64 {
	return estimated + estimated/10
}

func percentOf(v *big.Int, percent int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(percent))
	return out.Div(out, big.NewInt(100))
}
