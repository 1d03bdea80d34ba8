// Package planner turns a classified trade into the ordered steps that execute it.
package planner

import (
	"math/big"

	"github.com/ClipFinance/swap-lib/chains/evm/utils"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/ethereum/go-ethereum/common"
)

// Plan derives the ordered list of steps for a trade.
// Plan performs no I/O and returns the same steps for the same input.
// A trade that lacks the request data its routing needs yields an empty plan;
// callers treat that as nothing to execute.
//
// Parameters:
// - trade: the classified trade.
//
// Returns:
// - []types.TransactionStep: the steps in execution order.
func Plan(trade types.TradeContext) []types.TransactionStep {
	var steps []types.TransactionStep
	var ok bool

	switch trade.Routing {
	case types.RoutingClassic:
		steps, ok = planClassic(trade)
	case types.RoutingAuctionedOrder:
		steps, ok = planAuctionedOrder(trade)
	case types.RoutingBridge:
		steps, ok = planBridge(trade)
	}

	if !ok {
		return []types.TransactionStep{}
	}
	return steps
}

func planClassic(trade types.TradeContext) ([]types.TransactionStep, bool) {
	if len(trade.BatchedTxRequests) > 0 {
		return []types.TransactionStep{batchedStep(trade)}, true
	}

	steps, ok := allowanceSteps(trade, !trade.Gasless)
	if !ok {
		return nil, false
	}

	if trade.Gasless {
		if trade.PermitTypedData == nil || trade.SwapRequestResolver == nil {
			return nil, false
		}
		return append(steps,
			types.Permit2SignatureStep{
				ChainID:   trade.ChainID,
				Routing:   trade.Routing,
				TypedData: *trade.PermitTypedData,
			},
			types.SwapTransactionAsyncStep{
				ChainID:  trade.ChainID,
				Routing:  trade.Routing,
				Resolver: trade.SwapRequestResolver,
				Wait:     trade.WaitForSwap,
			},
		), true
	}

	if trade.SwapTxRequest.IsEmpty() {
		return nil, false
	}

	if !trade.Permit2TxRequest.IsEmpty() {
		steps = append(steps, types.Permit2TransactionStep{
			OnChainStep: onChain(trade, *trade.Permit2TxRequest, true),
		})
	}

	return append(steps, types.SwapTransactionStep{
		OnChainStep: onChain(trade, *trade.SwapTxRequest, trade.WaitForSwap),
	}), true
}

func planAuctionedOrder(trade types.TradeContext) ([]types.TransactionStep, bool) {
	if trade.Order == nil {
		return nil, false
	}

	var steps []types.TransactionStep
	if !trade.WrapTxRequest.IsEmpty() {
		steps = append(steps, types.WrapStep{
			OnChainStep: onChain(trade, *trade.WrapTxRequest, true),
			Amount:      valueOf(trade.WrapTxRequest),
		})
	}

	allowance, ok := allowanceSteps(trade, true)
	if !ok {
		return nil, false
	}
	steps = append(steps, allowance...)

	return append(steps, types.OrderSignatureStep{
		ChainID:      trade.ChainID,
		QuoteID:      trade.Order.QuoteID,
		EncodedOrder: trade.Order.EncodedOrder,
		TypedData:    trade.Order.TypedData,
	}), true
}

func planBridge(trade types.TradeContext) ([]types.TransactionStep, bool) {
	if len(trade.BatchedTxRequests) > 0 {
		return []types.TransactionStep{batchedStep(trade)}, true
	}

	if trade.SwapTxRequest.IsEmpty() {
		return nil, false
	}

	steps, ok := allowanceSteps(trade, true)
	if !ok {
		return nil, false
	}

	return append(steps, types.SwapTransactionStep{
		OnChainStep: onChain(trade, *trade.SwapTxRequest, trade.WaitForSwap),
	}), true
}

// allowanceSteps returns the revocation and approval steps the trade needs.
// The bool is false when a request is present but is not a valid approve call.
func allowanceSteps(trade types.TradeContext, withApproval bool) ([]types.TransactionStep, bool) {
	var steps []types.TransactionStep

	if !trade.RevocationTxRequest.IsEmpty() {
		call, err := utils.DecodeApprove(trade.RevocationTxRequest.Data)
		if err != nil || call.Amount.Sign() != 0 {
			return nil, false
		}
		steps = append(steps, types.RevocationStep{
			OnChainStep: onChain(trade, *trade.RevocationTxRequest, true),
			Token:       normalizeAddress(trade.RevocationTxRequest.To),
			Spender:     call.Spender.Hex(),
		})
	}

	if withApproval && !trade.ApproveTxRequest.IsEmpty() {
		call, err := utils.DecodeApprove(trade.ApproveTxRequest.Data)
		if err != nil {
			return nil, false
		}
		steps = append(steps, types.ApprovalStep{
			OnChainStep: onChain(trade, *trade.ApproveTxRequest, true),
			Token:       normalizeAddress(trade.ApproveTxRequest.To),
			Spender:     call.Spender.Hex(),
			Amount:      call.Amount,
		})
	}

	return steps, true
}

func batchedStep(trade types.TradeContext) types.TransactionStep {
	requests := make([]types.TxRequest, len(trade.BatchedTxRequests))
	copy(requests, trade.BatchedTxRequests)

	return types.SwapTransactionBatchedStep{
		ChainID:  trade.ChainID,
		Routing:  trade.Routing,
		Requests: requests,
		Wait:     trade.WaitForSwap,
	}
}

func onChain(trade types.TradeContext, request types.TxRequest, wait bool) types.OnChainStep {
	if request.ChainID == 0 {
		request.ChainID = trade.ChainID
	}
	return types.OnChainStep{
		Request: request,
		Routing: trade.Routing,
		Wait:    wait,
	}
}

func valueOf(request *types.TxRequest) *big.Int {
	if request.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(request.Value)
}

func normalizeAddress(address string) string {
	if !common.IsHexAddress(address) {
		return address
	}
	return common.HexToAddress(address).Hex()
}
