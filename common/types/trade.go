package types

import "github.com/ethereum/go-ethereum/signer/core/apitypes"

// TradeContext is a classified trade together with everything the routing service
// returned for executing it. Requests that are not needed are left nil.
//
// Fields:
// - Routing: the execution strategy.
// - ChainID: the source chain.
// - Gasless: the router pulls funds using a permit signature instead of an on-chain approval.
// - WaitForSwap: the swap step must confirm before the flow continues.
// - WrapTxRequest: converts native input into its wrapped token (auctioned orders only).
// - RevocationTxRequest: an approve(spender, 0) call zeroing the current allowance.
// - ApproveTxRequest: an approve(spender, amount) call.
// - Permit2TxRequest: an on-chain permit call.
// - SwapTxRequest: the swap (or bridge source leg) call.
// - BatchedTxRequests: calls submitted together as one wallet-level batch.
// - PermitTypedData: the permit to sign for gasless trades.
// - SwapRequestResolver: builds the swap request once the permit is signed.
// - Order: the auctioned order to sign.
type TradeContext struct {
	Routing     Routing
	ChainID     uint64
	Gasless     bool
	WaitForSwap bool

	WrapTxRequest       *TxRequest
	RevocationTxRequest *TxRequest
	ApproveTxRequest    *TxRequest
	Permit2TxRequest    *TxRequest
	SwapTxRequest       *TxRequest
	BatchedTxRequests   []TxRequest

	PermitTypedData     *apitypes.TypedData
	SwapRequestResolver SwapRequestResolver

	Order *Order
}

// Order is an auctioned order as quoted by the routing service.
type Order struct {
	QuoteID      string
	EncodedOrder string
	TypedData    apitypes.TypedData
}

// SignedOrder is an order ready to be handed to the order service.
type SignedOrder struct {
	ChainID      uint64 `json:"chainId"`
	QuoteID      string `json:"quoteId"`
	EncodedOrder string `json:"encodedOrder"`
	Signature    string `json:"signature"`
}
