package types

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// StepType identifies the kind of operation a step performs.
type StepType string

const (
	StepWrap                   StepType = "Wrap"
	StepRevocation             StepType = "Revocation"
	StepApproval               StepType = "Approval"
	StepPermit2Signature       StepType = "Permit2Signature"
	StepPermit2Transaction     StepType = "Permit2Transaction"
	StepOrderSignature         StepType = "OrderSignature"
	StepSwapTransaction        StepType = "SwapTransaction"
	StepSwapTransactionBatched StepType = "SwapTransactionBatched"
	StepSwapTransactionAsync   StepType = "SwapTransactionAsync"
)

// String converts StepType to string representation.
func (t StepType) String() string {
	return string(t)
}

// TransactionStep is a single unit of work produced by the planner.
// The set of implementations is closed: only the step types of this package
// satisfy it, so executors can switch over them exhaustively.
type TransactionStep interface {
	// Type returns the kind of the step.
	Type() StepType
	// ShouldWait reports whether the step must reach a terminal state before the next one starts.
	ShouldWait() bool

	isTransactionStep()
}

// SwapRequestResolver fetches swap calldata that can only be built once a permit
// signature exists.
type SwapRequestResolver interface {
	ResolveSwapRequest(ctx context.Context, signature string) (*TxRequest, error)
}

// OnChainStep is the payload shared by steps that submit exactly one transaction.
type OnChainStep struct {
	Request TxRequest
	Routing Routing
	Wait    bool
}

// ShouldWait reports whether the executor blocks on confirmation.
func (s OnChainStep) ShouldWait() bool { return s.Wait }

func (OnChainStep) isTransactionStep() {}

// WrapStep converts native currency into its wrapped token.
type WrapStep struct {
	OnChainStep
	Amount *big.Int
}

func (WrapStep) Type() StepType { return StepWrap }

// RevocationStep resets an existing allowance to zero.
type RevocationStep struct {
	OnChainStep
	Token   string
	Spender string
}

func (RevocationStep) Type() StepType { return StepRevocation }

// ApprovalStep raises the allowance of Spender over Token to Amount.
type ApprovalStep struct {
	OnChainStep
	Token   string
	Spender string
	Amount  *big.Int
}

func (ApprovalStep) Type() StepType { return StepApproval }

// Permit2TransactionStep submits a permit on-chain.
type Permit2TransactionStep struct {
	OnChainStep
}

func (Permit2TransactionStep) Type() StepType { return StepPermit2Transaction }

// SwapTransactionStep submits the swap (or the source leg of a bridge).
type SwapTransactionStep struct {
	OnChainStep
}

func (SwapTransactionStep) Type() StepType { return StepSwapTransaction }

// SwapTransactionBatchedStep submits several calls as one wallet-level submission.
type SwapTransactionBatchedStep struct {
	ChainID  uint64
	Routing  Routing
	Requests []TxRequest
	Wait     bool
}

func (SwapTransactionBatchedStep) Type() StepType     { return StepSwapTransactionBatched }
func (s SwapTransactionBatchedStep) ShouldWait() bool { return s.Wait }
func (SwapTransactionBatchedStep) isTransactionStep() {}

// Permit2SignatureStep produces an off-chain permit signature.
type Permit2SignatureStep struct {
	ChainID   uint64
	Routing   Routing
	TypedData apitypes.TypedData
}

func (Permit2SignatureStep) Type() StepType     { return StepPermit2Signature }
func (Permit2SignatureStep) ShouldWait() bool   { return false }
func (Permit2SignatureStep) isTransactionStep() {}

// OrderSignatureStep signs an auctioned order. Nothing is submitted on-chain;
// a filler settles the order later.
type OrderSignatureStep struct {
	ChainID      uint64
	QuoteID      string
	EncodedOrder string
	TypedData    apitypes.TypedData
}

func (OrderSignatureStep) Type() StepType     { return StepOrderSignature }
func (OrderSignatureStep) ShouldWait() bool   { return false }
func (OrderSignatureStep) isTransactionStep() {}

// SwapTransactionAsyncStep submits a swap whose calldata is resolved from the
// signature of the preceding Permit2SignatureStep.
type SwapTransactionAsyncStep struct {
	ChainID  uint64
	Routing  Routing
	Resolver SwapRequestResolver
	Wait     bool

	signature string
}

func (SwapTransactionAsyncStep) Type() StepType     { return StepSwapTransactionAsync }
func (s SwapTransactionAsyncStep) ShouldWait() bool { return s.Wait }
func (SwapTransactionAsyncStep) isTransactionStep() {}

// WithSignature returns a copy of the step bound to the given permit signature.
func (s SwapTransactionAsyncStep) WithSignature(signature string) SwapTransactionAsyncStep {
	s.signature = signature
	return s
}

// Signature returns the bound permit signature, empty when none was bound.
func (s SwapTransactionAsyncStep) Signature() string {
	return s.signature
}
