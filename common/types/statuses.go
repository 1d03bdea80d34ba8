package types

// TransactionStatus is the local status of a submitted operation.
type TransactionStatus string

const (
	// StatusPending is the status of an operation that was submitted and has not settled yet.
	StatusPending TransactionStatus = "pending"
	// StatusSuccess is the status of an operation that settled successfully.
	StatusSuccess TransactionStatus = "confirmed"
	// StatusFailed is the status of an operation that reverted or could not settle.
	StatusFailed TransactionStatus = "failed"
	// StatusCanceled is the status of an operation that was replaced by a user cancellation.
	StatusCanceled TransactionStatus = "cancelled"
	// StatusExpired is the status of an operation whose validity window passed.
	StatusExpired TransactionStatus = "expired"
	// StatusInsufficientFunds is the status of an operation the account could not pay for.
	StatusInsufficientFunds TransactionStatus = "insufficientFunds"
	// StatusUnknown is the status of an operation nobody can currently account for.
	StatusUnknown TransactionStatus = "unknown"
)

// IsFinal reports whether the status can never change again.
func (s TransactionStatus) IsFinal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCanceled, StatusExpired:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s TransactionStatus) String() string {
	return string(s)
}

// Routing is the execution strategy of a trade.
type Routing string

const (
	// RoutingClassic is a single-chain on-chain swap.
	RoutingClassic Routing = "CLASSIC"
	// RoutingAuctionedOrder is an off-chain signed order settled later by a filler.
	RoutingAuctionedOrder Routing = "AUCTIONED_ORDER"
	// RoutingBridge is a cross-chain transfer.
	RoutingBridge Routing = "BRIDGE"
)

// TransactionType classifies what a persisted record does.
type TransactionType string

const (
	TransactionTypeApprove        TransactionType = "approve"
	TransactionTypePermit2Approve TransactionType = "permit2-approve"
	TransactionTypeWrap           TransactionType = "wrap"
	TransactionTypeSwap           TransactionType = "swap"
	TransactionTypeBridge         TransactionType = "bridge"
	TransactionTypeCancel         TransactionType = "cancel"
)

// SwapStatus is the settlement status reported by the remote trading API.
type SwapStatus string

const (
	SwapStatusPending   SwapStatus = "PENDING"
	SwapStatusOpen      SwapStatus = "OPEN"
	SwapStatusSuccess   SwapStatus = "SUCCESS"
	SwapStatusFilled    SwapStatus = "FILLED"
	SwapStatusNotFound  SwapStatus = "NOT_FOUND"
	SwapStatusFailed    SwapStatus = "FAILED"
	SwapStatusExpired   SwapStatus = "EXPIRED"
	SwapStatusCancelled SwapStatus = "CANCELLED"
)

var swapStatusToTxStatus = map[SwapStatus]TransactionStatus{
	SwapStatusPending:   StatusPending,
	SwapStatusOpen:      StatusPending,
	SwapStatusSuccess:   StatusSuccess,
	SwapStatusFilled:    StatusSuccess,
	SwapStatusNotFound:  StatusUnknown,
	SwapStatusFailed:    StatusFailed,
	SwapStatusExpired:   StatusExpired,
	SwapStatusCancelled: StatusCanceled,
}

// IsFinalized reports whether the remote side will never report another status.
func (s SwapStatus) IsFinalized() bool {
	switch s {
	case SwapStatusSuccess, SwapStatusFilled, SwapStatusFailed, SwapStatusExpired, SwapStatusCancelled:
		return true
	default:
		return false
	}
}

// TransactionStatus maps the remote status onto the local taxonomy.
// Statuses the API may add later map to StatusUnknown.
func (s SwapStatus) TransactionStatus() TransactionStatus {
	if status, ok := swapStatusToTxStatus[s]; ok {
		return status
	}
	return StatusUnknown
}
