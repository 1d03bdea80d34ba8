package types

import "strings"

// ChainType is the wallet backend family a chain is served by.
type ChainType string

const (
	// EVM chains are served by the go-ethereum backend (Ethereum, Base, Arbitrum, ...).
	EVM ChainType = "EVM"
	// SOLANA is served by the backend for serialized swap transactions.
	SOLANA ChainType = "SOLANA"
	// UNKNOWN is any family without a backend.
	UNKNOWN ChainType = "UNKNOWN"
)

func (t ChainType) String() string {
	return string(t)
}

// ParseChainType maps a configured family name to its ChainType.
// Matching ignores case and surrounding spaces; anything else is UNKNOWN.
func ParseChainType(s string) ChainType {
	switch t := ChainType(strings.ToUpper(strings.TrimSpace(s))); t {
	case EVM, SOLANA:
		return t
	default:
		return UNKNOWN
	}
}
