package types

import "testing"

func TestParseChainType(t *testing.T) {
	tests := map[string]ChainType{
		"EVM":      EVM,
		"evm":      EVM,
		" Solana ": SOLANA,
		"cosmos":   UNKNOWN,
		"":         UNKNOWN,
	}
	for in, want := range tests {
		if got := ParseChainType(in); got != want {
			t.Errorf("ParseChainType(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestGetSubscriptionMode(t *testing.T) {
	tests := map[string]SubscriptionMode{
		"wss://base.example/v1": WebSocketMode,
		"WS://localhost:8546":   WebSocketMode,
		"https://base.example":  HTTPPollingMode,
		"localhost:8545":        HTTPPollingMode,
		"://bad":                HTTPPollingMode,
	}
	for in, want := range tests {
		if got := GetSubscriptionMode(in); got != want {
			t.Errorf("GetSubscriptionMode(%q) = %s, want %s", in, got, want)
		}
	}
}
