package types

import (
	"net/url"
	"strings"
)

// SubscriptionMode is how a receipt tracker learns about new blocks.
type SubscriptionMode int

const (
	// WebSocketMode subscribes to new heads.
	WebSocketMode SubscriptionMode = iota
	// HTTPPollingMode polls the latest block number.
	HTTPPollingMode
)

// GetSubscriptionMode picks the head source an RPC endpoint supports: ws and
// wss endpoints get a subscription, everything else is polled.
func GetSubscriptionMode(rpcURL string) SubscriptionMode {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return HTTPPollingMode
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		return WebSocketMode
	default:
		return HTTPPollingMode
	}
}

func (m SubscriptionMode) String() string {
	if m == WebSocketMode {
		return "heads-subscription"
	}
	return "heads-polling"
}
