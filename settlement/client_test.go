package settlement

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:         server.URL,
		APIKey:          "secret",
		SupportedChains: []uint64{1, 10},
	}, quietLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestFetchStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != swapsPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("txHashes"); got != "0xabc" {
			t.Errorf("txHashes = %q", got)
		}
		if got := r.URL.Query().Get("chainId"); got != "10" {
			t.Errorf("chainId = %q", got)
		}
		if got := r.Header.Get(apiKeyHeader); got != "secret" {
			t.Errorf("api key = %q", got)
		}
		_, _ = w.Write([]byte(`{"requestId":"r1","swaps":[{"status":"FILLED","txHash":"0xabc","chainId":10}]}`))
	})

	status, err := client.FetchStatus(context.Background(), "0xabc", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != types.SwapStatusFilled {
		t.Fatalf("status = %s, want %s", status, types.SwapStatusFilled)
	}
}

func TestFetchStatusNoSwaps(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"requestId":"r1","swaps":[]}`))
	})

	status, err := client.FetchStatus(context.Background(), "0xabc", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != types.SwapStatusNotFound {
		t.Fatalf("status = %s, want %s", status, types.SwapStatusNotFound)
	}
}

func TestFetchStatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream unavailable", http.StatusBadGateway)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"swaps":`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			if _, err := client.FetchStatus(context.Background(), "0xabc", 1); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestSupportsChain(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	if !client.SupportsChain(1) || !client.SupportsChain(10) {
		t.Fatal("configured chains must be supported")
	}
	if client.SupportsChain(56) {
		t.Fatal("unconfigured chain must not be supported")
	}
}

func TestPublishOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != orderPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}

		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Signature != "0xsig" || req.QuoteID != "quote-1" || req.ChainID != 1 {
			t.Errorf("unexpected order %+v", req)
		}
		_, _ = w.Write([]byte(`{"requestId":"r1","orderId":"0xorder"}`))
	})

	hash, err := client.PublishOrder(context.Background(), &types.SignedOrder{
		ChainID:      1,
		QuoteID:      "quote-1",
		EncodedOrder: "0xencoded",
		Signature:    "0xsig",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != "0xorder" {
		t.Fatalf("hash = %s, want 0xorder", hash)
	}
}

func TestPublishOrderWithoutHash(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"requestId":"r1"}`))
	})

	if _, err := client.PublishOrder(context.Background(), &types.SignedOrder{QuoteID: "q"}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestNewClientRejectsInvalidURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "not a url"}, quietLogger()); err == nil {
		t.Fatal("expected an error")
	}
}
