// Package settlement is the client of the remote trading API that indexes
// cross-chain settlement and accepts signed auctioned orders.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	swapsPath = "/v1/swaps"
	orderPath = "/v1/order"

	apiKeyHeader = "x-api-key"

	// Error bodies are cut to this length before they end up in an error message.
	maxErrorBody = 512
)

// Config holds the trading API settings.
type Config struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	SupportedChains []uint64      `mapstructure:"supported_chains"`
}

// Client implements types.SettlementAPI and types.OrderPublisher over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	chains     map[uint64]struct{}
	logger     *logrus.Logger
}

var (
	_ types.SettlementAPI  = (*Client)(nil)
	_ types.OrderPublisher = (*Client)(nil)
)

type swapsResponse struct {
	RequestID string `json:"requestId"`
	Swaps     []struct {
		SwapType string           `json:"swapType"`
		Status   types.SwapStatus `json:"status"`
		TxHash   string           `json:"txHash"`
		ChainID  uint64           `json:"chainId"`
	} `json:"swaps"`
}

type orderRequest struct {
	Signature    string `json:"signature"`
	QuoteID      string `json:"quoteId"`
	EncodedOrder string `json:"encodedOrder"`
	ChainID      uint64 `json:"chainId"`
}

type orderResponse struct {
	RequestID string `json:"requestId"`
	OrderID   string `json:"orderId"`
	OrderHash string `json:"orderHash"`
}

// NewClient creates a new trading API client.
//
// Parameters:
// - cfg: the API settings, BaseURL is required.
// - logger: the logger for logging events.
//
// Returns:
// - *Client: the client.
// - error: an error if the base URL is invalid.
func NewClient(cfg Config, logger *logrus.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid settlement base url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	chains := make(map[uint64]struct{}, len(cfg.SupportedChains))
	for _, id := range cfg.SupportedChains {
		chains[id] = struct{}{}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		chains:     chains,
		logger:     logger,
	}, nil
}

// SupportsChain reports whether the API indexes chainID.
func (c *Client) SupportsChain(chainID uint64) bool {
	_, ok := c.chains[chainID]
	return ok
}

// FetchStatus returns the settlement status of the swap started by txHash.
// A response without swaps is reported as NOT_FOUND.
//
// Parameters:
// - ctx: the context for managing the request.
// - txHash: the source-chain transaction hash.
// - chainID: the source chain.
//
// Returns:
// - types.SwapStatus: the remote status.
// - error: an error if the request fails or the response cannot be decoded.
func (c *Client) FetchStatus(ctx context.Context, txHash string, chainID uint64) (types.SwapStatus, error) {
	params := url.Values{}
	params.Set("txHashes", txHash)
	params.Set("chainId", strconv.FormatUint(chainID, 10))

	body, err := c.do(ctx, http.MethodGet, swapsPath+"?"+params.Encode(), nil)
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch swap status for %s", txHash)
	}

	var resp swapsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "failed to decode swaps response")
	}

	if len(resp.Swaps) == 0 {
		return types.SwapStatusNotFound, nil
	}

	c.logger.WithFields(logrus.Fields{
		"txHash":     txHash,
		"chainId":    chainID,
		"swapStatus": resp.Swaps[0].Status,
	}).Debug("Fetched swap status")

	return resp.Swaps[0].Status, nil
}

// PublishOrder submits a signed auctioned order.
//
// Parameters:
// - ctx: the context for managing the request.
// - order: the signed order.
//
// Returns:
// - string: the order hash assigned by the API.
// - error: an error if the request fails or the API returns no order hash.
func (c *Client) PublishOrder(ctx context.Context, order *types.SignedOrder) (string, error) {
	payload, err := json.Marshal(orderRequest{
		Signature:    order.Signature,
		QuoteID:      order.QuoteID,
		EncodedOrder: order.EncodedOrder,
		ChainID:      order.ChainID,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode order")
	}

	body, err := c.do(ctx, http.MethodPost, orderPath, payload)
	if err != nil {
		return "", errors.Wrapf(err, "failed to publish order for quote %s", order.QuoteID)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "failed to decode order response")
	}

	hash := resp.OrderHash
	if hash == "" {
		hash = resp.OrderID
	}
	if hash == "" {
		return "", errors.Errorf("order response for quote %s has no order hash", order.QuoteID)
	}

	c.logger.WithFields(logrus.Fields{
		"quoteId":   order.QuoteID,
		"orderHash": hash,
	}).Info("Order published")

	return hash, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, errors.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
	}

	return body, nil
}
