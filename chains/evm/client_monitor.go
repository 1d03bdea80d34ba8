package evm

import (
	"context"

	"github.com/ClipFinance/swap-lib/connectionmonitor"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// rpcHealth lets the connection monitor probe and re-dial the chain client.
type rpcHealth struct {
	chain *evm
}

// initMonitor starts the health loop. It runs on the tracker context so it
// stops with Close rather than with the constructor context.
func (e *evm) initMonitor() error {
	e.monitorMutex.Lock()
	defer e.monitorMutex.Unlock()

	e.monitor = connectionmonitor.NewConnectionMonitor(&rpcHealth{chain: e}, e.logger, e.config.Name, e.config.MonitorInterval)
	return e.monitor.Start(e.trackCtx)
}

// CheckConnection fails when the node does not answer eth_blockNumber.
func (h *rpcHealth) CheckConnection(ctx context.Context) error {
	client := h.chain.GetClient()
	if client == nil {
		return errors.New("client not initialized")
	}

	if _, err := client.BlockNumber(ctx); err != nil {
		return errors.Wrap(err, "failed to get block number")
	}
	return nil
}

// Reconnect dials a fresh client and swaps it in only if the endpoint serves
// the configured chain. Trackers pick the new client up on their next call.
func (h *rpcHealth) Reconnect(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, h.chain.config.RpcUrl)
	if err != nil {
		return errors.Wrap(err, "failed to dial rpc")
	}

	if err := verifyChainID(ctx, client, h.chain.config.ChainID); err != nil {
		client.Close()
		return err
	}

	h.chain.clientMutex.Lock()
	old := h.chain.client
	h.chain.client = client
	h.chain.clientMutex.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// verifyChainID guards against an endpoint pointed at another network.
func verifyChainID(ctx context.Context, client *ethclient.Client, want uint64) error {
	id, err := client.ChainID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get chain id")
	}
	if !id.IsUint64() || id.Uint64() != want {
		return errors.Errorf("rpc serves chain %s, want %d", id, want)
	}
	return nil
}
