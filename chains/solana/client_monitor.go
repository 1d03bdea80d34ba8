package solana

import (
	"context"

	"github.com/ClipFinance/swap-lib/connectionmonitor"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
)

// solanaConnectionManager implements connectionmonitor.RPCClient for the Solana chain.
type solanaConnectionManager struct {
	chain *solana
}

// CheckConnection asks the node for its health.
func (m *solanaConnectionManager) CheckConnection(ctx context.Context) error {
	client := m.chain.GetClient()
	if client == nil {
		return errors.New("client not initialized")
	}

	health, err := client.GetHealth(ctx)
	if err != nil {
		return err
	}
	if health != rpc.HealthOk {
		return errors.Errorf("node reports %q", health)
	}
	return nil
}

// Reconnect replaces the RPC client. The HTTP client holds no session, so the
// old one is closed only to release idle connections.
func (m *solanaConnectionManager) Reconnect(ctx context.Context) error {
	client := rpc.New(m.chain.config.RpcUrl)
	if _, err := client.GetHealth(ctx); err != nil {
		_ = client.Close()
		return err
	}

	m.chain.clientMutex.Lock()
	defer m.chain.clientMutex.Unlock()

	if m.chain.client != nil {
		_ = m.chain.client.Close()
	}
	m.chain.client = client

	return nil
}

func (s *solana) initMonitor() error {
	s.monitorMutex.Lock()
	defer s.monitorMutex.Unlock()

	connectionManager := &solanaConnectionManager{chain: s}
	s.monitor = connectionmonitor.NewConnectionMonitor(connectionManager, s.logger, s.config.Name, s.config.MonitorInterval)
	return s.monitor.Start(s.trackCtx)
}
