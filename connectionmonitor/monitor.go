// Package connectionmonitor keeps chain RPC clients alive with a periodic
// health probe and bounded re-dialing.
package connectionmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultInterval is the interval between health checks when none is configured.
	DefaultInterval = 30 * time.Second
	// checkTimeout bounds a single probe.
	checkTimeout = 10 * time.Second
	// reconnectDelay is the wait after the first failed re-dial, doubled after each further one.
	reconnectDelay = 5 * time.Second
	// maxReconnectAttempts is the number of re-dials per failed probe.
	maxReconnectAttempts = 3
)

// ConnectionMonitor probes an RPC client in the background until stopped.
type ConnectionMonitor interface {
	// Start launches the probe loop. It fails if the loop already runs.
	Start(ctx context.Context) error
	// Stop ends the probe loop and waits for it to return. Stopping twice is a no-op.
	Stop()
}

// RPCClient is a chain RPC connection that can be health-checked and re-dialed.
type RPCClient interface {
	CheckConnection(ctx context.Context) error
	Reconnect(ctx context.Context) error
}

type connectionMonitor struct {
	client     RPCClient
	logger     *logrus.Logger
	chainName  string
	interval   time.Duration
	retryDelay time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc // Non-nil while the loop runs.
	done    chan struct{}      // Closed when the loop returns.
	healthy bool               // Outcome of the last probe, state changes are logged.
}

// NewConnectionMonitor creates a monitor for client.
//
// Parameters:
// - client: the RPC client to probe.
// - logger: the logger for state changes.
// - chainName: the chain name used in log entries.
// - interval: the interval between probes, DefaultInterval when zero.
//
// Returns:
// - ConnectionMonitor: the stopped monitor.
func NewConnectionMonitor(client RPCClient, logger *logrus.Logger, chainName string, interval time.Duration) ConnectionMonitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &connectionMonitor{
		client:     client,
		logger:     logger,
		chainName:  chainName,
		interval:   interval,
		retryDelay: reconnectDelay,
		healthy:    true,
	}
}

func (m *connectionMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return errors.Errorf("connection monitor is already running for chain %s", m.chainName)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(loopCtx, m.done)
	return nil
}

func (m *connectionMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *connectionMonitor) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.WithField("chain", m.chainName).Debug("Connection monitor stopped")
			return
		case <-ticker.C:
			if err := m.checkAndReconnect(ctx); err != nil && ctx.Err() == nil {
				m.logger.WithField("chain", m.chainName).WithError(err).Error("RPC connection lost")
			}
		}
	}
}

// checkAndReconnect probes the client and re-dials it when the probe fails.
// It returns the last re-dial error once every attempt failed.
func (m *connectionMonitor) checkAndReconnect(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	err := m.client.CheckConnection(probeCtx)
	cancel()
	if err == nil {
		m.setHealthy(true)
		return nil
	}

	m.setHealthy(false)
	m.logger.WithField("chain", m.chainName).WithError(err).Warn("RPC health check failed, reconnecting")

	delay := m.retryDelay
	for attempt := 1; ; attempt++ {
		err = m.client.Reconnect(ctx)
		if err == nil {
			m.logger.WithFields(logrus.Fields{"chain": m.chainName, "attempt": attempt}).Info("RPC client reconnected")
			m.setHealthy(true)
			return nil
		}

		m.logger.WithFields(logrus.Fields{"chain": m.chainName, "attempt": attempt}).WithError(err).Warn("Reconnection attempt failed")
		if attempt == maxReconnectAttempts {
			return errors.Wrapf(err, "failed to reconnect to chain %s", m.chainName)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (m *connectionMonitor) setHealthy(healthy bool) {
	m.mu.Lock()
	changed := m.healthy != healthy
	m.healthy = healthy
	m.mu.Unlock()

	if changed && healthy {
		m.logger.WithField("chain", m.chainName).Info("RPC connection healthy again")
	}
}

func (m *connectionMonitor) isHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}
