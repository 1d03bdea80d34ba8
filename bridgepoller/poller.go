// Package bridgepoller determines the final status of a cross-chain transfer
// once its source-chain leg has confirmed.
package bridgepoller

import (
	"context"
	"math"
	"time"

	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config bounds the polling schedule.
type Config struct {
	GraceDelay    time.Duration `mapstructure:"grace_delay"`    // Wait before the first poll.
	BaseInterval  time.Duration `mapstructure:"base_interval"`  // Interval of the first poll.
	BackoffFactor int           `mapstructure:"backoff_factor"` // Interval multiplier per poll.
	MaxRetries    int           `mapstructure:"max_retries"`    // Number of polls before giving up.
}

// DefaultConfig returns the schedule used when nothing is configured:
// 3s grace, then 500ms, 1s, 2s and so on for 10 polls.
func DefaultConfig() Config {
	return Config{
		GraceDelay:    3 * time.Second,
		BaseInterval:  500 * time.Millisecond,
		BackoffFactor: 2,
		MaxRetries:    10,
	}
}

// SleepFunc pauses for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Poller polls the remote settlement API for bridged transfers while watching
// the local store for a status set through another path.
type Poller struct {
	api    types.SettlementAPI
	store  types.TransactionReader
	logger *logrus.Logger
	cfg    Config
	sleep  SleepFunc
}

// Option configures a Poller.
type Option func(*Poller)

// WithSleep replaces the function used to pause between polls.
func WithSleep(sleep SleepFunc) Option {
	return func(p *Poller) {
		p.sleep = sleep
	}
}

// New creates a Poller. Zero fields of cfg fall back to DefaultConfig.
//
// Parameters:
// - api: the remote settlement API.
// - store: the local transaction-state store.
// - logger: the logger for logging events.
// - cfg: the polling schedule.
// - opts: optional overrides.
//
// Returns:
// - *Poller: the poller.
func New(api types.SettlementAPI, store types.TransactionReader, logger *logrus.Logger, cfg Config, opts ...Option) *Poller {
	defaults := DefaultConfig()
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = defaults.GraceDelay
	}
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = defaults.BaseInterval
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = defaults.BackoffFactor
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}

	p := &Poller{
		api:    api,
		store:  store,
		logger: logger,
		cfg:    cfg,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WaitForBridgingStatus returns the final status of a bridged transfer whose
// source-chain transaction already confirmed.
//
// A transaction without a hash, or on a chain the settlement API does not index,
// is Unknown right away. Otherwise the poller waits the grace delay and then polls
// up to MaxRetries times with exponential backoff. A finalized remote status ends
// the loop. A local record that left Pending and is still a bridge ends it too.
// API errors do not end the loop. When the retries run out the transfer is Failed.
//
// Parameters:
// - ctx: the context for managing the polling.
// - tx: the source-chain record of the transfer.
//
// Returns:
// - types.TransactionStatus: the final status.
// - error: an error only if ctx ends before a status is known.
func (p *Poller) WaitForBridgingStatus(ctx context.Context, tx *types.TransactionDetails) (types.TransactionStatus, error) {
	if tx == nil || tx.Hash == "" || !p.api.SupportsChain(tx.ChainID) {
		return types.StatusUnknown, nil
	}

	logger := p.logger.WithFields(logrus.Fields{
		"txId":    tx.ID,
		"txHash":  tx.Hash,
		"chainId": tx.ChainID,
	})

	if err := p.sleep(ctx, p.cfg.GraceDelay); err != nil {
		return types.StatusUnknown, errors.Wrap(err, "bridge polling interrupted")
	}

	interval := p.cfg.BaseInterval
	for i := 0; i < p.cfg.MaxRetries; i++ {
		logger.WithFields(logrus.Fields{
			"pollIndex": i,
			"interval":  interval,
		}).Debug("Polling bridge status")

		if err := p.sleep(ctx, interval); err != nil {
			return types.StatusUnknown, errors.Wrap(err, "bridge polling interrupted")
		}
		interval = nextInterval(interval, p.cfg.BackoffFactor)

		remote, local := p.poll(ctx, tx, logger)

		if remote.IsFinalized() {
			logger.WithField("swapStatus", remote).Info("Bridge settled remotely")
			return remote.TransactionStatus(), nil
		}

		if local != nil && local.Status != types.StatusPending && local.Type == types.TransactionTypeBridge {
			logger.WithField("status", local.Status).Info("Bridge status updated locally")
			return local.Status, nil
		}
	}

	logger.Warn("Bridge status not finalized after polling, assuming failure")
	return types.StatusFailed, nil
}

// poll reads the remote and the local status concurrently. Read errors are
// logged and leave the corresponding value empty.
func (p *Poller) poll(ctx context.Context, tx *types.TransactionDetails, logger *logrus.Entry) (types.SwapStatus, *types.TransactionDetails) {
	var (
		remote types.SwapStatus
		local  *types.TransactionDetails
	)

	var g errgroup.Group
	g.Go(func() error {
		status, err := p.api.FetchStatus(ctx, tx.Hash, tx.ChainID)
		if err != nil {
			logger.WithError(err).Warn("Failed to fetch bridge status")
			return nil
		}
		remote = status
		return nil
	})
	g.Go(func() error {
		record, err := p.store.Get(ctx, tx.ID)
		if err != nil {
			logger.WithError(err).Debug("Failed to read local bridge record")
			return nil
		}
		local = record
		return nil
	})
	_ = g.Wait()

	return remote, local
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextInterval multiplies interval by factor, saturating at the longest Duration.
func nextInterval(interval time.Duration, factor int) time.Duration {
	if factor <= 1 || interval <= 0 {
		return interval
	}
	if interval > time.Duration(math.MaxInt64)/time.Duration(factor) {
		return time.Duration(math.MaxInt64)
	}
	return interval * time.Duration(factor)
}
