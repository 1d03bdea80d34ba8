package txstore

import (
	"context"
	"database/sql"
	"time"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// statusChannel is the LISTEN/NOTIFY channel carrying the ids of changed records.
	statusChannel = "swap_tx_status"
	// listenerPingInterval keeps idle listener connections from being dropped.
	listenerPingInterval = 90 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS swap_transactions (
    id             TEXT PRIMARY KEY,
    chain_id       BIGINT NOT NULL,
    from_address   TEXT NOT NULL DEFAULT '',
    hash           TEXT NOT NULL DEFAULT '',
    order_hash     TEXT NOT NULL DEFAULT '',
    nonce          BIGINT NOT NULL DEFAULT 0,
    status         TEXT NOT NULL,
    routing        TEXT NOT NULL DEFAULT '',
    tx_type        TEXT NOT NULL DEFAULT '',
    send_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
    added_time     TIMESTAMPTZ NOT NULL,
    updated_time   TIMESTAMPTZ NOT NULL
)`

// finalStatuses is the SQL list of statuses a record never leaves.
const finalStatuses = `('confirmed', 'failed', 'cancelled', 'expired')`

// PostgresStore is a TransactionStore backed by PostgreSQL. Status changes are
// broadcast with NOTIFY so that subscribers in other processes observe them too.
type PostgresStore struct {
	db       *sql.DB
	listener *pq.Listener
	hub      *hub
	logger   *logrus.Logger
	cancel   context.CancelFunc

	// load reads a record for the listener, Get outside of tests.
	load func(ctx context.Context, id string) (*types.TransactionDetails, error)
}

// NewPostgresStore connects to the database, creates the table when missing and
// starts listening for status notifications.
//
// Parameters:
// - ctx: the context for managing the connection setup.
// - connStr: the database connection string.
// - logger: the logger for logging events.
//
// Returns:
// - *PostgresStore: the store.
// - error: an error if the database cannot be reached or prepared.
func NewPostgresStore(ctx context.Context, connStr string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create swap_transactions table")
	}

	listener := pq.NewListener(connStr, 10*time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			logger.WithError(err).WithField("event", event).Warn("Transaction status listener event")
		}
	})
	if err := listener.Listen(statusChannel); err != nil {
		listener.Close()
		db.Close()
		return nil, errors.Wrap(err, "failed to listen for status notifications")
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	store := &PostgresStore{
		db:       db,
		listener: listener,
		hub:      newHub(),
		logger:   logger,
		cancel:   cancel,
	}
	store.load = store.Get
	go store.listen(listenCtx)

	return store, nil
}

// Get returns the record with the given id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*types.TransactionDetails, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chain_id, from_address, hash, order_hash, nonce, status, routing, tx_type, send_confirmed, added_time, updated_time
		FROM swap_transactions
		WHERE id = $1`, id)

	var (
		tx      types.TransactionDetails
		chainID int64
		nonce   int64
	)
	err := row.Scan(&tx.ID, &chainID, &tx.From, &tx.Hash, &tx.OrderHash, &nonce,
		&tx.Status, &tx.Routing, &tx.Type, &tx.SendConfirmed, &tx.AddedTime, &tx.UpdatedTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(commonerrors.ErrTransactionNotFound, "id %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query transaction")
	}

	tx.ChainID = uint64(chainID)
	tx.Nonce = uint64(nonce)
	return &tx, nil
}

// Put inserts the record or replaces a record whose status is not final.
func (s *PostgresStore) Put(ctx context.Context, tx *types.TransactionDetails) error {
	if tx == nil || tx.ID == "" {
		return errors.New("transaction id is required")
	}

	now := time.Now().UTC()
	added := tx.AddedTime
	if added.IsZero() {
		added = now
	}

	return s.inTx(ctx, tx.ID, func(dbTx *sql.Tx) error {
		result, err := dbTx.ExecContext(ctx, `
			INSERT INTO swap_transactions (
				id, chain_id, from_address, hash, order_hash, nonce, status, routing, tx_type, send_confirmed, added_time, updated_time
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				chain_id = EXCLUDED.chain_id,
				from_address = EXCLUDED.from_address,
				hash = EXCLUDED.hash,
				order_hash = EXCLUDED.order_hash,
				nonce = EXCLUDED.nonce,
				status = EXCLUDED.status,
				routing = EXCLUDED.routing,
				tx_type = EXCLUDED.tx_type,
				send_confirmed = EXCLUDED.send_confirmed,
				updated_time = EXCLUDED.updated_time
			WHERE swap_transactions.status NOT IN `+finalStatuses,
			tx.ID,
			int64(tx.ChainID),
			tx.From,
			tx.Hash,
			tx.OrderHash,
			int64(tx.Nonce),
			tx.Status,
			tx.Routing,
			tx.Type,
			tx.SendConfirmed,
			added,
			now,
		)
		if err != nil {
			return errors.Wrap(err, "failed to upsert transaction")
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "failed to get rows affected")
		}
		if rowsAffected == 0 {
			return errors.Wrapf(commonerrors.ErrStatusFinal, "id %s", tx.ID)
		}
		return nil
	})
}

// UpdateStatus moves the record to status unless its current status is final.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status types.TransactionStatus) error {
	return s.inTx(ctx, id, func(dbTx *sql.Tx) error {
		var current types.TransactionStatus
		err := dbTx.QueryRowContext(ctx, `SELECT status FROM swap_transactions WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(commonerrors.ErrTransactionNotFound, "id %s", id)
		}
		if err != nil {
			return errors.Wrap(err, "failed to query transaction status")
		}

		if err := checkTransition(current, status); err != nil {
			return errors.Wrapf(err, "id %s", id)
		}
		if current == status {
			return nil
		}

		if _, err := dbTx.ExecContext(ctx, `
			UPDATE swap_transactions
				SET status = $1,
				    updated_time = $2
			WHERE id = $3`, status, time.Now().UTC(), id); err != nil {
			return errors.Wrap(err, "failed to update transaction status")
		}
		return nil
	})
}

// Subscribe returns a channel receiving every change of the record, including
// changes made by other processes sharing the database.
func (s *PostgresStore) Subscribe(ctx context.Context, id string) (<-chan *types.TransactionDetails, error) {
	return s.hub.subscribe(ctx, id), nil
}

// Close stops the listener and closes the database.
func (s *PostgresStore) Close() error {
	s.cancel()
	if err := s.listener.Close(); err != nil {
		s.db.Close()
		return errors.Wrap(err, "failed to close listener")
	}
	return s.db.Close()
}

// inTx runs fn in a transaction and notifies listeners about id once it commits.
func (s *PostgresStore) inTx(ctx context.Context, id string, fn func(*sql.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer dbTx.Rollback()

	if err := fn(dbTx); err != nil {
		return err
	}

	if _, err := dbTx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, statusChannel, id); err != nil {
		return errors.Wrap(err, "failed to notify status change")
	}

	if err := dbTx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// listen forwards notifications for watched records to the hub.
func (s *PostgresStore) listen(ctx context.Context) {
	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := s.listener.Ping(); err != nil {
				s.logger.WithError(err).Warn("Transaction status listener ping failed")
			}

		case notification, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			s.handleNotification(ctx, notification)
		}
	}
}

// handleNotification publishes the current state of the notified record. A nil
// notification follows a reconnect: changes may have been missed, so every
// watched record is reloaded.
func (s *PostgresStore) handleNotification(ctx context.Context, notification *pq.Notification) {
	if notification == nil {
		s.logger.Debug("Transaction status listener reconnected, reloading watched records")
		for _, id := range s.hub.ids() {
			s.reload(ctx, id)
		}
		return
	}

	if s.hub.watching(notification.Extra) {
		s.reload(ctx, notification.Extra)
	}
}

func (s *PostgresStore) reload(ctx context.Context, id string) {
	tx, err := s.load(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("txId", id).Warn("Failed to load changed transaction")
		return
	}
	s.hub.publish(tx)
}

var _ types.TransactionStore = (*PostgresStore)(nil)
