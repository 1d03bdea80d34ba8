package txstore

import (
	"context"
	"encoding/json"
	"time"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/ClipFinance/swap-lib/common/types"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	redisKeyPrefix     = "swaptx:"
	redisChannelPrefix = "swaptx:status:"
	// maxWatchRetries bounds optimistic-lock retries when records change concurrently.
	maxWatchRetries = 5
)

// RedisStore is a TransactionStore backed by Redis. Records are stored as JSON
// and every change is published on a per-record Pub/Sub channel.
type RedisStore struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
//
// Parameters:
// - ctx: the context for managing the connection check.
// - addr: the host:port of the Redis server.
// - password: the Redis password, empty for none.
// - db: the Redis database number.
// - logger: the logger for logging events.
//
// Returns:
// - *RedisStore: the store.
// - error: an error if Redis is unreachable.
func NewRedisStore(ctx context.Context, addr, password string, db int, logger *logrus.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	return &RedisStore{rdb: rdb, logger: logger}, nil
}

// Get returns the record with the given id.
func (s *RedisStore) Get(ctx context.Context, id string) (*types.TransactionDetails, error) {
	return s.get(ctx, s.rdb, id)
}

// Put inserts the record or replaces a record whose status is not final.
func (s *RedisStore) Put(ctx context.Context, tx *types.TransactionDetails) error {
	if tx == nil || tx.ID == "" {
		return errors.New("transaction id is required")
	}

	return s.update(ctx, tx.ID, func(current *types.TransactionDetails) (*types.TransactionDetails, error) {
		if current != nil && current.Status.IsFinal() {
			return nil, errors.Wrapf(commonerrors.ErrStatusFinal, "id %s is %s", tx.ID, current.Status)
		}

		record := tx.Clone()
		now := time.Now().UTC()
		if record.AddedTime.IsZero() {
			record.AddedTime = now
		}
		record.UpdatedTime = now
		return record, nil
	})
}

// UpdateStatus moves the record to status unless its current status is final.
func (s *RedisStore) UpdateStatus(ctx context.Context, id string, status types.TransactionStatus) error {
	return s.update(ctx, id, func(current *types.TransactionDetails) (*types.TransactionDetails, error) {
		if current == nil {
			return nil, errors.Wrapf(commonerrors.ErrTransactionNotFound, "id %s", id)
		}
		if err := checkTransition(current.Status, status); err != nil {
			return nil, errors.Wrapf(err, "id %s", id)
		}
		if current.Status == status {
			return nil, nil
		}

		record := current.Clone()
		record.Status = status
		record.UpdatedTime = time.Now().UTC()
		return record, nil
	})
}

// Subscribe opens a Pub/Sub subscription for the record. The subscription is
// closed together with the returned channel when ctx ends.
func (s *RedisStore) Subscribe(ctx context.Context, id string) (<-chan *types.TransactionDetails, error) {
	pubsub := s.rdb.Subscribe(ctx, redisChannelPrefix+id)

	// Wait for the subscription confirmation so no change published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrapf(err, "failed to subscribe to transaction %s", id)
	}

	out := make(chan *types.TransactionDetails, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var tx types.TransactionDetails
				if err := json.Unmarshal([]byte(msg.Payload), &tx); err != nil {
					s.logger.WithError(err).WithField("txId", id).Warn("Failed to decode transaction update")
					continue
				}

				select {
				case <-out:
				default:
				}
				out <- &tx
			}
		}
	}()

	return out, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// update applies fn to the current record under WATCH and publishes the result.
// fn returning a nil record means nothing changes.
func (s *RedisStore) update(ctx context.Context, id string, fn func(*types.TransactionDetails) (*types.TransactionDetails, error)) error {
	key := redisKeyPrefix + id

	txf := func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, id)
		if err != nil && !errors.Is(err, commonerrors.ErrTransactionNotFound) {
			return err
		}

		record, err := fn(current)
		if err != nil || record == nil {
			return err
		}

		payload, err := json.Marshal(record)
		if err != nil {
			return errors.Wrap(err, "failed to encode transaction")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.Publish(ctx, redisChannelPrefix+id, payload)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		return nil
	}

	return errors.Errorf("transaction %s changed concurrently %d times", id, maxWatchRetries)
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, cmd stringGetter, id string) (*types.TransactionDetails, error) {
	payload, err := cmd.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(commonerrors.ErrTransactionNotFound, "id %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read transaction")
	}

	var tx types.TransactionDetails
	if err := json.Unmarshal(payload, &tx); err != nil {
		return nil, errors.Wrap(err, "failed to decode transaction")
	}
	return &tx, nil
}

var _ types.TransactionStore = (*RedisStore)(nil)
