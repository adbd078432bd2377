package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each document as a JSON string value. Transactions use
// optimistic locking: every key read inside the transaction is WATCHed and
// buffered writes are flushed in a MULTI/EXEC block. A concurrent write to a
// watched key aborts EXEC and the transaction is replayed.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "doc:",
	}
}

func (r *RedisStore) key(collection, key string) string {
	return r.prefix + docKey(collection, key)
}

func (r *RedisStore) Get(ctx context.Context, collection, key string, dst any) error {
	raw, err := r.client.Get(ctx, r.key(collection, key)).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: failed to read %s: %w", docKey(collection, key), err)
	}
	return decode(raw, dst)
}

func (r *RedisStore) Set(ctx context.Context, collection, key string, data any, opts ...SetOption) error {
	if !applyOptions(opts).merge {
		doc, err := encode(data)
		if err != nil {
			return err
		}
		return r.client.Set(ctx, r.key(collection, key), doc, 0).Err()
	}

	// A merge is a read-modify-write, so it goes through a transaction.
	return r.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(ctx, collection, key, data, opts...)
	})
}

func (r *RedisStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{store: r, tx: rtx, writes: make(map[string][]byte)}
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if len(tx.writes) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for k, v := range tx.writes {
					pipe.Set(ctx, k, v, 0)
				}
				return nil
			})
			return err
		})
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return ErrTxConflict
}

type redisTx struct {
	store  *RedisStore
	tx     *redis.Tx
	writes map[string][]byte
}

// read watches k and returns its current value, preferring pending writes.
func (t *redisTx) read(ctx context.Context, k string) ([]byte, error) {
	if v, ok := t.writes[k]; ok {
		return v, nil
	}
	if err := t.tx.Watch(ctx, k).Err(); err != nil {
		return nil, fmt.Errorf("store: failed to watch %s: %w", k, err)
	}
	raw, err := t.tx.Get(ctx, k).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to read %s: %w", k, err)
	}
	return raw, nil
}

func (t *redisTx) Get(ctx context.Context, collection, key string, dst any) error {
	raw, err := t.read(ctx, t.store.key(collection, key))
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrNotFound
	}
	return decode(raw, dst)
}

func (t *redisTx) Set(ctx context.Context, collection, key string, data any, opts ...SetOption) error {
	k := t.store.key(collection, key)

	var existing []byte
	if applyOptions(opts).merge {
		var err error
		if existing, err = t.read(ctx, k); err != nil {
			return err
		}
	}

	doc, err := prepare(existing, data, opts)
	if err != nil {
		return err
	}
	t.writes[k] = doc
	return nil
}

func (t *redisTx) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	k := t.store.key(collection, key)
	existing, err := t.read(ctx, k)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}

	doc, err := prepare(existing, fields, []SetOption{Merge()})
	if err != nil {
		return err
	}
	t.writes[k] = doc
	return nil
}
