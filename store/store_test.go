package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Flag  bool   `json:"flag,omitempty"`
}

func TestMemoryStore(t *testing.T) {
	runStoreConformance(t, NewMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	s := NewPostgresStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	runStoreConformance(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	runStoreConformance(t, NewRedisStore(client))
}

// runStoreConformance checks the behaviour every adapter must share. Keys are
// randomised so the suite can run against a persistent database.
func runStoreConformance(t *testing.T, s Store) {
	ctx := context.Background()
	coll := "test-" + uuid.NewString()

	t.Run("missing document", func(t *testing.T) {
		var doc testDoc
		if err := s.Get(ctx, coll, "absent", &doc); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("set replaces and merge overlays", func(t *testing.T) {
		if err := s.Set(ctx, coll, "a", testDoc{Name: "first", Count: 1, Flag: true}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := s.Set(ctx, coll, "a", map[string]any{"count": 5}, Merge()); err != nil {
			t.Fatalf("Set(merge) error = %v", err)
		}

		var got testDoc
		if err := s.Get(ctx, coll, "a", &got); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if want := (testDoc{Name: "first", Count: 5, Flag: true}); got != want {
			t.Errorf("after merge got %+v, want %+v", got, want)
		}

		if err := s.Set(ctx, coll, "a", testDoc{Name: "second"}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got = testDoc{}
		if err := s.Get(ctx, coll, "a", &got); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if want := (testDoc{Name: "second"}); got != want {
			t.Errorf("after replace got %+v, want %+v", got, want)
		}
	})

	t.Run("rejects non-object documents", func(t *testing.T) {
		if err := s.Set(ctx, coll, "scalar", 42); err == nil {
			t.Error("Set(42) error = nil, want error")
		}
	})

	t.Run("transaction commits all writes", func(t *testing.T) {
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Set(ctx, coll, "t1", testDoc{Name: "one"}); err != nil {
				return err
			}
			if err := tx.Set(ctx, coll, "t2", testDoc{Name: "two"}); err != nil {
				return err
			}
			var own testDoc
			if err := tx.Get(ctx, coll, "t1", &own); err != nil {
				return fmt.Errorf("read own write: %w", err)
			}
			return tx.Update(ctx, coll, "t1", map[string]any{"count": 3})
		})
		if err != nil {
			t.Fatalf("RunTransaction() error = %v", err)
		}

		var got testDoc
		if err := s.Get(ctx, coll, "t1", &got); err != nil {
			t.Fatalf("Get(t1) error = %v", err)
		}
		if want := (testDoc{Name: "one", Count: 3}); got != want {
			t.Errorf("t1 = %+v, want %+v", got, want)
		}
		if err := s.Get(ctx, coll, "t2", &got); err != nil {
			t.Errorf("Get(t2) error = %v", err)
		}
	})

	t.Run("transaction error discards writes", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Set(ctx, coll, "rolled-back", testDoc{Name: "x"}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("RunTransaction() error = %v, want boom", err)
		}
		if err := s.Get(ctx, coll, "rolled-back", nil); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(rolled-back) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("update of missing document", func(t *testing.T) {
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Update(ctx, coll, "nope", map[string]any{"count": 1})
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Update() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		if err := s.Set(ctx, coll, "counter", testDoc{Name: "counter"}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- retryConflicts(func() error {
					return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
						var doc testDoc
						if err := tx.Get(ctx, coll, "counter", &doc); err != nil {
							return err
						}
						return tx.Update(ctx, coll, "counter", map[string]any{"count": doc.Count + 1})
					})
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("increment error = %v", err)
			}
		}

		var got testDoc
		if err := s.Get(ctx, coll, "counter", &got); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Count != workers {
			t.Errorf("count = %d, want %d", got.Count, workers)
		}
	})
}

// retryConflicts gives heavily contended adapters room beyond their own
// internal retry budget.
func retryConflicts(fn func() error) error {
	var err error
	for i := 0; i < 20; i++ {
		if err = fn(); !errors.Is(err, ErrTxConflict) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 5 * time.Millisecond)
	}
	return err
}

func TestMergeDocuments(t *testing.T) {
	testCases := []struct {
		name  string
		base  string
		patch string
		want  map[string]any
	}{
		{"nil base", "", `{"a":1}`, map[string]any{"a": float64(1)}},
		{"overlay", `{"a":1,"b":2}`, `{"b":3,"c":4}`, map[string]any{"a": float64(1), "b": float64(3), "c": float64(4)}},
		{"nested replaced wholesale", `{"a":{"x":1,"y":2}}`, `{"a":{"x":5}}`, map[string]any{"a": map[string]any{"x": float64(5)}}},
	}

	for _, tc := range testCases {
		var base []byte
		if tc.base != "" {
			base = []byte(tc.base)
		}
		out, err := mergeDocuments(base, []byte(tc.patch))
		if err != nil {
			t.Errorf("%s: mergeDocuments() error = %v", tc.name, err)
			continue
		}
		var got map[string]any
		if err := decode(out, &got); err != nil {
			t.Fatalf("%s: decode error = %v", tc.name, err)
		}
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunTransaction() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("transaction function ran with a cancelled context")
	}
}
