// Package store is the document database boundary: JSON documents addressed
// by (collection, key) with read-modify-write transactions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("store: document not found")
	// ErrTxConflict is returned when a transaction kept colliding with
	// concurrent writers and ran out of retries. Callers may retry.
	ErrTxConflict = errors.New("store: transaction conflict")
)

const maxTxAttempts = 5

// Store reads and writes documents. Implementations must make
// RunTransaction all-or-nothing and retry conflicting attempts themselves.
type Store interface {
	Get(ctx context.Context, collection, key string, dst any) error
	Set(ctx context.Context, collection, key string, data any, opts ...SetOption) error
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is a transaction handle. Writes become visible to other callers only
// when the enclosing RunTransaction returns nil.
type Tx interface {
	Get(ctx context.Context, collection, key string, dst any) error
	Set(ctx context.Context, collection, key string, data any, opts ...SetOption) error
	// Update merges fields into an existing document; ErrNotFound if it is absent.
	Update(ctx context.Context, collection, key string, fields map[string]any) error
}

type setOptions struct {
	merge bool
}

type SetOption func(*setOptions)

// Merge overlays the top-level fields of data onto the stored document
// instead of replacing it.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

func applyOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// encode turns a document into a JSON object.
func encode(data any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("store: failed to marshal document: %w", err)
	}
	if len(b) == 0 || b[0] != '{' {
		return nil, fmt.Errorf("store: document must be a JSON object")
	}
	return b, nil
}

func decode(raw []byte, dst any) error {
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("store: failed to unmarshal document: %w", err)
	}
	return nil
}

// mergeDocuments overlays patch's top-level fields on base. A nil base
// yields patch unchanged.
func mergeDocuments(base, patch []byte) ([]byte, error) {
	if base == nil {
		return patch, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("store: failed to unmarshal stored document: %w", err)
	}
	if merged == nil {
		merged = map[string]json.RawMessage{}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, fmt.Errorf("store: failed to unmarshal patch: %w", err)
	}
	for k, v := range fields {
		merged[k] = v
	}

	return json.Marshal(merged)
}

func prepare(existing []byte, data any, opts []SetOption) ([]byte, error) {
	doc, err := encode(data)
	if err != nil {
		return nil, err
	}
	if applyOptions(opts).merge {
		return mergeDocuments(existing, doc)
	}
	return doc, nil
}

func docKey(collection, key string) string {
	return collection + "/" + key
}
