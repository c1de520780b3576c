package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/provision/internal/ir"
)

// Memory is an in-process Client. Payloads are cloned on the way in and
// out, so callers never share maps with the store.
type Memory struct {
	mu       sync.RWMutex
	docs     map[string]map[string]ir.IRObject
	readOnly bool
	closed   bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]ir.IRObject)}
}

// SetReadOnly makes subsequent writes fail with ErrPermissionDenied.
func (m *Memory) SetReadOnly(readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = readOnly
}

// EnsureInitialized fails only once the store is closed.
func (m *Memory) EnsureInitialized(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("ensure initialized: %w", ErrStoreUnavailable)
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, collection, key string) (ir.IRObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, ErrStoreUnavailable)
	}
	doc, ok := m.docs[collection][key]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, ErrNotFound)
	}
	return doc.Clone(), nil
}

func (m *Memory) Upsert(ctx context.Context, collection, key string, payload ir.IRObject) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := ir.MarshalCanonical(payload); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return fmt.Errorf("upsert %s/%s: %w", collection, key, ErrStoreUnavailable)
	case m.readOnly:
		return fmt.Errorf("upsert %s/%s: %w", collection, key, ErrPermissionDenied)
	}
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]ir.IRObject)
	}
	m.docs[collection][key] = payload.Clone()
	return nil
}

func (m *Memory) List(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("list %s: %w", collection, ErrStoreUnavailable)
	}
	keys := make([]string, 0, len(m.docs[collection]))
	for k := range m.docs[collection] {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	docs := make([]Document, 0, len(keys))
	for _, k := range keys {
		payload := m.docs[collection][k]
		docs = append(docs, Document{
			Collection:  collection,
			Key:         k,
			Payload:     payload.Clone(),
			ContentHash: ir.MustContentHash(payload),
		})
	}
	return docs, nil
}

// Snapshot deep-copies the full contents, keyed by collection then key.
func (m *Memory) Snapshot() map[string]map[string]ir.IRObject {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]ir.IRObject, len(m.docs))
	for coll, docs := range m.docs {
		out[coll] = make(map[string]ir.IRObject, len(docs))
		for k, v := range docs {
			out[coll][k] = v.Clone()
		}
	}
	return out
}

// Close marks the store unavailable. Contents are kept for Snapshot.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
