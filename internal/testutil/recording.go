package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/store"
)

// Call is one recorded store operation.
type Call struct {
	Method     string
	Collection string
	Key        string
	Payload    ir.IRObject
}

// Target returns "collection/key".
func (c Call) Target() string {
	return c.Collection + "/" + c.Key
}

// RecordingStore wraps a store.Memory, records every call, and can inject
// failures per target.
type RecordingStore struct {
	*store.Memory

	mu       sync.Mutex
	calls    []Call
	failures map[string]error
	initErr  error
}

// NewRecordingStore returns a RecordingStore over an empty Memory.
func NewRecordingStore() *RecordingStore {
	return &RecordingStore{Memory: store.NewMemory(), failures: make(map[string]error)}
}

// FailUpsert makes every Upsert to collection/key return err.
func (r *RecordingStore) FailUpsert(collection, key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures["upsert:"+collection+"/"+key] = err
}

// FailGet makes every Get of collection/key return err.
func (r *RecordingStore) FailGet(collection, key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures["get:"+collection+"/"+key] = err
}

// FailInit makes EnsureInitialized return err.
func (r *RecordingStore) FailInit(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initErr = err
}

func (r *RecordingStore) record(c Call, failKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.failures[failKey]
}

func (r *RecordingStore) EnsureInitialized(ctx context.Context) error {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Method: "EnsureInitialized"})
	err := r.initErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Memory.EnsureInitialized(ctx)
}

func (r *RecordingStore) Get(ctx context.Context, collection, key string) (ir.IRObject, error) {
	if err := r.record(Call{Method: "Get", Collection: collection, Key: key}, "get:"+collection+"/"+key); err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return r.Memory.Get(ctx, collection, key)
}

func (r *RecordingStore) Upsert(ctx context.Context, collection, key string, payload ir.IRObject) error {
	c := Call{Method: "Upsert", Collection: collection, Key: key, Payload: payload.Clone()}
	if err := r.record(c, "upsert:"+collection+"/"+key); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}
	return r.Memory.Upsert(ctx, collection, key, payload)
}

func (r *RecordingStore) List(ctx context.Context, collection string) ([]store.Document, error) {
	_ = r.record(Call{Method: "List", Collection: collection}, "")
	return r.Memory.List(ctx, collection)
}

// Calls returns every recorded call in order.
func (r *RecordingStore) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Upserts returns only the recorded Upsert calls, including failed ones.
func (r *RecordingStore) Upserts() []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Method == "Upsert" {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls. Stored documents and failures remain.
func (r *RecordingStore) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

var _ store.Client = (*RecordingStore)(nil)
