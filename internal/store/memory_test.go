package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provision/internal/ir"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.EnsureInitialized(ctx))

	payload := ir.Obj(ir.O("color", ir.IRString("red")))
	require.NoError(t, m.Upsert(ctx, "widgets", "w", payload))

	got, err := m.Get(ctx, "widgets", "w")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = m.Get(ctx, "widgets", "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	payload := ir.Obj(ir.O("color", ir.IRString("red")))
	require.NoError(t, m.Upsert(ctx, "widgets", "w", payload))

	payload["color"] = ir.IRString("blue")
	got, err := m.Get(ctx, "widgets", "w")
	require.NoError(t, err)
	got["color"] = ir.IRString("green")

	snap := m.Snapshot()
	assert.Equal(t, ir.IRString("red"), snap["widgets"]["w"]["color"])
}

func TestMemoryReadOnlyAndClosed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetReadOnly(true)
	err := m.Upsert(ctx, "widgets", "w", ir.Obj())
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	require.NoError(t, m.Close())
	assert.True(t, errors.Is(m.EnsureInitialized(ctx), ErrStoreUnavailable))
	_, err = m.List(ctx, "widgets")
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestMemoryRejectsInvalidPayload(t *testing.T) {
	err := NewMemory().Upsert(context.Background(), "widgets", "w", ir.IRObject{"x": nil})
	require.Error(t, err)
}

func TestConnect(t *testing.T) {
	c, err := Connect(Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	path := filepath.Join(t.TempDir(), "p.db")
	c, err = Connect(Config{Path: path, Project: "zygo"})
	require.NoError(t, err)
	defer c.Close()
	require.IsType(t, &Store{}, c)
	assert.Equal(t, "zygo", c.(*Store).Project())

	_, err = Connect(Config{Driver: DriverSQLite})
	assert.True(t, errors.Is(err, ErrStoreUnavailable))

	_, err = Connect(Config{Driver: "firestore"})
	assert.Error(t, err)
}

func TestWithClosesStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.db")
	var kept Client
	err := With(context.Background(), Config{Path: path}, func(c Client) error {
		kept = c
		return c.Upsert(context.Background(), "widgets", "w", ir.Obj(ir.O("n", ir.IRInt(1))))
	})
	require.NoError(t, err)

	_, err = kept.Get(context.Background(), "widgets", "w")
	assert.True(t, errors.Is(err, ErrStoreUnavailable), "got %v", err)
}

func TestWithPropagatesCallbackError(t *testing.T) {
	boom := errors.New("boom")
	err := With(context.Background(), Config{Driver: DriverMemory}, func(Client) error { return boom })
	assert.True(t, errors.Is(err, boom))
}
