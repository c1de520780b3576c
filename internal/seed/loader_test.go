package seed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provision/internal/ir"
	"github.com/roach88/provision/internal/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	reg, err := registry.FromSchemas(
		ir.CollectionSchema{Name: "milestones"},
		ir.CollectionSchema{Name: "credential_providers"},
	)
	require.NoError(t, err)
	return reg
}

func TestLoadPreservesOrder(t *testing.T) {
	records := []ir.SeedRecord{
		{Collection: "milestones", Key: "social_smiling_0_6", Payload: ir.Obj(ir.O("title", ir.IRString("Social smiling")))},
		{Collection: "credential_providers", Key: "iblce", Payload: ir.Obj(ir.O("abbreviation", ir.IRString("IBLCE")))},
	}
	got, err := NewLoader(testRegistry(t), records).Load()
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestLoadSameKeyDifferentCollections(t *testing.T) {
	payload := ir.Obj(ir.O("a", ir.IRInt(1)))
	_, err := NewLoader(testRegistry(t), []ir.SeedRecord{
		{Collection: "milestones", Key: "x", Payload: payload},
		{Collection: "credential_providers", Key: "x", Payload: payload},
	}).Load()
	require.NoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	payload := ir.Obj(ir.O("a", ir.IRInt(1)))
	tests := []struct {
		name    string
		records []ir.SeedRecord
		want    error
	}{
		{"unknown collection", []ir.SeedRecord{{Collection: "ghost", Key: "k", Payload: payload}}, ir.ErrUnknownCollection},
		{"duplicate", []ir.SeedRecord{
			{Collection: "milestones", Key: "k", Payload: payload},
			{Collection: "milestones", Key: "k", Payload: payload},
		}, ir.ErrDuplicateSeed},
		{"schema key", []ir.SeedRecord{{Collection: "milestones", Key: ir.SchemaKey, Payload: payload}}, ir.ErrReservedKey},
		{"empty key", []ir.SeedRecord{{Collection: "milestones", Payload: payload}}, ir.ErrReservedKey},
		{"nil payload", []ir.SeedRecord{{Collection: "milestones", Key: "k"}}, ir.ErrInvalidSchema},
		{"keys equal after NFC", []ir.SeedRecord{{Collection: "milestones", Key: "k", Payload: ir.Obj(
			ir.O("caf\u00e9", ir.IRString("a")),
			ir.O("cafe\u0301", ir.IRString("b")),
		)}}, ir.ErrDuplicateKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(testRegistry(t), tt.records).Load()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestViolationsReportsEveryRecord(t *testing.T) {
	payload := ir.Obj(ir.O("a", ir.IRInt(1)))
	errs := NewLoader(testRegistry(t), []ir.SeedRecord{
		{Collection: "ghost", Key: "k", Payload: payload},
		{Collection: "milestones", Key: "k", Payload: payload},
		{Collection: "milestones", Key: ir.SchemaKey, Payload: payload},
		{Collection: "milestones", Key: "k", Payload: payload},
	}).Violations()

	require.Len(t, errs, 3)
	assert.ErrorIs(t, errs[0], ir.ErrUnknownCollection)
	assert.ErrorIs(t, errs[1], ir.ErrReservedKey)
	assert.ErrorIs(t, errs[2], ir.ErrDuplicateSeed)
	assert.Contains(t, errs[2].Error(), "seed 3")
}

func TestLoaderCopiesRecords(t *testing.T) {
	records := []ir.SeedRecord{{Collection: "milestones", Key: "k", Payload: ir.Obj(ir.O("a", ir.IRInt(1)))}}
	l := NewLoader(testRegistry(t), records)
	records[0].Payload["a"] = ir.IRInt(2)

	got, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(1), got[0].Payload["a"])
}
