package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/shared"
)

func TestRecordsForVisibility(t *testing.T) {
	store := NewMemoryStore()
	l := newTestLedger(t, store)
	appendN(t, l, 6) // actors 1..6

	reader := NewReader(store)

	clerk := authz.Principal{ID: 99, Role: authz.RoleClerk, Active: true}
	all, err := reader.RecordsFor(context.Background(), clerk, 1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	lawyer := authz.Principal{ID: 3, Role: authz.RoleLawyer, Active: true}
	own, err := reader.RecordsFor(context.Background(), lawyer, 1, 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, int64(3), own[0].ActorID)

	inactive := authz.Principal{ID: 3, Role: authz.RoleLawyer, Active: false}
	none, err := reader.RecordsFor(context.Background(), inactive, 1, 0)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, none)
}

func TestExportRangeStreamsInOrder(t *testing.T) {
	store := NewMemoryStore()
	l := newTestLedger(t, store)
	appendN(t, l, 10)

	reader := NewReader(store)
	var seqs []int64
	err := reader.ExportRange(context.Background(), 2, 8, func(rec Record) error {
		seqs = append(seqs, rec.SequenceNo)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seqs, 7)
	for i, seq := range seqs {
		assert.Equal(t, int64(i+2), seq)
	}
}
