package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/ledger"
	"github.com/meridian-gov/meridian/internal/shared"
)

func newTestService(t *testing.T) (*Service, *ledger.MemoryStore, *ledger.Ledger) {
	t.Helper()
	store := ledger.NewMemoryStore()
	led, err := ledger.NewLedger(context.Background(), ledger.Config{Store: store})
	require.NoError(t, err)
	t.Cleanup(led.Close)
	svc := NewService(ledger.NewReader(store), ledger.NewVerifier(store, nil, nil))
	return svc, store, led
}

func appendDecisions(t *testing.T, led *ledger.Ledger, actorIDs ...int64) {
	t.Helper()
	for _, id := range actorIDs {
		_, err := led.Append(context.Background(), ledger.Draft{
			ActorID:      id,
			ActorRole:    "citizen",
			Action:       "update",
			ResourceType: "case",
			ResourceID:   42,
			Decision:     "allow",
		})
		require.NoError(t, err)
	}
}

func TestRecordsVisibility(t *testing.T) {
	svc, _, led := newTestService(t)
	appendDecisions(t, led, 7, 8, 7)

	admin := authz.Principal{ID: 1, Role: authz.RoleAdmin, Active: true}
	all, err := svc.Records(context.Background(), admin, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}
	own, err := svc.Records(context.Background(), citizen, 0, 0)
	require.NoError(t, err)
	require.Len(t, own, 2)
	for _, rec := range own {
		assert.Equal(t, int64(7), rec.ActorID)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	svc, store, led := newTestService(t)
	appendDecisions(t, led, 7, 7, 7)

	require.NoError(t, svc.Verify(context.Background(), 1, 0))

	store.Tamper(2, func(rec *ledger.Record) {
		rec.ResourceID = 999
	})
	err := svc.Verify(context.Background(), 1, 0)
	require.ErrorIs(t, err, ledger.ErrIntegrity)
}

func TestExportRequiresPrivilegedRole(t *testing.T) {
	svc, _, led := newTestService(t)
	appendDecisions(t, led, 7)

	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}
	err := svc.Export(context.Background(), citizen, 1, 0, func(ledger.Record) error { return nil })
	require.ErrorIs(t, err, shared.ErrForbidden)

	clerk := authz.Principal{ID: 2, Role: authz.RoleClerk, Active: true}
	var n int
	require.NoError(t, svc.Export(context.Background(), clerk, 1, 0, func(ledger.Record) error {
		n++
		return nil
	}))
	assert.Equal(t, 1, n)
}

func TestWriteCSVStreamsRecords(t *testing.T) {
	svc, store, led := newTestService(t)
	appendDecisions(t, led, 7, 8)

	records, err := store.Range(context.Background(), 1, 0)
	require.NoError(t, err)

	clerk := authz.Principal{ID: 2, Role: authz.RoleClerk, Active: true}
	var buf bytes.Buffer
	err = CSVExporter{}.WriteCSV(&buf, func(fn func(ledger.Record) error) error {
		return svc.Export(context.Background(), clerk, 1, 0, fn)
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "sequence_no,timestamp,actor_id"))
	assert.Contains(t, lines[1], records[0].RecordHash)
}

func TestWriteCSVEmptyRangeKeepsHeader(t *testing.T) {
	svc, _, _ := newTestService(t)

	clerk := authz.Principal{ID: 2, Role: authz.RoleClerk, Active: true}
	var buf bytes.Buffer
	err := CSVExporter{}.WriteCSV(&buf, func(fn func(ledger.Record) error) error {
		return svc.Export(context.Background(), clerk, 1, 0, fn)
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "sequence_no,timestamp,actor_id"))
}
