package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-gov/meridian/internal/audit"
	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/ledger"
)

func newTestRouter(t *testing.T) (chi.Router, *ledger.MemoryStore, *ledger.Ledger) {
	t.Helper()
	store := ledger.NewMemoryStore()
	led, err := ledger.NewLedger(context.Background(), ledger.Config{Store: store})
	require.NoError(t, err)
	t.Cleanup(led.Close)

	svc := audit.NewService(ledger.NewReader(store), ledger.NewVerifier(store, nil, nil))
	handler := NewHandler(nil, svc)

	r := chi.NewRouter()
	r.Route("/audit", handler.MountRoutes)
	return r, store, led
}

func appendRecords(t *testing.T, led *ledger.Ledger, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := led.Append(context.Background(), ledger.Draft{
			ActorID:      7,
			ActorRole:    "citizen",
			Action:       "update",
			ResourceType: "case",
			ResourceID:   42,
			Decision:     "allow",
		})
		require.NoError(t, err)
	}
}

func doRequest(r chi.Router, actor authz.Principal, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(authz.ContextWithPrincipal(req.Context(), actor))
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return res
}

func TestRecordsEndpointFiltersByActor(t *testing.T) {
	router, _, led := newTestRouter(t)
	appendRecords(t, led, 3)

	admin := authz.Principal{ID: 1, Role: authz.RoleAdmin, Active: true}
	res := doRequest(router, admin, "/audit/records")
	require.Equal(t, http.StatusOK, res.Code)

	var payload struct {
		Records []json.RawMessage `json:"records"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	assert.Len(t, payload.Records, 3)

	other := authz.Principal{ID: 99, Role: authz.RoleCitizen, Active: true}
	res = doRequest(router, other, "/audit/records")
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	assert.Empty(t, payload.Records)
}

func TestRecordsEndpointRefusesInactiveActor(t *testing.T) {
	router, _, led := newTestRouter(t)
	appendRecords(t, led, 1)

	suspended := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: false}
	res := doRequest(router, suspended, "/audit/records")
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestVerifyEndpoint(t *testing.T) {
	router, store, led := newTestRouter(t)
	appendRecords(t, led, 3)

	admin := authz.Principal{ID: 1, Role: authz.RoleAdmin, Active: true}
	res := doRequest(router, admin, "/audit/verify")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"intact":true`)

	store.Tamper(2, func(rec *ledger.Record) { rec.ActorID = 666 })
	res = doRequest(router, admin, "/audit/verify")
	require.Equal(t, http.StatusConflict, res.Code)
	assert.Contains(t, res.Body.String(), `"intact":false`)
	// No chain internals in the response body.
	assert.NotContains(t, res.Body.String(), "hash")
}

func TestVerifyEndpointRequiresPrivilegedRole(t *testing.T) {
	router, _, led := newTestRouter(t)
	appendRecords(t, led, 1)

	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}
	res := doRequest(router, citizen, "/audit/verify")
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestExportEndpointCSV(t *testing.T) {
	router, _, led := newTestRouter(t)
	appendRecords(t, led, 2)

	admin := authz.Principal{ID: 1, Role: authz.RoleAdmin, Active: true}
	res := doRequest(router, admin, "/audit/export")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/csv; charset=utf-8", res.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(res.Body.String()), "\n")
	assert.Len(t, lines, 3)

	citizen := authz.Principal{ID: 7, Role: authz.RoleCitizen, Active: true}
	res = doRequest(router, citizen, "/audit/export")
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestExportEndpointJSON(t *testing.T) {
	router, _, led := newTestRouter(t)
	appendRecords(t, led, 2)

	admin := authz.Principal{ID: 1, Role: authz.RoleAdmin, Active: true}
	res := doRequest(router, admin, "/audit/export?format=json")
	require.Equal(t, http.StatusOK, res.Code)

	var payload struct {
		Records []struct {
			SequenceNo int64  `json:"sequence_no"`
			RecordHash string `json:"record_hash"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Len(t, payload.Records, 2)
	assert.Equal(t, int64(1), payload.Records[0].SequenceNo)
	assert.NotEmpty(t, payload.Records[0].RecordHash)
}
