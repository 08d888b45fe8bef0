// Package audithttp serves the audit ledger over HTTP: record listing,
// chain verification and compliance export.
package audithttp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/meridian-gov/meridian/internal/audit"
	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/ledger"
	"github.com/meridian-gov/meridian/internal/platform/httpx"
	"github.com/meridian-gov/meridian/internal/shared"
)

// Handler serves audit ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *audit.Service
	exporter audit.CSVExporter
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *audit.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type recordResponse struct {
	SequenceNo   int64           `json:"sequence_no"`
	Timestamp    string          `json:"timestamp"`
	ActorID      int64           `json:"actor_id"`
	ActorRole    string          `json:"actor_role"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   int64           `json:"resource_id"`
	Decision     string          `json:"decision"`
	Reason       string          `json:"reason,omitempty"`
	FieldDiff    json.RawMessage `json:"field_diff,omitempty"`
	PrevHash     string          `json:"prev_hash"`
	RecordHash   string          `json:"record_hash"`
	Erased       bool            `json:"erased,omitempty"`
}

func toResponse(rec ledger.Record) recordResponse {
	return recordResponse{
		SequenceNo:   rec.SequenceNo,
		Timestamp:    rec.Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
		ActorID:      rec.ActorID,
		ActorRole:    rec.ActorRole,
		Action:       rec.Action,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		Decision:     rec.Decision,
		Reason:       rec.Reason,
		FieldDiff:    rec.FieldDiff,
		PrevHash:     rec.PrevHash,
		RecordHash:   rec.RecordHash,
		Erased:       rec.Erased,
	}
}

func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	records, err := h.service.Records(r.Context(), actor, from, to)
	if err != nil {
		h.logger.Error("list audit records failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]recordResponse, len(records))
	for i, rec := range records {
		out[i] = toResponse(rec)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": out})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if actor.Role != authz.RoleAdmin && actor.Role != authz.RoleClerk {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Verify(r.Context(), from, to); err != nil {
		if errors.Is(err, ledger.ErrIntegrity) {
			// The mismatch detail stays in the logs; the response
			// confirms only that verification failed.
			h.logger.Error("chain verification failed", slog.Any("error", err))
			httpx.JSON(w, http.StatusConflict, map[string]any{"intact": false})
			return
		}
		h.logger.Error("chain verification errored", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"intact": true})
}

// handleExport streams the range straight to the response writer, one
// record at a time, so a full 7-year export never materializes in
// memory. The role gate runs before the first byte goes out; an error
// mid-stream can only truncate the body.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if !actor.Active || (actor.Role != authz.RoleAdmin && actor.Role != authz.RoleClerk) {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "json") {
		h.exportJSON(w, r, actor, from, to)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-ledger.csv"`)
	if err := h.exporter.WriteCSV(w, func(fn func(ledger.Record) error) error {
		return h.service.Export(r.Context(), actor, from, to, fn)
	}); err != nil {
		h.logger.Error("csv export aborted", slog.Any("error", err))
	}
}

func (h *Handler) exportJSON(w http.ResponseWriter, r *http.Request, actor authz.Principal, from, to int64) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-ledger.json"`)
	if _, err := io.WriteString(w, `{"records":[`); err != nil {
		return
	}
	first := true
	err := h.service.Export(r.Context(), actor, from, to, func(rec ledger.Record) error {
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		first = false
		b, err := json.Marshal(toResponse(rec))
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	})
	if err != nil {
		h.logger.Error("json export aborted", slog.Any("error", err))
		return
	}
	_, _ = io.WriteString(w, `]}`)
}

func parseRange(r *http.Request) (int64, int64, error) {
	from := int64(1)
	to := int64(0)
	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 1 {
			return 0, 0, shared.ErrValidation
		}
		from = parsed
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < from {
			return 0, 0, shared.ErrValidation
		}
		to = parsed
	}
	return from, to, nil
}
