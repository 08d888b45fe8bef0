package cases

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/platform/httpx"
	"github.com/meridian-gov/meridian/internal/shared"
)

// Handler exposes case endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers case routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listCases)
	r.Post("/", h.createCase)
	r.Get("/{id}", h.getCase)
	r.Patch("/{id}", h.updateCase)
}

type caseResponse struct {
	ID              int64  `json:"id"`
	Number          string `json:"number"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Status          string `json:"status"`
	OwnerID         int64  `json:"owner_id"`
	AssignedJudgeID int64  `json:"assigned_judge_id,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toResponse(c Case) caseResponse {
	return caseResponse{
		ID:              c.ID,
		Number:          c.Number,
		Title:           c.Title,
		Description:     c.Description,
		Status:          string(c.Status),
		OwnerID:         c.OwnerID,
		AssignedJudgeID: c.AssignedJudgeID,
		CreatedAt:       c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:       c.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *Handler) listCases(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	q := r.URL.Query()
	filter := Filter{Status: Status(q.Get("status"))}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if filter.Status != "" && !filter.Status.Valid() {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	list, total, err := h.service.ListCases(r.Context(), actor, filter)
	if err != nil {
		h.logger.Error("list cases failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	out := make([]caseResponse, len(list))
	for i, c := range list {
		out[i] = toResponse(c)
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"cases": out,
		"pagination": map[string]int{
			"page":        page.Page,
			"per_page":    page.PerPage,
			"total":       page.Total,
			"total_pages": page.TotalPages,
		},
	})
}

func (h *Handler) getCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	c, err := h.service.GetCase(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(c))
}

func (h *Handler) createCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateCase(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) updateCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var delta authz.FieldDelta
	if err := httpx.DecodeJSON(r, &delta); err != nil || len(delta) == 0 {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	updated, err := h.service.UpdateCase(r.Context(), actor, id, delta)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(updated))
}
