package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-crm/meridian-authz/internal/platform/httpx"
)

// Handler exposes the audit timeline to administrators.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit", h.timeline)
}

type entryResponse struct {
	ID       int64          `json:"id"`
	ActorID  string         `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

type timelineResponse struct {
	Entries  []entryResponse `json:"entries"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	HasNext  bool            `json:"has_next"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	entries := make([]entryResponse, 0, len(result.Entries))
	for _, entry := range result.Entries {
		entries = append(entries, entryResponse{
			ID:       entry.ID,
			ActorID:  entry.ActorID,
			Action:   entry.Action,
			Entity:   entry.Entity,
			EntityID: entry.EntityID,
			Meta:     entry.Meta,
			At:       entry.At,
		})
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{
		Entries:  entries,
		Page:     result.Paging.Page,
		PageSize: result.Paging.PageSize,
		HasNext:  result.Paging.HasNext,
	})
}

func parseFilters(r *http.Request) (TimelineFilters, error) {
	query := r.URL.Query()
	filters := TimelineFilters{
		Actor:  query.Get("actor"),
		Entity: query.Get("entity"),
		Action: query.Get("action"),
	}
	var err error
	if filters.From, err = parseTimeParam(query.Get("from")); err != nil {
		return TimelineFilters{}, err
	}
	if filters.To, err = parseTimeParam(query.Get("to")); err != nil {
		return TimelineFilters{}, err
	}
	if filters.Page, err = parseIntParam(query.Get("page")); err != nil {
		return TimelineFilters{}, err
	}
	if filters.PageSize, err = parseIntParam(query.Get("page_size")); err != nil {
		return TimelineFilters{}, err
	}
	return filters, nil
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

func parseIntParam(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
