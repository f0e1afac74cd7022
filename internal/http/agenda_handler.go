package http

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/item-scheduler/internal/application"
	"github.com/example/item-scheduler/internal/ical"
	"github.com/example/item-scheduler/internal/recurrence"
)

// defaultAgendaDays is the span of GET /agenda when to is omitted.
const defaultAgendaDays = 7

type agendaService interface {
	ProjectRange(ctx context.Context, params application.ProjectRangeParams) (application.Agenda, error)
	Calendar(ctx context.Context, from, to recurrence.Date) (application.Calendar, error)
	Today() recurrence.Date
}

type AgendaHandler struct {
	service   agendaService
	exporter  *ical.Exporter
	responder responder
	logger    *slog.Logger
}

func NewAgendaHandler(service agendaService, exporter *ical.Exporter, logger *slog.Logger) *AgendaHandler {
	return &AgendaHandler{
		service:   service,
		exporter:  exporter,
		responder: newResponder(logger),
		logger:    defaultLogger(logger),
	}
}

// Agenda serves GET /agenda. A missing from defaults to today and a missing
// to covers one week from from.
func (h *AgendaHandler) Agenda(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	params, err := h.buildRangeParams(r.URL.Query())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	agenda, err := h.service.ProjectRange(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAgendaResponse(agenda))
}

// Calendar serves GET /calendar.ics. Without bounds every dated item is
// exported.
func (h *AgendaHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil || h.exporter == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	errs := fieldErrors{}
	from := parseDateField(query.Get("from"), "from", errs)
	to := parseDateField(query.Get("to"), "to", errs)
	if err := errs.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	cal, err := h.service.Calendar(r.Context(), from, to)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Export(&buf, cal); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "AgendaHandler", "Calendar").DebugContext(r.Context(), "calendar exported",
		"series", len(cal.Series),
		"overrides", len(cal.Overrides),
	)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *AgendaHandler) buildRangeParams(values url.Values) (application.ProjectRangeParams, error) {
	errs := fieldErrors{}
	params := application.ProjectRangeParams{
		From: parseDateField(values.Get("from"), "from", errs),
		To:   parseDateField(values.Get("to"), "to", errs),
	}
	if raw := strings.TrimSpace(values.Get("include_completed")); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			errs.add("include_completed", "must be true or false")
		}
		params.IncludeCompleted = include
	}
	if err := errs.err(); err != nil {
		return application.ProjectRangeParams{}, err
	}

	if params.From.IsZero() {
		params.From = h.service.Today()
	}
	if params.To.IsZero() {
		params.To = params.From.AddDays(defaultAgendaDays - 1)
	}
	return params, nil
}

type agendaResponse struct {
	From      string           `json:"from"`
	To        string           `json:"to"`
	Truncated bool             `json:"truncated"`
	Entries   []agendaEntryDTO `json:"entries"`
}

type agendaEntryDTO struct {
	Source       string   `json:"source"`
	ItemID       string   `json:"item_id"`
	SeriesID     string   `json:"series_id,omitempty"`
	Date         string   `json:"date"`
	EndDate      string   `json:"end_date,omitempty"`
	IsAnchor     bool     `json:"is_anchor"`
	OriginalDate string   `json:"original_date,omitempty"`
	Title        string   `json:"title"`
	Location     string   `json:"location,omitempty"`
	Category     string   `json:"category,omitempty"`
	Priority     string   `json:"priority"`
	Kind         string   `json:"kind"`
	DueTime      string   `json:"due_time,omitempty"`
	EndTime      string   `json:"end_time,omitempty"`
	AssigneeIDs  []string `json:"assignee_ids,omitempty"`
	IsCompleted  bool     `json:"is_completed"`
	Alerts       []string `json:"alerts,omitempty"`
}

func toAgendaResponse(agenda application.Agenda) agendaResponse {
	response := agendaResponse{
		From:      formatDate(agenda.From),
		To:        formatDate(agenda.To),
		Truncated: agenda.Truncated,
		Entries:   make([]agendaEntryDTO, 0, len(agenda.Entries)),
	}
	for _, entry := range agenda.Entries {
		dto := agendaEntryDTO{
			Source:       string(entry.Source),
			ItemID:       entry.ItemID,
			SeriesID:     entry.SeriesID,
			Date:         formatDate(entry.Date),
			EndDate:      formatDate(entry.EndDate),
			IsAnchor:     entry.IsAnchor,
			OriginalDate: formatDate(entry.OriginalDate),
			Title:        entry.Title,
			Location:     entry.Location,
			Category:     entry.Category,
			Priority:     string(entry.Priority),
			Kind:         string(entry.Kind),
			DueTime:      formatTimeOfDay(entry.DueTime),
			EndTime:      formatTimeOfDay(entry.EndTime),
			AssigneeIDs:  entry.AssigneeIDs,
			IsCompleted:  entry.IsCompleted,
		}
		for _, at := range entry.Alerts {
			dto.Alerts = append(dto.Alerts, at.Format(time.RFC3339))
		}
		response.Entries = append(response.Entries, dto)
	}
	return response
}

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db        pinger
	responder responder
}

func NewHealthHandler(db pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, responder: newResponder(logger)}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
			h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}
