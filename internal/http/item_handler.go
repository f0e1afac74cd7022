package http

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/mo"
	"golang.org/x/crypto/blake2b"

	"github.com/example/item-scheduler/internal/application"
	"github.com/example/item-scheduler/internal/recurrence"
)

type itemService interface {
	CreateItem(ctx context.Context, params application.CreateItemParams) (application.Series, error)
	GetItem(ctx context.Context, id string) (application.ItemRecord, error)
	UpdateItem(ctx context.Context, params application.UpdateItemParams) (application.ItemRecord, error)
	DeleteItem(ctx context.Context, id string) error
	DeleteOccurrence(ctx context.Context, params application.DeleteOccurrenceParams) error
	EditOccurrence(ctx context.Context, params application.EditOccurrenceParams) (application.OverrideOccurrence, error)
	CompleteItem(ctx context.Context, id, note string) (application.ItemRecord, error)
	UncompleteItem(ctx context.Context, id string) (application.ItemRecord, error)
}

type ItemHandler struct {
	service   itemService
	responder responder
	logger    *slog.Logger
}

func NewItemHandler(service itemService, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	series, err := h.service.CreateItem(r.Context(), application.CreateItemParams{Input: input})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", "/items/"+series.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toSeriesDTO(series))
}

// Get renders the item with a content ETag so clients can revalidate cheaply.
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	record, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	body, err := json.Marshal(toRecordDTO(record))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	tag := etag(body)
	w.Header().Set("ETag", tag)
	if matchesETag(r.Header.Get("If-None-Match"), tag) {
		handlerLogger(r.Context(), h.logger, "ItemHandler", "Get", "item_id", id).DebugContext(r.Context(), "item not modified")
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	errs := fieldErrors{}
	viewed := parseDateField(req.ViewedDate, "viewed_date", errs)
	if err := errs.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	record, err := h.service.UpdateItem(r.Context(), application.UpdateItemParams{
		ItemID:     id,
		ViewedDate: viewed,
		Input:      input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRecordDTO(record))
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteItem(r.Context(), id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ItemHandler) DeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	date, ok := h.occurrenceDate(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteOccurrence(r.Context(), application.DeleteOccurrenceParams{SeriesID: id, Date: date}); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ItemHandler) EditOccurrence(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	date, ok := h.occurrenceDate(w, r)
	if !ok {
		return
	}

	var req occurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	params, err := req.toParams(id, date)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	override, err := h.service.EditOccurrence(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toOverrideDTO(override))
}

func (h *ItemHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	record, err := h.service.CompleteItem(r.Context(), id, strings.TrimSpace(req.Note))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRecordDTO(record))
}

func (h *ItemHandler) Uncomplete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	record, err := h.service.UncompleteItem(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRecordDTO(record))
}

func (h *ItemHandler) itemID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidItemID)
		return "", false
	}
	return id, true
}

func (h *ItemHandler) occurrenceDate(w http.ResponseWriter, r *http.Request) (recurrence.Date, bool) {
	errs := fieldErrors{}
	date := parseDateField(r.PathValue("date"), "date", errs)
	if date.IsZero() {
		errs.add("date", "occurrence date is required")
	}
	if err := errs.err(); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return recurrence.Date{}, false
	}
	return date, true
}

// etag is a strong validator derived from the encoded representation.
func etag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func matchesETag(header, tag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == tag || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}

type recurrenceDTO struct {
	Kind         string   `json:"kind"`
	IntervalDays int      `json:"interval_days,omitempty"`
	Days         []string `json:"days,omitempty"`
}

type itemRequest struct {
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	Location            string         `json:"location"`
	Category            string         `json:"category"`
	Priority            string         `json:"priority"`
	Kind                string         `json:"kind"`
	AnchorDate          string         `json:"anchor_date"`
	AnchorEndDate       string         `json:"anchor_end_date"`
	DueTime             string         `json:"due_time"`
	EndTime             string         `json:"end_time"`
	Recurrence          *recurrenceDTO `json:"recurrence"`
	ReminderOffsets     *[]int         `json:"reminder_offsets"`
	IsBacklog           bool           `json:"is_backlog"`
	VisibleToDependents *bool          `json:"visible_to_dependents"`
	AssigneeIDs         []string       `json:"assignee_ids"`
	// ViewedDate is only read by PUT /items/{id}.
	ViewedDate string `json:"viewed_date"`
}

func (r itemRequest) toInput() (application.ItemInput, error) {
	errs := fieldErrors{}
	input := application.ItemInput{
		Title:               strings.TrimSpace(r.Title),
		Description:         r.Description,
		Location:            strings.TrimSpace(r.Location),
		Category:            strings.TrimSpace(r.Category),
		Priority:            application.Priority(strings.ToLower(strings.TrimSpace(r.Priority))),
		Kind:                application.ItemKind(strings.ToLower(strings.TrimSpace(r.Kind))),
		AnchorDate:          parseDateField(r.AnchorDate, "anchor_date", errs),
		AnchorEndDate:       parseDateField(r.AnchorEndDate, "anchor_end_date", errs),
		DueTime:             parseTimeField(r.DueTime, "due_time", errs),
		EndTime:             parseTimeField(r.EndTime, "end_time", errs),
		Recurrence:          parseRule(r.Recurrence, errs),
		ReminderOffsets:     offsetsOption(r.ReminderOffsets),
		IsBacklog:           r.IsBacklog,
		VisibleToDependents: r.VisibleToDependents == nil || *r.VisibleToDependents,
		AssigneeIDs:         append([]string(nil), r.AssigneeIDs...),
	}
	return input, errs.err()
}

type occurrenceRequest struct {
	NewDate         string    `json:"new_date"`
	NewEndDate      string    `json:"new_end_date"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	Category        string    `json:"category"`
	Priority        string    `json:"priority"`
	Kind            string    `json:"kind"`
	DueTime         string    `json:"due_time"`
	EndTime         string    `json:"end_time"`
	ReminderOffsets *[]int    `json:"reminder_offsets"`
	AssigneeIDs     *[]string `json:"assignee_ids"`
}

func (r occurrenceRequest) toParams(seriesID string, originalDate recurrence.Date) (application.EditOccurrenceParams, error) {
	errs := fieldErrors{}
	params := application.EditOccurrenceParams{
		SeriesID:     seriesID,
		OriginalDate: originalDate,
		NewDate:      parseDateField(r.NewDate, "new_date", errs),
		NewEndDate:   parseDateField(r.NewEndDate, "new_end_date", errs),
		Fields: application.OccurrenceInput{
			Title:           strings.TrimSpace(r.Title),
			Description:     r.Description,
			Location:        strings.TrimSpace(r.Location),
			Category:        strings.TrimSpace(r.Category),
			Priority:        application.Priority(strings.ToLower(strings.TrimSpace(r.Priority))),
			Kind:            application.ItemKind(strings.ToLower(strings.TrimSpace(r.Kind))),
			DueTime:         parseTimeField(r.DueTime, "due_time", errs),
			EndTime:         parseTimeField(r.EndTime, "end_time", errs),
			ReminderOffsets: offsetsOption(r.ReminderOffsets),
		},
	}
	if r.AssigneeIDs != nil {
		params.Fields.AssigneeIDs = mo.Some(append([]string{}, (*r.AssigneeIDs)...))
	}
	return params, errs.err()
}

type completeRequest struct {
	Note string `json:"note"`
}

func parseDateField(value, field string, errs fieldErrors) recurrence.Date {
	value = strings.TrimSpace(value)
	if value == "" {
		return recurrence.Date{}
	}
	date, err := recurrence.ParseDate(value)
	if err != nil {
		errs.add(field, "must be a YYYY-MM-DD date")
		return recurrence.Date{}
	}
	return date
}

func parseTimeField(value, field string, errs fieldErrors) *recurrence.TimeOfDay {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	t, err := recurrence.ParseTimeOfDay(value)
	if err != nil {
		errs.add(field, "must be an HH:MM time")
		return nil
	}
	return &t
}

func parseRule(dto *recurrenceDTO, errs fieldErrors) recurrence.Rule {
	if dto == nil {
		return recurrence.Once{}
	}

	days := make([]time.Weekday, 0, len(dto.Days))
	for _, value := range dto.Days {
		day, err := recurrence.ParseWeekday(strings.TrimSpace(value))
		if err != nil {
			errs.add("recurrence.days", "unknown weekday "+value)
			continue
		}
		days = append(days, day)
	}

	rule, err := recurrence.Parse(recurrence.Kind(strings.ToLower(strings.TrimSpace(dto.Kind))), dto.IntervalDays, days)
	if err != nil {
		errs.add("recurrence.kind", "unknown recurrence kind")
		return recurrence.Once{}
	}
	return rule
}

// offsetsOption keeps an omitted field distinct from an explicit empty list.
func offsetsOption(offsets *[]int) mo.Option[[]int] {
	if offsets == nil {
		return mo.None[[]int]()
	}
	return mo.Some(append([]int{}, (*offsets)...))
}

type itemDTO struct {
	ID                  string         `json:"id"`
	SeriesID            string         `json:"series_id,omitempty"`
	OriginalDate        string         `json:"original_date,omitempty"`
	Title               string         `json:"title"`
	Description         string         `json:"description,omitempty"`
	Location            string         `json:"location,omitempty"`
	Category            string         `json:"category,omitempty"`
	Priority            string         `json:"priority"`
	Kind                string         `json:"kind"`
	AnchorDate          string         `json:"anchor_date,omitempty"`
	AnchorEndDate       string         `json:"anchor_end_date,omitempty"`
	DueTime             string         `json:"due_time,omitempty"`
	EndTime             string         `json:"end_time,omitempty"`
	Recurrence          *recurrenceDTO `json:"recurrence,omitempty"`
	ReminderOffsets     []int          `json:"reminder_offsets"`
	IsBacklog           bool           `json:"is_backlog"`
	VisibleToDependents bool           `json:"visible_to_dependents"`
	AssigneeIDs         []string       `json:"assignee_ids"`
	IsCompleted         bool           `json:"is_completed"`
	CompletionNote      string         `json:"completion_note,omitempty"`
	CompletedAt         string         `json:"completed_at,omitempty"`
	CreatedAt           string         `json:"created_at"`
	UpdatedAt           string         `json:"updated_at"`
}

func toRecordDTO(record application.ItemRecord) itemDTO {
	if record.Override != nil {
		return toOverrideDTO(*record.Override)
	}
	if record.Series != nil {
		return toSeriesDTO(*record.Series)
	}
	return itemDTO{}
}

func toSeriesDTO(series application.Series) itemDTO {
	dto := detailsDTO(series.Details, series.Completion)
	dto.ID = series.ID
	dto.AnchorDate = formatDate(series.AnchorDate)
	dto.AnchorEndDate = formatDate(series.AnchorEndDate)
	dto.IsBacklog = series.IsBacklog
	dto.VisibleToDependents = series.VisibleToDependents
	dto.CreatedAt = formatTimestamp(series.CreatedAt)
	dto.UpdatedAt = formatTimestamp(series.UpdatedAt)
	if series.IsRecurring() {
		interval, days := recurrence.Params(series.Recurrence)
		rule := &recurrenceDTO{Kind: string(series.Recurrence.Kind()), IntervalDays: interval}
		for _, day := range days {
			rule.Days = append(rule.Days, strings.ToLower(day.String()[:3]))
		}
		dto.Recurrence = rule
	}
	return dto
}

func toOverrideDTO(override application.OverrideOccurrence) itemDTO {
	dto := detailsDTO(override.Details, override.Completion)
	dto.ID = override.ID
	dto.SeriesID = override.SeriesID
	dto.OriginalDate = formatDate(override.OriginalDate)
	dto.AnchorDate = formatDate(override.Date)
	dto.AnchorEndDate = formatDate(override.EndDate)
	dto.VisibleToDependents = override.VisibleToDependents
	dto.CreatedAt = formatTimestamp(override.CreatedAt)
	dto.UpdatedAt = formatTimestamp(override.UpdatedAt)
	return dto
}

func detailsDTO(details application.Details, completion application.Completion) itemDTO {
	dto := itemDTO{
		Title:          details.Title,
		Description:    details.Description,
		Location:       details.Location,
		Category:       details.Category,
		Priority:       string(details.Priority),
		Kind:           string(details.Kind),
		DueTime:        formatTimeOfDay(details.DueTime),
		EndTime:        formatTimeOfDay(details.EndTime),
		AssigneeIDs:    append([]string{}, details.AssigneeIDs...),
		IsCompleted:    completion.IsCompleted,
		CompletionNote: completion.Note,
	}
	if offsets, ok := details.ReminderOffsets.Get(); ok {
		dto.ReminderOffsets = append([]int{}, offsets...)
	}
	if completion.CompletedAt != nil {
		dto.CompletedAt = formatTimestamp(*completion.CompletedAt)
	}
	return dto
}

func formatDate(d recurrence.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func formatTimeOfDay(t *recurrence.TimeOfDay) string {
	if t == nil {
		return ""
	}
	return t.String()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// decodeOptional decodes a JSON body that may be empty.
func decodeOptional(body io.Reader, dst any) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
