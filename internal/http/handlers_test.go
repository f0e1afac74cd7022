package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/item-scheduler/internal/ical"
	"github.com/example/item-scheduler/internal/testfixtures"
)

func newTestRouter(t *testing.T, db pinger) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := testfixtures.NewServiceFactory()
	service := factory.NewItemService(t, testfixtures.ItemServiceDeps{Logger: logger})
	exporter := ical.NewExporter(testfixtures.JST, ical.WithClock(factory.Clock.NowFunc()))

	return NewRouter(RouterConfig{
		Items:      NewItemHandler(service, logger),
		Agenda:     NewAgendaHandler(service, exporter, logger),
		Health:     NewHealthHandler(db, logger),
		Middleware: []func(http.Handler) http.Handler{RequestLogger(logger), Recoverer(logger)},
	})
}

func serve(t *testing.T, handler http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const weeklyItem = `{
	"title": "Standup",
	"anchor_date": "2024-01-01",
	"due_time": "09:30",
	"recurrence": {"kind": "weekly"},
	"reminder_offsets": [15]
}`

func TestItemHandlers(t *testing.T) {
	t.Parallel()

	t.Run("create then fetch with etag revalidation", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		created := serve(t, router, http.MethodPost, "/items", weeklyItem)
		require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
		item := decodeBody[itemDTO](t, created)
		assert.Equal(t, "/items/"+item.ID, created.Header().Get("Location"))
		assert.Equal(t, "Standup", item.Title)
		assert.Equal(t, "medium", item.Priority)
		assert.Equal(t, "event", item.Kind)
		require.NotNil(t, item.Recurrence)
		assert.Equal(t, "weekly", item.Recurrence.Kind)
		assert.Equal(t, []int{15}, item.ReminderOffsets)

		fetched := serve(t, router, http.MethodGet, "/items/"+item.ID, "")
		require.Equal(t, http.StatusOK, fetched.Code)
		tag := fetched.Header().Get("ETag")
		require.NotEmpty(t, tag)
		assert.Equal(t, "09:30", decodeBody[itemDTO](t, fetched).DueTime)

		notModified := serve(t, router, http.MethodGet, "/items/"+item.ID, "", "If-None-Match", tag)
		assert.Equal(t, http.StatusNotModified, notModified.Code)
		assert.Empty(t, notModified.Body.String())

		stale := serve(t, router, http.MethodGet, "/items/"+item.ID, "", "If-None-Match", `"stale"`)
		assert.Equal(t, http.StatusOK, stale.Code)
	})

	t.Run("reject malformed and invalid bodies", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		malformed := serve(t, router, http.MethodPost, "/items", "{")
		assert.Equal(t, http.StatusBadRequest, malformed.Code)

		invalid := serve(t, router, http.MethodPost, "/items", `{"title": " ", "anchor_date": "2024-13-01", "recurrence": {"kind": "hourly"}}`)
		require.Equal(t, http.StatusUnprocessableEntity, invalid.Code)
		body := decodeBody[errorResponse](t, invalid)
		assert.Equal(t, "VALIDATION_FAILED", body.ErrorCode)
		assert.Contains(t, body.Errors, "anchor_date")
		assert.Contains(t, body.Errors, "recurrence.kind")

		untitled := serve(t, router, http.MethodPost, "/items", `{"title": ""}`)
		require.Equal(t, http.StatusUnprocessableEntity, untitled.Code)
		assert.Contains(t, decodeBody[errorResponse](t, untitled).Errors, "title")
	})

	t.Run("missing items map to 404", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		rec := serve(t, router, http.MethodGet, "/items/missing", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decodeBody[errorResponse](t, rec).ErrorCode)
	})

	t.Run("occurrence operations on one-off items are out of scope", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		created := serve(t, router, http.MethodPost, "/items", `{"title": "Dentist", "anchor_date": "2024-01-05"}`)
		require.Equal(t, http.StatusCreated, created.Code)
		id := decodeBody[itemDTO](t, created).ID

		rec := serve(t, router, http.MethodDelete, "/items/"+id+"/occurrences/2024-01-05", "")
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "INVALID_SCOPE", decodeBody[errorResponse](t, rec).ErrorCode)
	})

	t.Run("edit and delete single occurrences", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		created := serve(t, router, http.MethodPost, "/items", weeklyItem)
		require.Equal(t, http.StatusCreated, created.Code)
		id := decodeBody[itemDTO](t, created).ID

		edited := serve(t, router, http.MethodPut, "/items/"+id+"/occurrences/2024-01-08",
			`{"title": "Standup (moved)", "new_date": "2024-01-09", "due_time": "10:00"}`)
		require.Equal(t, http.StatusOK, edited.Code, edited.Body.String())
		override := decodeBody[itemDTO](t, edited)
		assert.Equal(t, id, override.SeriesID)
		assert.Equal(t, "2024-01-08", override.OriginalDate)
		assert.Equal(t, "2024-01-09", override.AnchorDate)

		deleted := serve(t, router, http.MethodDelete, "/items/"+id+"/occurrences/2024-01-15", "")
		require.Equal(t, http.StatusNoContent, deleted.Code, deleted.Body.String())

		rec := serve(t, router, http.MethodGet, "/agenda?from=2024-01-01&to=2024-01-21", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		agenda := decodeBody[agendaResponse](t, rec)

		var dates, sources []string
		for _, entry := range agenda.Entries {
			dates = append(dates, entry.Date)
			sources = append(sources, entry.Source)
		}
		assert.Equal(t, []string{"2024-01-01", "2024-01-09"}, dates)
		assert.Equal(t, []string{"series", "override"}, sources)
		assert.True(t, agenda.Entries[0].IsAnchor)
		assert.Equal(t, "2024-01-08", agenda.Entries[1].OriginalDate)

		notAnOccurrence := serve(t, router, http.MethodDelete, "/items/"+id+"/occurrences/2024-01-03", "")
		assert.Equal(t, http.StatusUnprocessableEntity, notAnOccurrence.Code)
	})

	t.Run("overrides keep the series visibility", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		private := strings.Replace(weeklyItem, `"title": "Standup",`, `"title": "Standup", "visible_to_dependents": false,`, 1)
		created := serve(t, router, http.MethodPost, "/items", private)
		require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
		series := decodeBody[itemDTO](t, created)
		require.False(t, series.VisibleToDependents)

		edited := serve(t, router, http.MethodPut, "/items/"+series.ID+"/occurrences/2024-01-08", `{"title": "Standup (moved)"}`)
		require.Equal(t, http.StatusOK, edited.Code, edited.Body.String())
		override := decodeBody[itemDTO](t, edited)
		assert.False(t, override.VisibleToDependents)

		fetched := serve(t, router, http.MethodGet, "/items/"+override.ID, "")
		require.Equal(t, http.StatusOK, fetched.Code)
		assert.False(t, decodeBody[itemDTO](t, fetched).VisibleToDependents)
	})

	t.Run("complete and uncomplete", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		created := serve(t, router, http.MethodPost, "/items", `{"title": "Pay rent", "kind": "reminder", "anchor_date": "2024-01-31"}`)
		require.Equal(t, http.StatusCreated, created.Code)
		id := decodeBody[itemDTO](t, created).ID

		completed := serve(t, router, http.MethodPost, "/items/"+id+"/complete", `{"note": "paid"}`)
		require.Equal(t, http.StatusOK, completed.Code, completed.Body.String())
		body := decodeBody[itemDTO](t, completed)
		assert.True(t, body.IsCompleted)
		assert.Equal(t, "paid", body.CompletionNote)

		reopened := serve(t, router, http.MethodDelete, "/items/"+id+"/complete", "")
		require.Equal(t, http.StatusOK, reopened.Code)
		assert.False(t, decodeBody[itemDTO](t, reopened).IsCompleted)

		again := serve(t, router, http.MethodPost, "/items/"+id+"/complete", "")
		require.Equal(t, http.StatusOK, again.Code)
		assert.True(t, decodeBody[itemDTO](t, again).IsCompleted)
	})

	t.Run("delete removes the item", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		created := serve(t, router, http.MethodPost, "/items", weeklyItem)
		require.Equal(t, http.StatusCreated, created.Code)
		id := decodeBody[itemDTO](t, created).ID

		assert.Equal(t, http.StatusNoContent, serve(t, router, http.MethodDelete, "/items/"+id, "").Code)
		assert.Equal(t, http.StatusNotFound, serve(t, router, http.MethodGet, "/items/"+id, "").Code)
	})

	t.Run("unsupported methods are rejected by the router", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		rec := serve(t, router, http.MethodPatch, "/items/abc", "{}")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestAgendaHandlers(t *testing.T) {
	t.Parallel()

	t.Run("validate range parameters", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		tests := []struct {
			name  string
			query string
			field string
		}{
			{name: "reversed", query: "from=2024-01-10&to=2024-01-01", field: "to"},
			{name: "malformed date", query: "from=01/01/2024", field: "from"},
			{name: "bad flag", query: "include_completed=maybe", field: "include_completed"},
		}

		for _, tc := range tests {
			rec := serve(t, router, http.MethodGet, "/agenda?"+tc.query, "")
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, tc.name)
			assert.Contains(t, decodeBody[errorResponse](t, rec).Errors, tc.field, tc.name)
		}
	})

	t.Run("default window starts today", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		rec := serve(t, router, http.MethodGet, "/agenda", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		agenda := decodeBody[agendaResponse](t, rec)
		// The reference clock reads 2024-01-03 00:04 in JST.
		assert.Equal(t, "2024-01-03", agenda.From)
		assert.Equal(t, "2024-01-09", agenda.To)
		assert.Empty(t, agenda.Entries)
	})

	t.Run("agenda entries carry alert instants", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		created := serve(t, router, http.MethodPost, "/items", weeklyItem)
		require.Equal(t, http.StatusCreated, created.Code)

		rec := serve(t, router, http.MethodGet, "/agenda?from=2024-01-08&to=2024-01-08", "")
		require.Equal(t, http.StatusOK, rec.Code)
		agenda := decodeBody[agendaResponse](t, rec)
		require.Len(t, agenda.Entries, 1)
		assert.Equal(t, "09:30", agenda.Entries[0].DueTime)
		assert.Equal(t, []string{"2024-01-08T09:15:00+09:00"}, agenda.Entries[0].Alerts)
	})

	t.Run("calendar export", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		created := serve(t, router, http.MethodPost, "/items", weeklyItem)
		require.Equal(t, http.StatusCreated, created.Code)

		rec := serve(t, router, http.MethodGet, "/calendar.ics", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "calendar.ics")
		body := rec.Body.String()
		assert.Contains(t, body, "BEGIN:VCALENDAR")
		assert.Contains(t, body, "RRULE:FREQ=WEEKLY")
		assert.Contains(t, body, "SUMMARY:Standup")

		bad := serve(t, router, http.MethodGet, "/calendar.ics?from=yesterday", "")
		assert.Equal(t, http.StatusUnprocessableEntity, bad.Code)
	})
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error {
	return f.err
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	healthy := serve(t, newTestRouter(t, fakePinger{}), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, healthy.Code)
	assert.Equal(t, "ok", decodeBody[healthResponse](t, healthy).Status)

	down := serve(t, newTestRouter(t, fakePinger{err: errors.New("disk gone")}), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, down.Code)
	assert.Equal(t, "unavailable", decodeBody[healthResponse](t, down).Status)
}
