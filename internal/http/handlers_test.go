package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ownlytics/mcptix-sub000/internal/application"
	"github.com/ownlytics/mcptix-sub000/internal/ordering"
	"github.com/ownlytics/mcptix-sub000/internal/persistence"
	"github.com/ownlytics/mcptix-sub000/internal/testfixtures"
)

type testServer struct {
	handler http.Handler
	harness *testfixtures.SQLiteHarness
}

func newTestServer(t *testing.T) testServer {
	t.Helper()

	harness := testfixtures.NewSQLiteHarness(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := application.NewTicketServiceWithLogger(harness.Tickets, logger)

	return testServer{
		handler: NewRouter(RouterConfig{
			Tickets: NewTicketHandler(service, logger),
			Health:  harness.Storage,
			Logger:  logger,
		}),
		harness: harness,
	}
}

func (s testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestTicketHandler_Create(t *testing.T) {
	t.Parallel()

	t.Run("returns the created ticket with derived fields", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t)

		rec := srv.do(t, http.MethodPost, "/api/tickets", map[string]any{
			"title":      "Wire router",
			"priority":   "high",
			"complexity": map[string]any{"files_touched": 4},
			"comments":   []map[string]any{{"content": "started", "author": "agent"}},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		resp := decodeBody[ticketResponse](t, rec)
		assert.NotEmpty(t, resp.Ticket.ID)
		assert.Equal(t, "/api/tickets/"+resp.Ticket.ID, rec.Header().Get("Location"))
		assert.Equal(t, "high", resp.Ticket.Priority)
		assert.Equal(t, "backlog", resp.Ticket.Status)
		assert.Equal(t, ordering.DefaultPosition, resp.Ticket.Position)
		assert.Equal(t, 4, resp.Ticket.Complexity.FilesTouched)
		assert.Greater(t, resp.Ticket.Complexity.Score, 0.0)
		require.Len(t, resp.Ticket.Comments, 1)
		assert.Equal(t, "agent", resp.Ticket.Comments[0].Author)
	})

	t.Run("maps validation failures to 400 with field details", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t)

		rec := srv.do(t, http.MethodPost, "/api/tickets", map[string]any{"priority": "urgent"})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		resp := decodeBody[errorResponse](t, rec)
		assert.Equal(t, codeValidation, resp.Error.Code)
		assert.Contains(t, resp.Error.Details, "title")
		assert.Contains(t, resp.Error.Details, "priority")
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t)

		for _, body := range []string{"", "{", `{"title":"x","unknown":1}`} {
			rec := srv.do(t, http.MethodPost, "/api/tickets", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
			assert.Equal(t, codeBadRequest, decodeBody[errorResponse](t, rec).Error.Code)
		}
	})
}

func TestTicketHandler_ReadUpdateDelete(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	id := testfixtures.NewTicketFixture(
		testfixtures.WithTitle("Original"),
		testfixtures.WithComplexity(persistence.ComplexityInput{FilesTouched: testfixtures.Metric(2)}),
	).Insert(t, srv.harness.Tickets)

	rec := srv.do(t, http.MethodGet, "/api/tickets/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Original", decodeBody[ticketResponse](t, rec).Ticket.Title)

	rec = srv.do(t, http.MethodPut, "/api/tickets/"+id, map[string]any{
		"title":      "Renamed",
		"status":     "in-progress",
		"complexity": map[string]any{"dependencies": 1},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[ticketResponse](t, rec).Ticket
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "in-progress", updated.Status)
	assert.Equal(t, 2, updated.Complexity.FilesTouched)
	assert.Equal(t, 1, updated.Complexity.Dependencies)

	rec = srv.do(t, http.MethodDelete, "/api/tickets/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec = srv.do(t, method, "/api/tickets/"+id, nil)
		require.Equal(t, http.StatusNotFound, rec.Code, method)
		assert.Equal(t, codeNotFound, decodeBody[errorResponse](t, rec).Error.Code)
	}

	rec = srv.do(t, http.MethodPut, "/api/tickets/"+id, map[string]any{"title": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketHandler_List(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	testfixtures.NewTicketFixture(testfixtures.WithTitle("Fix login"), testfixtures.WithPriority(persistence.PriorityHigh)).Insert(t, srv.harness.Tickets)
	testfixtures.NewTicketFixture(testfixtures.WithTitle("Write docs"), testfixtures.WithPriority(persistence.PriorityLow)).Insert(t, srv.harness.Tickets)
	testfixtures.NewTicketFixture(testfixtures.WithTitle("Fix logout"), testfixtures.WithStatus(persistence.StatusCompleted)).Insert(t, srv.harness.Tickets)

	t.Run("filters by query parameters", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/tickets?search=Fix&status=backlog", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		tickets := decodeBody[listTicketsResponse](t, rec).Tickets
		require.Len(t, tickets, 1)
		assert.Equal(t, "Fix login", tickets[0].Title)
	})

	t.Run("sorts and pages", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/tickets?sort=title&order=asc&limit=2&offset=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		tickets := decodeBody[listTicketsResponse](t, rec).Tickets
		require.Len(t, tickets, 2)
		assert.Equal(t, "Fix logout", tickets[0].Title)
		assert.Equal(t, "Write docs", tickets[1].Title)
	})

	t.Run("returns an empty array rather than null", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/tickets?status=in-review", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"tickets":[]}`, rec.Body.String())
	})

	t.Run("rejects malformed paging and unknown sort fields", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/tickets?limit=ten&offset=x", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		details := decodeBody[errorResponse](t, rec).Error.Details
		assert.Contains(t, details, "limit")
		assert.Contains(t, details, "offset")

		rec = srv.do(t, http.MethodGet, "/api/tickets?sort=rank", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody[errorResponse](t, rec).Error.Details, "sort")
	})
}

func TestTicketHandler_AddComment(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	id := testfixtures.NewTicketFixture().Insert(t, srv.harness.Tickets)

	rec := srv.do(t, http.MethodPost, "/api/tickets/"+id+"/comments", map[string]any{"content": "looks good"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	comment := decodeBody[commentResponse](t, rec).Comment
	assert.Equal(t, id, comment.TicketID)
	assert.Equal(t, "developer", comment.Author)

	rec = srv.do(t, http.MethodPost, "/api/tickets/missing/comments", map[string]any{"content": "lost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/tickets/"+id+"/comments", map[string]any{"content": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTicketHandler_Ordering(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	ids := testfixtures.SeedColumn(t, srv.harness.Tickets, persistence.StatusUpNext, "first", "second", "third")

	rec := srv.do(t, http.MethodGet, "/api/tickets/next?status=up-next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	next := decodeBody[ticketResponse](t, rec).Ticket
	assert.Equal(t, ids[0], next.ID)

	rec = srv.do(t, http.MethodGet, "/api/tickets/next", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/tickets/"+ids[2]+"/position", map[string]any{"position": next.Position + ordering.Step})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/tickets/next?status=up-next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ids[2], decodeBody[ticketResponse](t, rec).Ticket.ID)

	rec = srv.do(t, http.MethodPut, "/api/tickets/"+ids[2]+"/position", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/tickets/"+ids[1]+"/move", map[string]any{"status": "in-review"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decodeBody[ticketResponse](t, rec).Ticket
	assert.Equal(t, "in-review", moved.Status)
	assert.Equal(t, ordering.DefaultPosition, moved.Position)

	rec = srv.do(t, http.MethodPut, "/api/tickets/"+ids[1]+"/move", map[string]any{"status": "archive"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/columns/up-next/renormalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, renormalizeResponse{Status: "up-next", Tickets: 2}, decodeBody[renormalizeResponse](t, rec))

	rec = srv.do(t, http.MethodPost, "/api/columns/archive/renormalize", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		pinger Pinger
		status int
		body   string
	}{
		{name: "no pinger", status: http.StatusOK, body: `{"status":"ok"}`},
		{name: "healthy store", pinger: stubPinger{}, status: http.StatusOK, body: `{"status":"ok"}`},
		{name: "unreachable store", pinger: stubPinger{err: errors.New("closed")}, status: http.StatusServiceUnavailable, body: `{"status":"unavailable"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router := NewRouter(RouterConfig{Health: tc.pinger, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}
}

func TestTicketHandler_NilServiceFailsClosed(t *testing.T) {
	t.Parallel()

	var h *TicketHandler
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/tickets", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
