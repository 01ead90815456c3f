package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/llm"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/memory"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/metrics"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/server"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/workflow"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	store := memory.NewStore(0)
	engine := workflow.New(llm.NewStatic(), nil, nil,
		workflow.WithMemory(store), workflow.WithMetrics(m))
	srv := httptest.NewServer(server.New(engine, store, reg, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func postTicket(t *testing.T, url, body string) (*http.Response, ticket.RunState) {
	t.Helper()
	resp, err := http.Post(url+"/v1/tickets", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var state ticket.RunState
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	}
	return resp, state
}

func TestPostTicket(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, state := postTicket(t, srv.URL, `{"subject":"API not working","description":"Getting 500 errors"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.True(t, state.Approved())
	assert.False(t, state.Escalated)
	assert.Equal(t, 1, state.Attempt)
	assert.Equal(t, ticket.Technical, state.Classification.Category)
}

func TestPostTicketEmptyEscalates(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, state := postTicket(t, srv.URL, `{"subject":" ","description":""}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, state.Escalated)
	assert.Equal(t, workflow.ReasonEmptyTicket, state.Reason)
}

func TestPostTicketNonObjectIsCoerced(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, state := postTicket(t, srv.URL, `"help me"`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ticket.InvalidSubject, state.Ticket.Subject)
	assert.Equal(t, "help me", state.Ticket.Description)
}

func TestPostTicketRejectsMalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := postTicket(t, srv.URL, `{"subject":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostTicketRejectsOversizedBody(t *testing.T) {
	h := server.New(&recordingProcessor{}, nil, nil, nil).Handler()

	big := `{"subject":"x","description":"` + strings.Repeat("a", 2<<20) + `"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tickets", strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHistory(t *testing.T) {
	srv, _ := newTestServer(t)

	_, state := postTicket(t, srv.URL, `{"subject":"Refund","description":"Charged twice for my invoice"}`)

	resp, err := http.Get(srv.URL + "/v1/runs/" + state.ID + "/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var conv memory.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
	assert.Equal(t, state.ID, conv.ID)
	require.NotEmpty(t, conv.History)
	assert.Equal(t, memory.RoleCustomer, conv.History[0].Role)

	missing, err := http.Get(srv.URL + "/v1/runs/nope/history")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	postTicket(t, srv.URL, `{"subject":"API not working","description":"Getting 500 errors"}`)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ticket_agent_runs_total{outcome="approved"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/tickets")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type recordingProcessor struct {
	ctxErr error
}

func (p *recordingProcessor) ProcessTicket(ctx context.Context, input any) ticket.RunState {
	p.ctxErr = ctx.Err()
	return ticket.RunState{ID: "fixed", Ticket: ticket.Normalize(input), Escalated: true}
}

func TestHandlerWithoutHistoryOrMetrics(t *testing.T) {
	proc := &recordingProcessor{}
	h := server.New(proc, nil, nil, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tickets", strings.NewReader(`{"subject":"a","description":"b"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, proc.ctxErr)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/fixed/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
