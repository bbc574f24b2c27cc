package ticketing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/config"
	"github.com/spec-kit/alertbridge/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ConnectWise {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewConnectWise(config.TicketingConfig{
		BaseURL:      srv.URL,
		Company:      "acme",
		PublicKey:    "pub",
		PrivateKey:   "priv",
		ClientID:     "client",
		Board:        "NOC",
		StatusNew:    "New",
		StatusClosed: "Closed",
	}, zap.NewNop())
}

func TestConnectWiseCreateTicket(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/service/tickets", r.URL.Path)
		assert.Equal(t, "client", r.Header.Get("clientId"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Basic "))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 4711, "summary": "Alert: srv1"}`))
	})

	id, err := c.CreateTicket(context.Background(), domain.TicketFields{Summary: "Alert: srv1", Company: "ACME", Priority: "P1"})
	require.NoError(t, err)
	assert.Equal(t, "4711", id)
	assert.Equal(t, "ServiceTicket", got["recordType"])
	assert.Equal(t, map[string]any{"name": "NOC"}, got["board"])
	assert.Equal(t, map[string]any{"identifier": "ACME"}, got["company"])
	assert.Equal(t, map[string]any{"name": "P1"}, got["priority"])
	assert.NotContains(t, got, "type")
}

func TestConnectWiseFindOpenTicket(t *testing.T) {
	key := domain.DedupKey{EndpointID: "grafana", Company: "ACME", Summary: "Alert: O'Brien", Value: "grafana|ACME|Alert: O'Brien"}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		conds := r.URL.Query().Get("conditions")
		switch r.URL.Path {
		case "/service/tickets":
			assert.Contains(t, conds, "closedFlag=false")
			assert.Contains(t, conds, "summary = 'Alert: O''Brien'")
			assert.Contains(t, conds, "company/identifier = 'ACME'")
			_, _ = w.Write([]byte(`[{"id": 12, "summary": "Alert: O'Brien"}]`))
		case "/service/tickets/12/notes":
			assert.Contains(t, conds, dedupMarker(key.Value))
			_, _ = w.Write([]byte(`[{"text": "desc"}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	rec, err := c.FindOpenTicket(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "12", rec.ID)
	assert.True(t, rec.IsOpen())
}

func TestConnectWiseFindOpenTicketMatchesKeyMarker(t *testing.T) {
	host1 := domain.DedupKey{EndpointID: "grafana", Company: "ACME", Summary: "Alert: disk", Value: "grafana|host-1"}
	host2 := domain.DedupKey{EndpointID: "grafana", Company: "ACME", Summary: "Alert: disk", Value: "grafana|host-2"}
	other := domain.DedupKey{EndpointID: "uptime", Company: "ACME", Summary: "Alert: disk", Value: "uptime|ACME|Alert: disk"}

	// Ticket 7 was created for host-1 and ticket 8 for host-2.
	markers := map[string]string{
		"/service/tickets/7/notes": dedupMarker(host1.Value),
		"/service/tickets/8/notes": dedupMarker(host2.Value),
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/service/tickets" {
			_, _ = w.Write([]byte(`[{"id": 8, "summary": "Alert: disk"}, {"id": 7, "summary": "Alert: disk"}]`))
			return
		}
		if strings.Contains(r.URL.Query().Get("conditions"), markers[r.URL.Path]) {
			_, _ = w.Write([]byte(`[{"text": "marked"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	rec, err := c.FindOpenTicket(context.Background(), host1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "7", rec.ID)

	rec, err = c.FindOpenTicket(context.Background(), host2)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "8", rec.ID)

	rec, err = c.FindOpenTicket(context.Background(), other)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestConnectWiseCreateTicketWritesKeyMarker(t *testing.T) {
	var got cwTicket
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id": 1}`))
	})

	_, err := c.CreateTicket(context.Background(), domain.TicketFields{Summary: "Alert: disk", Description: "Disk full", DedupKey: "grafana|host-1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.InitialDescription, "Disk full\n\n"))
	assert.True(t, strings.HasSuffix(got.InitialDescription, dedupMarker("grafana|host-1")))
	assert.NotEqual(t, dedupMarker("grafana|host-1"), dedupMarker("grafana|host-2"))
}

func TestConnectWiseFindNone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	rec, err := c.FindOpenTicket(context.Background(), domain.DedupKey{Summary: "x"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestConnectWiseErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnprocessableEntity, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"code":"InvalidObject","message":"board is required"}`))
			})
			err := c.AppendNote(context.Background(), "1", "note")
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, !tt.transient, IsPermanent(err))
			if !tt.transient {
				assert.Equal(t, `{"code":"InvalidObject","message":"board is required"}`, err.Error())
			}
		})
	}
}

func TestConnectWiseUnreachableIsTransient(t *testing.T) {
	c := NewConnectWise(config.TicketingConfig{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	err := c.CloseTicket(context.Background(), "1", "")
	assert.True(t, IsTransient(err))
}

func TestConnectWiseCloseAddsResolutionNote(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPatch {
			var patch []map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
			assert.Equal(t, "Closed", patch[0]["value"])
		}
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, c.CloseTicket(context.Background(), "7", "Resource srv1 is back UP"))
	assert.Equal(t, []string{"PATCH /service/tickets/7", "POST /service/tickets/7/notes"}, calls)
}
