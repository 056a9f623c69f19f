package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marcus/tally/internal/models"
	"github.com/marcus/tally/internal/serverdb"
)

type testHarness struct {
	t       *testing.T
	Store   *serverdb.ServerDB
	BaseURL string
	client  *http.Client
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	store, err := serverdb.Open(":memory:")
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	srv, err := NewServer(Config{ListenAddr: ":0"}, store)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		httpSrv.Close()
		store.Close()
	})
	return &testHarness{t: t, Store: store, BaseURL: httpSrv.URL, client: &http.Client{}}
}

// createUser returns a user id and a valid API key for it.
func (h *testHarness) createUser(email string) (string, string) {
	h.t.Helper()
	u, err := h.Store.CreateUser(email)
	if err != nil {
		h.t.Fatalf("create user: %v", err)
	}
	key, _, err := h.Store.GenerateAPIKey(u.ID, "test", nil)
	if err != nil {
		h.t.Fatalf("generate key: %v", err)
	}
	return u.ID, key
}

func (h *testHarness) do(method, path, token string, body any) (*http.Response, []byte) {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.BaseURL+path, r)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHarness(t)
	resp, body := h.do("GET", "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
}

func TestRowsRequireAuth(t *testing.T) {
	h := newTestHarness(t)
	resp, _ := h.do("GET", "/rest/v1/transactions", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp, _ = h.do("GET", "/rest/v1/transactions", "tally_live_bogus", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d", resp.StatusCode)
	}
}

func TestCurrentUser(t *testing.T) {
	h := newTestHarness(t)
	userID, key := h.createUser("ana@example.com")

	resp, body := h.do("GET", "/auth/v1/user", key, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var got struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != userID || got.Email != "ana@example.com" {
		t.Errorf("got %+v, want id %s", got, userID)
	}

	resp, _ = h.do("GET", "/auth/v1/user", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", resp.StatusCode)
	}
}

func TestInsertSelectUpdateDelete(t *testing.T) {
	h := newTestHarness(t)
	uid, key := h.createUser("alice@test.com")

	resp, body := h.do("POST", "/rest/v1/transactions", key, map[string]any{
		"id":       "temp_1_x",
		"type":     "income",
		"amount":   "3000.00",
		"category": "salary",
		"date":     "2026-03-01T00:00:00Z",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("insert: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var inserted models.Row
	if err := json.Unmarshal(body, &inserted); err != nil {
		t.Fatalf("decode insert: %v", err)
	}
	id := inserted.ID()
	if id == "" || models.IsTempID(id) {
		t.Fatalf("expected permanent id, got %q", id)
	}
	if inserted["user_id"] != uid {
		t.Fatalf("expected user_id %s, got %v", uid, inserted["user_id"])
	}

	resp, body = h.do("PATCH", "/rest/v1/transactions?id=eq."+id, key, map[string]any{"category": "bonus"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("update: expected 204, got %d: %s", resp.StatusCode, body)
	}

	resp, body = h.do("GET", "/rest/v1/transactions?user_id=eq."+uid, key, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select: expected 200, got %d", resp.StatusCode)
	}
	var rows []models.Row
	json.Unmarshal(body, &rows)
	if len(rows) != 1 || rows[0]["category"] != "bonus" {
		t.Fatalf("unexpected rows: %s", body)
	}

	resp, _ = h.do("DELETE", "/rest/v1/transactions?id=eq."+id, key, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	_, body = h.do("GET", "/rest/v1/transactions", key, nil)
	json.Unmarshal(body, &rows)
	if len(rows) != 0 {
		t.Fatalf("expected no rows after delete, got %s", body)
	}
}

func TestRowLevelOwnership(t *testing.T) {
	h := newTestHarness(t)
	aliceID, aliceKey := h.createUser("alice@test.com")
	_, bobKey := h.createUser("bob@test.com")

	_, body := h.do("POST", "/rest/v1/reminders", aliceKey, map[string]any{
		"title":    "rent",
		"amount":   "1200",
		"due_date": "2026-04-05T00:00:00Z",
	})
	var inserted models.Row
	json.Unmarshal(body, &inserted)

	// Bob filtering on Alice's id sees nothing.
	_, body = h.do("GET", "/rest/v1/reminders?user_id=eq."+aliceID, bobKey, nil)
	var rows []models.Row
	json.Unmarshal(body, &rows)
	if len(rows) != 0 {
		t.Fatalf("bob saw alice's rows: %s", body)
	}

	resp, _ := h.do("PATCH", "/rest/v1/reminders?id=eq."+inserted.ID(), bobKey, map[string]any{"is_paid": true})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign update, got %d", resp.StatusCode)
	}
}

func TestBadRequests(t *testing.T) {
	h := newTestHarness(t)
	_, key := h.createUser("carol@test.com")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown table", "GET", "/rest/v1/users", nil, http.StatusNotFound},
		{"patch without id", "PATCH", "/rest/v1/transactions", map[string]any{"category": "x"}, http.StatusBadRequest},
		{"delete bad filter", "DELETE", "/rest/v1/transactions?id=neq.1", nil, http.StatusBadRequest},
		{"unknown column", "POST", "/rest/v1/transactions", map[string]any{"bogus": 1}, http.StatusBadRequest},
		{"array body", "POST", "/rest/v1/transactions", []any{1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(tt.method, tt.path, key, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, resp.StatusCode, body)
			}
		})
	}
}

func TestMetricsCountRows(t *testing.T) {
	h := newTestHarness(t)
	_, key := h.createUser("dave@test.com")
	h.do("POST", "/rest/v1/investments", key, map[string]any{
		"name":            "tesouro",
		"valor_investido": "500",
		"data_planejada":  "2026-06-01T00:00:00Z",
	})
	_, body := h.do("GET", "/metricz", "", nil)
	var snap MetricsSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if snap.RowsWritten != 1 || snap.Requests < 2 {
		t.Fatalf("unexpected metrics: %+v", snap)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter()
	if !rl.Allow("k", 2) || !rl.Allow("k", 2) {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("k", 2) {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("k", 0) {
		t.Fatal("zero limit disables limiting")
	}
}
