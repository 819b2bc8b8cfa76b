package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/tallyhq/tally/internal/auth"
	"github.com/tallyhq/tally/internal/service"
	"github.com/tallyhq/tally/internal/storage/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	srv := New(
		service.NewLedgerService(store, 0, nil),
		service.NewAuthService(store, jwtManager),
	)
	ts := httptest.NewServer(srv.Router(jwtManager))
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	fields := make(map[string]json.RawMessage)
	if resp.StatusCode != http.StatusNoContent {
		// Error bodies and object responses both decode into a field map;
		// array responses leave it empty.
		_ = json.NewDecoder(resp.Body).Decode(&fields)
	}
	return resp, fields
}

func registerUser(t *testing.T, base, email, name string) (userID, token string) {
	t.Helper()
	resp, fields := doJSON(t, http.MethodPost, base+"/api/v1/auth/register", "", map[string]string{
		"email": email, "display_name": name, "password": "long enough",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Register returned %d", resp.StatusCode)
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(fields["user"], &user); err != nil {
		t.Fatalf("Failed to decode user: %v", err)
	}
	if err := json.Unmarshal(fields["token"], &token); err != nil {
		t.Fatalf("Failed to decode token: %v", err)
	}
	return user.ID, token
}

func TestAuthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	_, token := registerUser(t, ts.URL, "alice@example.com", "Alice")
	if token == "" {
		t.Fatal("Expected a session token")
	}

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "long enough",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Login returned %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Bad login returned %d, want 401", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/register", "", map[string]string{
		"email": "alice@example.com", "display_name": "Alice 2", "password": "long enough",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Duplicate register returned %d, want 409", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/balances", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("No token returned %d, want 401", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/balances", "garbage", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Bad token returned %d, want 401", resp.StatusCode)
	}
}

func TestExpenseFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	aliceID, aliceToken := registerUser(t, ts.URL, "alice@example.com", "Alice")
	bobID, bobToken := registerUser(t, ts.URL, "bob@example.com", "Bob")

	resp, fields := doJSON(t, http.MethodPost, ts.URL+"/api/v1/groups", aliceToken, map[string]string{
		"name": "Roommates",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("CreateGroup returned %d", resp.StatusCode)
	}
	var groupID, inviteCode string
	json.Unmarshal(fields["id"], &groupID)
	json.Unmarshal(fields["invite_code"], &inviteCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/groups/join", bobToken, map[string]string{
		"invite_code": inviteCode,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("JoinGroup returned %d", resp.StatusCode)
	}

	resp, fields = doJSON(t, http.MethodPost, ts.URL+"/api/v1/expenses", aliceToken, map[string]any{
		"group_id":    groupID,
		"description": "Groceries",
		"amount":      5000,
		"split_type":  "equal",
		"portions": []map[string]string{
			{"user_id": aliceID}, {"user_id": bobID},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("AddExpense returned %d: %v", resp.StatusCode, fields)
	}

	resp, fields = doJSON(t, http.MethodGet, ts.URL+"/api/v1/balances", bobToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GetBalances returned %d", resp.StatusCode)
	}
	var net int64
	json.Unmarshal(fields["net_balance"], &net)
	if net != -2500 {
		t.Errorf("bob net over HTTP = %d, want -2500", net)
	}

	// Validation errors map to 400, missing resources to 404.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/expenses", aliceToken, map[string]any{
		"group_id": groupID, "amount": -5, "split_type": "equal",
		"portions": []map[string]string{{"user_id": aliceID}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Invalid expense returned %d, want 400", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/v1/expenses/nonexistent", aliceToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Missing expense returned %d, want 404", resp.StatusCode)
	}
}
