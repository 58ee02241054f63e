package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
	"github.com/mihaimyh/subtrack/storage/memory"
)

const (
	testAccountID = "user123"
	testHeader    = "X-Account-ID"
)

// brokenStore fails every read and ping
type brokenStore struct {
	*memory.Storage
}

func (brokenStore) GetAccount(context.Context, string) (*entitlement.Account, error) {
	return nil, errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

func (brokenStore) Ping(context.Context) error {
	return errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

func newTestHandler(t *testing.T, store entitlement.Store) *Handler {
	t.Helper()
	h, err := NewHandler(Config{
		Store:        store,
		GetAccountID: FromHeader(testHeader),
	})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return h
}

func get(h http.HandlerFunc, accountID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/entitlement", nil)
	if accountID != "" {
		req.Header.Set(testHeader, accountID)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandler_GetEntitlement_Granted(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newTestHandler(t, memory.New(entitlement.Account{
		ID: testAccountID, HasLifetimeAccess: true, UpdatedAt: updated,
	}))

	rec := get(h.GetEntitlement, testAccountID)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var resp EntitlementResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.AccountID != testAccountID || !resp.HasLifetimeAccess {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.UpdatedAt == nil || !resp.UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", resp.UpdatedAt, updated)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("entitlement responses must not be cached")
	}
}

func TestHandler_GetEntitlement_NotGranted(t *testing.T) {
	h := newTestHandler(t, memory.New(entitlement.Account{ID: testAccountID}))

	rec := get(h.GetEntitlement, testAccountID)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"has_lifetime_access":false`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandler_GetEntitlement_Errors(t *testing.T) {
	tests := []struct {
		name      string
		store     entitlement.Store
		accountID string
		want      int
	}{
		{"missing id", memory.New(), "", http.StatusUnauthorized},
		{"id too long", memory.New(), strings.Repeat("x", maxAccountIDLen+1), http.StatusBadRequest},
		{"unknown account", memory.New(), "ghost", http.StatusNotFound},
		{"store failure", brokenStore{memory.New()}, testAccountID, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(newTestHandler(t, tt.store).GetEntitlement, tt.accountID)
			if rec.Code != tt.want {
				t.Fatalf("Expected status %d, got %d", tt.want, rec.Code)
			}
			if strings.Contains(rec.Body.String(), "10.0.0.5") {
				t.Errorf("internal cause leaked: %s", rec.Body.String())
			}
		})
	}
}

func TestHandler_CustomOnError(t *testing.T) {
	var got error
	h, err := NewHandler(Config{
		Store:        memory.New(),
		GetAccountID: FromHeader(testHeader),
		OnError: func(w http.ResponseWriter, _ *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusTeapot)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := get(h.GetEntitlement, "")
	if rec.Code != http.StatusTeapot || got == nil {
		t.Fatalf("custom OnError not used: code=%d err=%v", rec.Code, got)
	}
}

func TestHandler_Health(t *testing.T) {
	rec := get(newTestHandler(t, memory.New()).Health, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	rec = get(newTestHandler(t, brokenStore{memory.New()}).Health, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), statusUnavailable) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestNewHandler_Validation(t *testing.T) {
	if _, err := NewHandler(Config{GetAccountID: FromHeader(testHeader)}); err == nil {
		t.Error("expected error without store")
	}
	if _, err := NewHandler(Config{Store: memory.New()}); err == nil {
		t.Error("expected error without GetAccountID")
	}
}

type ctxKey struct{}

func TestExtractors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxKey{}, "from-ctx"))
	if got := FromContext(ctxKey{})(req); got != "from-ctx" {
		t.Errorf("FromContext = %q", got)
	}

	mux := http.NewServeMux()
	var seen string
	mux.HandleFunc("GET /accounts/{id}/entitlement", func(_ http.ResponseWriter, r *http.Request) {
		seen = FromPathValue("id")(r)
	})
	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/accounts/u_9/entitlement", nil))
	if seen != "u_9" {
		t.Errorf("FromPathValue = %q", seen)
	}
}
