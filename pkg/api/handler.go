package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

const (
	statusOK          = "ok"
	statusUnavailable = "unavailable"
	maxAccountIDLen   = 255
)

var (
	errAccountIDMissing = errors.New("account ID not found")
	errAccountIDInvalid = errors.New("invalid account ID format")
	errAccountNotFound  = errors.New("account not found")
	errInternal         = errors.New("internal error")
)

// Handler provides HTTP endpoints for entitlement inspection
type Handler struct {
	config Config
}

// GetEntitlement returns the lifetime access flag of the requested account
func (h *Handler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	accountID := h.config.GetAccountID(r)
	if accountID == "" {
		h.handleError(w, r, errAccountIDMissing, http.StatusUnauthorized)
		return
	}
	if len(accountID) > maxAccountIDLen {
		h.handleError(w, r, errAccountIDInvalid, http.StatusBadRequest)
		return
	}

	acct, err := h.config.Store.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, entitlement.ErrAccountNotFound) {
			h.handleError(w, r, errAccountNotFound, http.StatusNotFound)
			return
		}
		h.config.Logger.Error("Entitlement lookup failed",
			entitlement.Field{Key: "account_id", Value: accountID},
			entitlement.Field{Key: "error", Value: err},
		)
		h.handleError(w, r, errInternal, http.StatusInternalServerError)
		return
	}

	resp := EntitlementResponse{
		AccountID:         acct.ID,
		HasLifetimeAccess: acct.HasLifetimeAccess,
	}
	if !acct.UpdatedAt.IsZero() {
		t := acct.UpdatedAt.UTC()
		resp.UpdatedAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health reports whether the account store is reachable
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.config.Store.Ping(r.Context()); err != nil {
		h.config.Logger.Warn("Health check failed", entitlement.Field{Key: "error", Value: err})
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: statusUnavailable})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: statusOK})
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	writeJSON(w, statusCode, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
