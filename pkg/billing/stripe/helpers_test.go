package stripe

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/subtrack/pkg/billing"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
	"github.com/mihaimyh/subtrack/storage/memory"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testAPIKey        = "sk_test_1234567890"
	testAccountID     = "acct_42"
	testEmail         = "a@b.com"
)

func sign(t *testing.T, body, secret string, ts time.Time) *webhook.SignedPayload {
	t.Helper()
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    secret,
		Timestamp: ts,
	})
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	sp := sign(t, body, testWebhookSecret, time.Now())
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(sp.Payload))
	req.Header.Set(SignatureHeader, sp.Header)
	return req
}

// countingApplier records every event the endpoint hands over.
type countingApplier struct {
	mu     sync.Mutex
	events []*entitlement.PaymentEvent
	res    *entitlement.GrantResult
	err    error
}

func (a *countingApplier) Apply(_ context.Context, event *entitlement.PaymentEvent) (*entitlement.GrantResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return a.res, a.err
}

func (a *countingApplier) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

type recordingMetrics struct {
	billing.NoopMetrics
	mu      sync.Mutex
	events  []string
	errors  []string
	grants  []string
	limited int
}

func (m *recordingMetrics) RecordWebhookEvent(_, eventType, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType+":"+status)
}

func (m *recordingMetrics) RecordWebhookError(_, errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, errorType)
}

func (m *recordingMetrics) RecordRateLimited(_ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limited++
}

func (m *recordingMetrics) RecordEntitlementGrant(_, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants = append(m.grants, outcome)
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

// recordingLogger keeps every entry for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, fields []entitlement.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: m})
}

func (l *recordingLogger) Debug(msg string, fields ...entitlement.Field) { l.record("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...entitlement.Field)  { l.record("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...entitlement.Field)  { l.record("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...entitlement.Field) { l.record("error", msg, fields) }

func (l *recordingLogger) at(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

func newApplier(t *testing.T, accounts ...entitlement.Account) (*entitlement.Applier, *memory.Storage) {
	t.Helper()
	store := memory.New(accounts...)
	applier, err := entitlement.NewApplier(store, entitlement.ApplierConfig{})
	if err != nil {
		t.Fatalf("NewApplier: %v", err)
	}
	return applier, store
}

// newStoreProvider wires a provider to a real Applier over a memory store.
func newStoreProvider(t *testing.T, accounts ...entitlement.Account) (*Provider, *memory.Storage) {
	t.Helper()
	applier, store := newApplier(t, accounts...)
	p, err := NewProvider(Config{
		Config: billing.Config{
			Applier:       applier,
			WebhookSecret: testWebhookSecret,
		},
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return p, store
}
