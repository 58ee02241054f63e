package entitlement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	NoopMetrics
	outcomes []string
}

func (m *recordingMetrics) RecordGrant(field MatchField, outcome string) {
	m.outcomes = append(m.outcomes, string(field)+":"+outcome)
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

type recordingLogger struct {
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, fields []Field) {
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: m})
}

func (l *recordingLogger) Debug(msg string, fields ...Field) { l.record("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...Field)  { l.record("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...Field)  { l.record("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...Field) { l.record("error", msg, fields) }

func (l *recordingLogger) at(level string) []logEntry {
	var out []logEntry
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

func checkoutEvent(ref, email string) *PaymentEvent {
	return &PaymentEvent{
		Kind:       KindCheckoutCompleted,
		EventID:    "evt_1",
		SessionID:  "cs_test_1",
		AccountRef: ref,
		Email:      email,
	}
}

func TestNewApplier_RequiresStore(t *testing.T) {
	_, err := NewApplier(nil, ApplierConfig{})
	assert.ErrorIs(t, err, ErrStoreRequired)
}

func TestApplier_ReferenceWinsOverEmail(t *testing.T) {
	store := newTrackingStore(
		&Account{ID: "u_1", Email: "a@x.com"},
		&Account{ID: "u_2", Email: "b@x.com"},
	)
	a, err := NewApplier(store, ApplierConfig{})
	require.NoError(t, err)

	res, err := a.Apply(context.Background(), checkoutEvent("u_1", "b@x.com"))
	require.NoError(t, err)

	assert.Equal(t, []Match{ByID("u_1")}, store.matches(), "email must never be consulted when a reference is present")
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.NewlyGranted)
	assert.True(t, store.accounts["u_1"].HasLifetimeAccess)
	assert.False(t, store.accounts["u_2"].HasLifetimeAccess)
}

func TestApplier_EmailFallback(t *testing.T) {
	store := newTrackingStore(
		&Account{ID: "u_1", Email: "shared@x.com"},
		&Account{ID: "u_2", Email: "shared@x.com"},
		&Account{ID: "u_3", Email: "other@x.com"},
	)
	a, err := NewApplier(store, ApplierConfig{})
	require.NoError(t, err)

	res, err := a.Apply(context.Background(), checkoutEvent("", "shared@x.com"))
	require.NoError(t, err)

	assert.Equal(t, []Match{ByEmail("shared@x.com")}, store.matches())
	assert.Equal(t, 2, res.Matched)
	assert.ElementsMatch(t, []string{"u_1", "u_2"}, res.AccountIDs)
	assert.False(t, store.accounts["u_3"].HasLifetimeAccess)
}

func TestApplier_Idempotent(t *testing.T) {
	store := newTrackingStore(&Account{ID: "u_1", Email: "a@x.com"})
	metrics := &recordingMetrics{}
	a, err := NewApplier(store, ApplierConfig{Metrics: metrics})
	require.NoError(t, err)

	first, err := a.Apply(context.Background(), checkoutEvent("u_1", ""))
	require.NoError(t, err)
	second, err := a.Apply(context.Background(), checkoutEvent("u_1", ""))
	require.NoError(t, err)

	assert.Equal(t, 1, first.NewlyGranted)
	assert.Equal(t, 1, second.Matched)
	assert.Equal(t, 0, second.NewlyGranted)
	assert.True(t, store.accounts["u_1"].HasLifetimeAccess)
	assert.Equal(t, []string{"id:granted", "id:already_granted"}, metrics.outcomes)
}

func TestApplier_NoAccountMatched(t *testing.T) {
	store := newTrackingStore(&Account{ID: "u_1", Email: "a@x.com"})
	logger := &recordingLogger{}
	a, err := NewApplier(store, ApplierConfig{Logger: logger})
	require.NoError(t, err)

	res, err := a.Apply(context.Background(), checkoutEvent("", "nobody@x.com"))
	assert.ErrorIs(t, err, ErrNoAccountMatched)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Matched)
	assert.Equal(t, ByEmail("nobody@x.com"), res.Match)
	assert.False(t, store.accounts["u_1"].HasLifetimeAccess)

	warns := logger.at("warn")
	require.Len(t, warns, 1)
	assert.Equal(t, "email=nobody@x.com", warns[0].fields["match"])
	assert.Equal(t, "cs_test_1", warns[0].fields["session_id"])
	assert.Empty(t, logger.at("info"), "no grant may be logged")
}

func TestApplier_IdentificationErrors(t *testing.T) {
	tests := []struct {
		name  string
		event *PaymentEvent
	}{
		{"nil event", nil},
		{"no reference and no email", checkoutEvent("", "")},
		{"whitespace only", checkoutEvent("  ", " \t")},
		{"other kind", &PaymentEvent{Kind: "invoice.paid", AccountRef: "u_1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTrackingStore(&Account{ID: "u_1"})
			a, err := NewApplier(store, ApplierConfig{})
			require.NoError(t, err)

			res, err := a.Apply(context.Background(), tt.event)
			assert.ErrorIs(t, err, ErrIdentification)
			assert.Nil(t, res)
			assert.Empty(t, store.matches(), "storage must not be touched")
		})
	}
}

func TestApplier_StorageError(t *testing.T) {
	store := newTrackingStore(&Account{ID: "u_1"})
	store.err = errors.New("connection refused")
	a, err := NewApplier(store, ApplierConfig{})
	require.NoError(t, err)

	_, err = a.Apply(context.Background(), checkoutEvent("u_1", ""))
	require.Error(t, err)
	assert.True(t, IsStorageError(err))

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ByID("u_1"), se.Match)
	assert.Contains(t, se.Error(), "connection refused")
}

func TestApplier_NormalizeEmail(t *testing.T) {
	store := newTrackingStore(&Account{ID: "u_1", Email: "buyer@x.com"})

	strict, err := NewApplier(store, ApplierConfig{})
	require.NoError(t, err)
	_, err = strict.Apply(context.Background(), checkoutEvent("", "Buyer@X.com"))
	assert.ErrorIs(t, err, ErrNoAccountMatched, "matching is exact by default")

	normalized, err := NewApplier(store, ApplierConfig{NormalizeEmail: true})
	require.NoError(t, err)
	res, err := normalized.Apply(context.Background(), checkoutEvent("", " Buyer@X.com "))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
}

func TestMatch_Validate(t *testing.T) {
	assert.NoError(t, ByID("u_1").Validate())
	assert.NoError(t, ByEmail("a@x.com").Validate())
	assert.ErrorIs(t, ByID("").Validate(), ErrInvalidMatch)
	assert.ErrorIs(t, Match{Field: "name", Value: "x"}.Validate(), ErrInvalidMatch)
	assert.Equal(t, "email=a@x.com", ByEmail("a@x.com").String())
}

func TestPaymentEvent_Actionable(t *testing.T) {
	assert.True(t, checkoutEvent("u_1", "").Actionable())
	assert.True(t, checkoutEvent("", "a@x.com").Actionable())
	assert.False(t, checkoutEvent("", "").Actionable())
	assert.True(t, (&PaymentEvent{Kind: "charge.refunded"}).Ignored())

	var nilEvent *PaymentEvent
	assert.True(t, nilEvent.Ignored())
}
