package stripe

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mihaimyh/subtrack/pkg/billing"
)

const checkoutBody = `{"id":"evt_1","type":"checkout.session.completed","created":1700000000,` +
	`"data":{"object":{"id":"cs_1","client_reference_id":"acct_42","customer_email":null}}}`

func TestSignatureVerifier_Valid(t *testing.T) {
	v := NewSignatureVerifier(testWebhookSecret, 0, nil)
	sp := sign(t, checkoutBody, testWebhookSecret, time.Now())

	got, err := v.Verify(sp.Payload, sp.Header)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if string(got.Body()) != checkoutBody {
		t.Fatalf("Body = %q", got.Body())
	}
	if got.VerifiedAt().IsZero() {
		t.Error("VerifiedAt should be set")
	}
}

func TestSignatureVerifier_Rejections(t *testing.T) {
	valid := sign(t, checkoutBody, testWebhookSecret, time.Now())

	tests := []struct {
		name   string
		secret string
		body   []byte
		header string
		level  string
		reason string // empty: not checked
	}{
		{"missing header", testWebhookSecret, valid.Payload, "", "warn", "missing signature header"},
		{"malformed header", testWebhookSecret, valid.Payload, "garbage", "warn", ""},
		{"wrong secret", testWebhookSecret, valid.Payload, sign(t, checkoutBody, "whsec_other", time.Now()).Header, "warn", "signature mismatch"},
		{"tampered body", testWebhookSecret, []byte(checkoutBody[:len(checkoutBody)-2] + " }"), valid.Header, "warn", "signature mismatch"},
		{"stale timestamp", testWebhookSecret, valid.Payload, sign(t, checkoutBody, testWebhookSecret, time.Now().Add(-10*time.Minute)).Header, "warn", "timestamp outside tolerance"},
		{"no secret configured", "", valid.Payload, valid.Header, "error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			v := NewSignatureVerifier(tt.secret, 0, logger)
			got, err := v.Verify(tt.body, tt.header)
			if !errors.Is(err, billing.ErrVerification) {
				t.Fatalf("expected ErrVerification, got %v", err)
			}
			if got != nil {
				t.Fatal("no payload may be returned on failure")
			}
			if err.Error() != billing.ErrVerification.Error() {
				t.Errorf("error leaks cause: %q", err.Error())
			}

			entries := logger.at(tt.level)
			if len(entries) != 1 {
				t.Fatalf("%s log entries = %d, want 1", tt.level, len(entries))
			}
			if tt.reason != "" && entries[0].fields["reason"] != tt.reason {
				t.Errorf("reason = %v, want %q", entries[0].fields["reason"], tt.reason)
			}
			for k, v := range entries[0].fields {
				if s, ok := v.(string); ok && strings.Contains(s, testWebhookSecret) {
					t.Errorf("field %s leaks the signing secret", k)
				}
			}
		})
	}
}

func TestSignatureVerifier_EverySingleByteTamperFails(t *testing.T) {
	v := NewSignatureVerifier(testWebhookSecret, 0, nil)
	sp := sign(t, checkoutBody, testWebhookSecret, time.Now())

	for i := range sp.Payload {
		tampered := append([]byte(nil), sp.Payload...)
		tampered[i] ^= 0x01
		if _, err := v.Verify(tampered, sp.Header); err == nil {
			t.Fatalf("tampering byte %d was accepted", i)
		}
	}
}

func TestSignatureVerifier_Configured(t *testing.T) {
	if NewSignatureVerifier("  ", 0, nil).Configured() {
		t.Error("blank secret must not count as configured")
	}
	if !NewSignatureVerifier(testWebhookSecret, 0, nil).Configured() {
		t.Error("secret should be configured")
	}
}
