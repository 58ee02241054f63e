package zerolog

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

func TestZerologLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(l *Logger)
		level string
	}{
		{"debug", func(l *Logger) { l.Debug("msg", entitlement.Field{Key: "k", Value: "v"}) }, "debug"},
		{"info", func(l *Logger) { l.Info("msg", entitlement.Field{Key: "k", Value: "v"}) }, "info"},
		{"warn", func(l *Logger) { l.Warn("msg", entitlement.Field{Key: "k", Value: "v"}) }, "warn"},
		{"error", func(l *Logger) { l.Error("msg", entitlement.Field{Key: "k", Value: "v"}) }, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer
			logger := NewLogger(zerolog.New(&output))

			tt.log(logger)

			var line map[string]interface{}
			if err := json.Unmarshal(output.Bytes(), &line); err != nil {
				t.Fatalf("log line is not JSON: %v (%q)", err, output.String())
			}
			if line["level"] != tt.level {
				t.Errorf("level = %v, want %s", line["level"], tt.level)
			}
			if line["k"] != "v" {
				t.Errorf("field k = %v, want v", line["k"])
			}
			if line["message"] != "msg" {
				t.Errorf("message = %v, want msg", line["message"])
			}
		})
	}
}

func TestZerologLogger_LogLevelFiltering(t *testing.T) {
	var output bytes.Buffer
	logger := NewLogger(zerolog.New(&output).Level(zerolog.WarnLevel))

	logger.Debug("debug message")
	logger.Info("info message")

	if output.Len() != 0 {
		t.Error("Expected debug and info to be filtered out")
	}

	logger.Warn("warn message")
	logger.Error("error message")

	if output.Len() == 0 {
		t.Error("Expected warn and error to be logged")
	}
}

func TestZerologLogger_ErrorField(t *testing.T) {
	var output bytes.Buffer
	logger := NewLogger(zerolog.New(&output))

	logger.Error("grant failed", entitlement.Field{Key: "error", Value: errors.New("connection refused")})

	var line map[string]interface{}
	if err := json.Unmarshal(output.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["error"] != "connection refused" {
		t.Errorf("error field = %v, want the error text", line["error"])
	}
}
