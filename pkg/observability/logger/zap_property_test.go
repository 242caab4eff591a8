package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var levelRank = map[LogLevel]int{DebugLevel: 0, InfoLevel: 1, WarnLevel: 2, ErrorLevel: 3}

func logAt(log Logger, level LogLevel, msg string, args ...any) {
	switch level {
	case DebugLevel:
		log.Debug(msg, args...)
	case InfoLevel:
		log.Info(msg, args...)
	case WarnLevel:
		log.Warn(msg, args...)
	case ErrorLevel:
		log.Error(msg, args...)
	}
}

func TestProperty_StructuredLoggingFormat(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genLevel := gen.OneConstOf(DebugLevel, InfoLevel, WarnLevel, ErrorLevel)
	genMessage := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) < 200
	})
	genRequestID := gen.OneGenOf(
		gen.Const(""),
		gen.Identifier().Map(func(s string) string { return "req-" + s }),
	)

	properties.Property("entries are JSON with timestamp, level, message and request id", prop.ForAll(
		func(level LogLevel, message, requestID string) bool {
			var buf bytes.Buffer
			log, err := NewZapLogger(Config{Level: DebugLevel, Format: JSONFormat, Output: &buf})
			if err != nil {
				return false
			}

			ctx := context.Background()
			if requestID != "" {
				ctx = ContextWithRequestID(ctx, requestID)
			}
			logAt(log.WithContext(ctx), level, message, "subscribers", 1)
			_ = log.Sync()

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				return false
			}
			for _, field := range []string{"timestamp", "level", "message"} {
				if _, ok := entry[field]; !ok {
					return false
				}
			}
			if entry["message"] != message || entry["level"] != string(level) {
				return false
			}
			if requestID == "" {
				_, present := entry["request_id"]
				return !present
			}
			return entry["request_id"] == requestID
		},
		genLevel,
		genMessage,
		genRequestID,
	))

	properties.TestingRun(t)
}

func TestProperty_LogLevelFiltering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genLevel := gen.OneConstOf(DebugLevel, InfoLevel, WarnLevel, ErrorLevel)

	properties.Property("an entry appears iff its level is at or above the configured level", prop.ForAll(
		func(configured, emitted LogLevel) bool {
			var buf bytes.Buffer
			log, err := NewZapLogger(Config{Level: configured, Format: JSONFormat, Output: &buf})
			if err != nil {
				return false
			}
			logAt(log, emitted, "level check")
			_ = log.Sync()

			appeared := buf.Len() > 0
			return appeared == (levelRank[emitted] >= levelRank[configured])
		},
		genLevel,
		genLevel,
	))

	properties.TestingRun(t)
}
