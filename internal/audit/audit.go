// Package audit is the single emission point for relay audit events.
// Every significant transition (auth, subscribe, broadcast, disconnect,
// location report) goes through one method here rather than ad-hoc prints.
package audit

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger emits structured audit events as JSON lines.
type Logger struct {
	log zerolog.Logger
}

// New builds a Logger writing to w at the given level ("debug", "info",
// "warn", "error"; empty defaults to info).
func New(w io.Writer, level string) *Logger {
	lvl := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		lvl = parsed
	}
	l := zerolog.New(w).Level(lvl).With().Timestamp().Str("component", "relay").Logger()
	return &Logger{log: l}
}

// NewFromEnv builds a Logger on stderr honoring LOG_LEVEL.
func NewFromEnv() *Logger {
	return New(os.Stderr, os.Getenv("LOG_LEVEL"))
}

// Nop returns a Logger that discards everything; handy in tests.
func Nop() *Logger {
	return &Logger{log: zerolog.Nop()}
}

func (l *Logger) AuthSuccess(connID, userID, orgID, channel string) {
	l.log.Info().Str("event", "auth_success").Str("conn", connID).Str("user", userID).
		Str("org", orgID).Str("channel", channel).Msg("session authenticated")
}

func (l *Logger) AuthFailure(connID, reason string) {
	l.log.Warn().Str("event", "auth_failure").Str("conn", connID).Str("reason", reason).
		Msg("session authentication failed")
}

func (l *Logger) Subscribed(connID, channel string) {
	l.log.Info().Str("event", "subscribed").Str("conn", connID).Str("channel", channel).
		Msg("connection subscribed")
}

func (l *Logger) Broadcast(channel, eventType string, delivered, dropped int) {
	l.log.Info().Str("event", "broadcast").Str("channel", channel).Str("type", eventType).
		Int("delivered", delivered).Int("dropped", dropped).Msg("message fanned out")
}

func (l *Logger) ChangeRelayed(orgID, table, op string) {
	l.log.Debug().Str("event", "db_change").Str("org", orgID).Str("table", table).
		Str("op", op).Msg("change event relayed")
}

func (l *Logger) Disconnect(connID, channel string) {
	l.log.Info().Str("event", "disconnect").Str("conn", connID).Str("channel", channel).
		Msg("connection closed")
}

func (l *Logger) ReportAccepted(driverID, vehicleID string) {
	l.log.Info().Str("event", "location_report").Str("driver", driverID).
		Str("vehicle", vehicleID).Str("outcome", "accepted").Msg("location stored")
}

func (l *Logger) ReportRejected(driverID, vehicleID, reason string) {
	l.log.Warn().Str("event", "location_report").Str("driver", driverID).
		Str("vehicle", vehicleID).Str("outcome", "rejected").Str("reason", reason).
		Msg("location rejected")
}

func (l *Logger) Error(where string, err error) {
	l.log.Error().Str("where", where).Err(err).Msg("relay error")
}

// HTTPRequest logs one served request; used by the server middleware.
func (l *Logger) HTTPRequest(method, path, remote string, status int, durMs int64) {
	l.log.Info().Str("event", "http_request").Str("method", method).Str("path", path).
		Str("remote", remote).Int("status", status).Int64("duration_ms", durMs).Msg("request served")
}
