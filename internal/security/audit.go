package security

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"icgateway/internal/logger"
)

// MaxAuditEventsPerMinute caps audit output so a flood of bad handshakes
// cannot flood the log.
const MaxAuditEventsPerMinute = 1000

type AuditEvent struct {
	EventType  string
	IP         string
	ClientID   uint64
	CanisterID string
	Details    string
	Severity   zerolog.Level
}

// AuditLogger records security relevant connection events.
type AuditLogger struct {
	mu          sync.Mutex
	log         zerolog.Logger
	logCount    int
	windowStart time.Time
	now         func() time.Time
}

func NewAuditLogger() *AuditLogger {
	return newAuditLogger(logger.Component("audit"), time.Now)
}

func newAuditLogger(log zerolog.Logger, now func() time.Time) *AuditLogger {
	return &AuditLogger{log: log, windowStart: now(), now: now}
}

func (al *AuditLogger) Log(event AuditEvent) bool {
	al.mu.Lock()
	now := al.now()
	if now.Sub(al.windowStart) > time.Minute {
		al.windowStart = now
		al.logCount = 0
	}
	if al.logCount >= MaxAuditEventsPerMinute {
		al.mu.Unlock()
		return false
	}
	al.logCount++
	al.mu.Unlock()

	e := al.log.WithLevel(event.Severity).
		Str("event_type", event.EventType).
		Str("ip", event.IP)
	if event.CanisterID != "" {
		e = e.Uint64("client_id", event.ClientID).Str("canister_id", event.CanisterID)
	}
	e.Msg(event.Details)
	return true
}

func (al *AuditLogger) LogAuthFailure(ip, reason string) {
	al.Log(AuditEvent{
		EventType: "auth_failure",
		IP:        ip,
		Details:   reason,
		Severity:  zerolog.WarnLevel,
	})
}

func (al *AuditLogger) LogAuthSuccess(ip string, clientID uint64, canisterID string) {
	al.Log(AuditEvent{
		EventType:  "auth_success",
		IP:         ip,
		ClientID:   clientID,
		CanisterID: canisterID,
		Details:    "Handshake verified",
		Severity:   zerolog.InfoLevel,
	})
}

func (al *AuditLogger) LogBruteForce(ip string, attempts int) {
	al.Log(AuditEvent{
		EventType: "brute_force",
		IP:        ip,
		Details:   fmt.Sprintf("Blocked after %d failed handshakes", attempts),
		Severity:  zerolog.ErrorLevel,
	})
}

func (al *AuditLogger) LogConnectionLimit(ip string) {
	al.Log(AuditEvent{
		EventType: "connection_limit",
		IP:        ip,
		Details:   "Connection limit exceeded",
		Severity:  zerolog.WarnLevel,
	})
}

func (al *AuditLogger) LogDisconnect(ip string, clientID uint64, canisterID string) {
	al.Log(AuditEvent{
		EventType:  "client_disconnect",
		IP:         ip,
		ClientID:   clientID,
		CanisterID: canisterID,
		Details:    "Client disconnected",
		Severity:   zerolog.InfoLevel,
	})
}
