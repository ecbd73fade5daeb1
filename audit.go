package authcore

import (
	"github.com/mkarpis/authcore/internal/audit"
)

// AuditEvent is one security-relevant occurrence emitted by the
// engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher. Sinks
// run on the dispatcher goroutine and should return promptly.
type AuditSink = audit.Sink

// Audit event kinds, re-exported for sink implementations.
const (
	AuditLoginSuccess    = audit.KindLoginSuccess
	AuditLoginFailed     = audit.KindLoginFailed
	AuditLogout          = audit.KindLogout
	AuditMFAEnabled      = audit.KindMFAEnabled
	AuditMFADisabled     = audit.KindMFADisabled
	AuditMFAVerified     = audit.KindMFAVerified
	AuditMFAFailed       = audit.KindMFAFailed
	AuditTokenRefreshed  = audit.KindTokenRefreshed
	AuditTokenRevoked    = audit.KindTokenRevoked
	AuditAccountLocked   = audit.KindAccountLocked
	AuditAccountUnlocked = audit.KindAccountUnlocked
)

// NewJSONAuditSink returns a sink writing one JSON event per line,
// for wiring audit output to a log file or stdout.
var NewJSONAuditSink = audit.NewJSONWriterSink
