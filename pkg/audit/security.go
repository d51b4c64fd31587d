// Package audit provides security audit logging for SIEM consumption.
// Sign-in events are logged in structured JSON under the "security_audit"
// logger namespace.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/chat-gateway/pkg/auth"
	"github.com/ekaya-inc/chat-gateway/pkg/llm"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSignIn is logged when a Google credential is accepted.
	EventSignIn SecurityEventType = "sign_in"
	// EventSignInRejected is logged when a Google credential fails verification.
	EventSignInRejected SecurityEventType = "sign_in_rejected"
	// EventSignOut is logged when a session is cleared.
	EventSignOut SecurityEventType = "sign_out"
)

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details,omitempty"`
	Severity  string            `json:"severity"` // info, warning
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a new security auditor under the
// "security_audit" logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
		now:    time.Now,
	}
}

// LogSignIn records an accepted Google sign-in.
func (a *SecurityAuditor) LogSignIn(ctx context.Context, id auth.Identity, clientIP string) {
	a.log(ctx, zap.InfoLevel, "User signed in", SecurityEvent{
		EventType: EventSignIn,
		Email:     id.Email,
		ClientIP:  clientIP,
		Severity:  "info",
	})
}

// LogSignInRejected records a credential that failed verification. The
// reason is the verifier's error text; the credential itself is never logged.
func (a *SecurityAuditor) LogSignInRejected(ctx context.Context, reason string, clientIP string) {
	a.log(ctx, zap.WarnLevel, "Sign-in rejected", SecurityEvent{
		EventType: EventSignInRejected,
		ClientIP:  clientIP,
		Details:   map[string]string{"reason": reason},
		Severity:  "warning",
	})
}

// LogSignOut records a cleared session. Email is taken from the request
// identity when present.
func (a *SecurityAuditor) LogSignOut(ctx context.Context, clientIP string) {
	var email string
	if id, ok := auth.GetIdentity(ctx); ok {
		email = id.Email
	}
	a.log(ctx, zap.InfoLevel, "User signed out", SecurityEvent{
		EventType: EventSignOut,
		Email:     email,
		ClientIP:  clientIP,
		Severity:  "info",
	})
}

func (a *SecurityAuditor) log(ctx context.Context, level zapcore.Level, msg string, event SecurityEvent) {
	event.Timestamp = a.now().UTC()
	event.RequestID = llm.RequestID(ctx)

	// Marshaling known types cannot fail
	eventJSON, _ := json.Marshal(event)

	if ce := a.logger.Check(level, msg); ce != nil {
		ce.Write(
			zap.String("event_json", string(eventJSON)),
			zap.String("event_type", string(event.EventType)),
			zap.String("email", event.Email),
			zap.String("client_ip", event.ClientIP),
			zap.String("request_id", event.RequestID),
			zap.String("severity", event.Severity),
		)
	}
}
