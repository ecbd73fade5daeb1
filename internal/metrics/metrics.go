// Package metrics exposes prometheus counters for the authentication
// engine. All instruments are registered on a caller-supplied
// registry so tests and embedders stay isolated.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the engine's instruments.
type Metrics struct {
	LoginAttempts    *prometheus.CounterVec
	MFAVerifications *prometheus.CounterVec
	TokenRefreshes   *prometheus.CounterVec
	AccountLockouts  prometheus.Counter
	RateLimited      *prometheus.CounterVec
	SessionsCreated  prometheus.Counter
	SessionsRevoked  prometheus.Counter
}

// New registers the engine instruments on reg. A nil registry means
// metrics are collected but never scraped, which keeps call sites
// unconditional.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		MFAVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "mfa_verifications_total",
			Help:      "Second-factor verifications by outcome and method.",
		}, []string{"outcome", "method"}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "token_refreshes_total",
			Help:      "Refresh rotations by outcome.",
		}, []string{"outcome"}),
		AccountLockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "account_lockouts_total",
			Help:      "Accounts locked after repeated failures.",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "rate_limited_total",
			Help:      "Requests denied by the admission gate, by class.",
		}, []string{"class"}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "sessions_created_total",
			Help:      "Sessions registered after successful authentication.",
		}),
		SessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "sessions_revoked_total",
			Help:      "Sessions invalidated by logout or revocation.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.LoginAttempts,
			m.MFAVerifications,
			m.TokenRefreshes,
			m.AccountLockouts,
			m.RateLimited,
			m.SessionsCreated,
			m.SessionsRevoked,
		)
	}
	return m
}

// Outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeFailed      = "failed"
	OutcomeLocked      = "locked"
	OutcomeMFARequired = "mfa_required"
	OutcomeDenied      = "denied"
)

// Method labels for MFA verifications.
const (
	MethodTOTP   = "totp"
	MethodBackup = "backup_code"
)
