package authcore

import "errors"

var (
	// ErrInvalidCredentials covers unknown accounts, wrong passwords,
	// and mismatched second-factor codes so callers cannot probe
	// which part failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned once the failure threshold is hit.
	// The lock persists until an operator clears it.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountNotFound is returned by account-scoped operations
	// addressed at an id that does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrMFACodeInvalid is returned by enrollment operations when the
	// proving TOTP code does not match. On the login path a bad code
	// surfaces as ErrInvalidCredentials instead.
	ErrMFACodeInvalid = errors.New("mfa code invalid")
	// ErrMFANotEnabled is returned by second-factor operations on an
	// account without MFA.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrMFAAlreadyEnabled is returned by SetupMFA when the account
	// already has an active second factor.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFANotProvisioned is returned by ActivateMFA before SetupMFA
	// stored a pending secret.
	ErrMFANotProvisioned = errors.New("mfa setup not started")
	// ErrTokenInvalid covers unknown, expired, revoked, and replayed
	// refresh tokens, and expired or consumed MFA correlators.
	// Callers cannot tell which.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrAccessTokenInvalid is returned by Validate for tokens that
	// fail signature, expiry, or claim checks.
	ErrAccessTokenInvalid = errors.New("access token invalid")
	// ErrRateLimited means the admission gate denied the attempt.
	ErrRateLimited = errors.New("rate limited")
	// ErrSessionNotFound is returned when a session id does not
	// resolve to a live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrBuilderIncomplete is returned by Build when a required
	// dependency was not supplied.
	ErrBuilderIncomplete = errors.New("builder missing required dependency")
)

// CodeOf maps an engine error to a stable machine-readable code for
// transport layers. Unrecognized errors map to "internal".
func CodeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrMFACodeInvalid):
		return "mfa_code_invalid"
	case errors.Is(err, ErrMFANotEnabled):
		return "mfa_not_enabled"
	case errors.Is(err, ErrMFAAlreadyEnabled):
		return "mfa_already_enabled"
	case errors.Is(err, ErrMFANotProvisioned):
		return "mfa_not_provisioned"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrAccessTokenInvalid):
		return "access_token_invalid"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	default:
		return "internal"
	}
}
