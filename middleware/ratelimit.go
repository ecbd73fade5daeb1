package middleware

import (
	"net/http"

	"github.com/mkarpis/authcore"
)

// Traffic classes with dedicated admission budgets. Anything else
// falls under the default budget.
const (
	ClassLogin    = "login"
	ClassRegister = "register"
)

// RateLimit admits requests through the engine's gate under the given
// class. Expects ClientAddr upstream so the gate keys on the real
// caller.
func RateLimit(engine *authcore.Engine, class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !engine.Admit(r.Context(), class) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
