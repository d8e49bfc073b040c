package middleware

import (
	"crypto/subtle"
	"net/http"
)

const WebhookSecretHeader = "X-Webhook-Secret"

// RequireWebhookSecret authenticates the payment collaborator. An empty
// secret disables the route.
func RequireWebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "payment callback disabled", http.StatusServiceUnavailable)
				return
			}
			given := r.Header.Get(WebhookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
				http.Error(w, "invalid webhook secret", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
