package middleware

import (
	"context"
	"net/http"

	"taskmarket/internal/store"
)

type AdminStore interface {
	Lookup(ctx context.Context, userID string) (store.AdminStatus, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// admission decides whether an admin may pass. A non-empty reason rejects
// the request with 403.
type admission func(ctx context.Context, userID string, status store.AdminStatus) (reason string, err error)

// RequireAdmin admits super admins, and other admins holding role. An empty
// role admits any admin.
func RequireAdmin(admins AdminStore, role string) func(http.Handler) http.Handler {
	return guardAdmins(admins, func(ctx context.Context, userID string, status store.AdminStatus) (string, error) {
		switch {
		case !status.IsAdmin:
			return "admin privileges required", nil
		case status.IsSuper || role == "":
			return "", nil
		}
		granted, err := admins.HasRole(ctx, userID, role)
		if err != nil || granted {
			return "", err
		}
		return "missing required role", nil
	})
}

// RequireSuperAdmin guards operations that change who is an admin.
func RequireSuperAdmin(admins AdminStore) func(http.Handler) http.Handler {
	return guardAdmins(admins, func(_ context.Context, _ string, status store.AdminStatus) (string, error) {
		if !status.IsSuper {
			return "super admin privileges required", nil
		}
		return "", nil
	})
}

func guardAdmins(admins AdminStore, admit admission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			status, err := admins.Lookup(r.Context(), userID)
			if err != nil {
				http.Error(w, "unable to verify admin", http.StatusInternalServerError)
				return
			}
			reason, err := admit(r.Context(), userID, status)
			switch {
			case err != nil:
				http.Error(w, "unable to verify role", http.StatusInternalServerError)
			case reason != "":
				http.Error(w, reason, http.StatusForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
