package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"dachido.org/internal/identity"
	"dachido.org/internal/obs"
)

const (
	authHeader  = "Authorization"
	bearer      = "Bearer "
	sessionName = "auth_token"
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/external",
	"/v1/auth/logout",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth verifies the session token from the auth_token cookie or the
// Authorization header and attaches the resolved identity to the context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			unauthorized(w, r, "authentication required")
			return
		}

		id, err := a.tokens.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, identity.ErrTokenExpired):
				obs.ObserveTokenVerification("expired")
				unauthorized(w, r, "session expired")
			default:
				obs.ObserveTokenVerification("invalid")
				unauthorized(w, r, "invalid token")
			}
			return
		}
		obs.ObserveTokenVerification("ok")

		ctx := identity.ContextWithIdentity(r.Context(), id)
		ctx = identity.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken prefers the session cookie, falling back to a bearer header
// for non-browser clients.
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(sessionName); err == nil && c.Value != "" {
		return c.Value
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="dachido"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// requireIdentity loads the authenticated identity or writes 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		unauthorized(w, r, "authentication required")
	}
	return id, ok
}

// ensurePermission checks the role table and writes 403 on failure.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, permission string) (identity.Identity, bool) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return identity.Identity{}, false
	}
	if !identity.HasPermission(id.Role, permission) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return identity.Identity{}, false
	}
	return id, true
}

// ensureOrgAccess additionally confines the caller to its own tenant unless
// it holds the wildcard permission set.
func (a *API) ensureOrgAccess(w http.ResponseWriter, r *http.Request, permission, targetOrg string) (identity.Identity, bool) {
	id, ok := a.ensurePermission(w, r, permission)
	if !ok {
		return identity.Identity{}, false
	}
	if !identity.CanAccessOrganization(id.Organization, id.Role, targetOrg) {
		writeError(w, r, http.StatusForbidden, "organization access denied")
		return identity.Identity{}, false
	}
	return id, true
}

// ensureDachidoAdmin gates operator-only surfaces.
func (a *API) ensureDachidoAdmin(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return identity.Identity{}, false
	}
	if !identity.IsDachidoAdmin(id.Organization, id.Role) {
		writeError(w, r, http.StatusForbidden, "operator access required")
		return identity.Identity{}, false
	}
	return id, true
}
