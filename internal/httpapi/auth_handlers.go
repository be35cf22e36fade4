package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"dachido.org/internal/audit"
	"dachido.org/internal/identity"
	"dachido.org/internal/obs"
)

// Broker headers set by the external authentication proxy.
const (
	headerPrincipalID   = "X-MS-CLIENT-PRINCIPAL-ID"
	headerPrincipalName = "X-MS-CLIENT-PRINCIPAL-NAME"
	headerPrincipalIDP  = "X-MS-CLIENT-PRINCIPAL-IDP"
)

type loginRequest struct {
	Organization string `json:"organization"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

type sessionResponse struct {
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Organization string    `json:"organization"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id, err := a.resolver.Resolve(r.Context(), identity.Assertion{
		Credentials: &identity.Credentials{
			Organization: req.Organization,
			Username:     req.Username,
			Password:     req.Password,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			obs.ObserveLogin("invalid")
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, identity.ErrValidation):
			obs.ObserveLogin("invalid")
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			obs.ObserveLogin("error")
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	obs.ObserveLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"subject": id.Key(),
		"role":    id.Role,
	})
	a.issueSession(w, r, id)
}

// handleExternalLogin completes a broker-authenticated request. An assertion
// the resolver cannot place returns 409 with remediation hints so the caller
// can route the user into the mapping assignment flow.
func (a *API) handleExternalLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	assertion := identity.ExternalAssertion{
		ExternalID:  strings.TrimSpace(r.Header.Get(headerPrincipalID)),
		DisplayName: strings.TrimSpace(r.Header.Get(headerPrincipalName)),
		Provider:    strings.TrimSpace(r.Header.Get(headerPrincipalIDP)),
	}
	if assertion.ExternalID == "" {
		writeError(w, r, http.StatusBadRequest, "missing principal headers")
		return
	}

	id, err := a.resolver.Resolve(r.Context(), identity.Assertion{External: &assertion})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUnresolved):
			obs.ObserveLogin("unresolved")
			_ = audit.LogEvent(r.Context(), "auth.external.unresolved", map[string]any{
				"external_id": assertion.ExternalID,
				"provider":    assertion.Provider,
			})
			payload := map[string]any{
				"error":       "identity unresolved",
				"remediation": "assign a mapping via POST /v1/mappings",
				"external_id": assertion.ExternalID,
			}
			if email := assertion.EffectiveEmail(); email != "" {
				payload["email"] = identity.NormalizeEmail(email)
				if hint := identity.OrganizationFromEmail(email); hint != "" {
					payload["organization_hint"] = hint
				}
			}
			if rid := RequestIDFromContext(r.Context()); rid != "" {
				payload["request_id"] = rid
			}
			writeJSON(w, http.StatusConflict, payload)
		case errors.Is(err, identity.ErrValidation):
			obs.ObserveLogin("invalid")
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			obs.ObserveLogin("error")
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	obs.ObserveLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.external.login", map[string]any{
		"subject":     id.Key(),
		"role":        id.Role,
		"external_id": assertion.ExternalID,
		"provider":    assertion.Provider,
	})
	a.issueSession(w, r, id)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"organization": id.Organization,
		"username":     id.Username,
		"role":         id.Role,
		"permissions":  identity.RolePermissions(id.Role),
	})
}

type createMappingRequest struct {
	ExternalID   string `json:"external_id"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
	Username     string `json:"username"`
	Role         string `json:"role"`
}

// handleMappings lets an operator bind an external identity explicitly.
func (a *API) handleMappings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.ensureDachidoAdmin(w, r)
	if !ok {
		return
	}

	var req createMappingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role == "" {
		req.Role = identity.RoleCustomerAdmin
	}
	m, err := a.resolver.CreateMapping(r.Context(), req.ExternalID, req.Email, req.Organization, req.Username, req.Role)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "mapping.create", map[string]any{
		"actor":       actor.Key(),
		"external_id": m.ExternalID,
		"subject":     m.Triple().Key(),
	})
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) issueSession(w http.ResponseWriter, r *http.Request, id identity.Identity) {
	token, expiresAt, err := a.tokens.Issue(id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.tokenTTL / time.Second),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:        token,
		ExpiresAt:    expiresAt,
		Organization: id.Organization,
		Username:     id.Username,
		Role:         id.Role,
	})
}
