package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"dachido.org/internal/identity"
	"dachido.org/internal/identity/mem"
)

func newTestAPI(t *testing.T) (*API, *mem.Store) {
	t.Helper()
	store := mem.New()
	tokens, err := identity.NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	api := New(
		identity.NewResolver(store),
		identity.NewAdmin(store),
		tokens,
		ReadyProbe{},
		"test",
	)
	return api, store
}

func seedUser(t *testing.T, store *mem.Store, org, username, password, role, email string) {
	t.Helper()
	hash, err := identity.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	err = store.Users().Create(context.Background(), &identity.User{
		Organization: org,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Email:        email,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func sessionFor(t *testing.T, api *API, id identity.Identity) string {
	t.Helper()
	token, _, err := api.tokens.Issue(id)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func TestWithAuthAllowsPublicPaths(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 without credentials, got %d", path, rr.Code)
		}
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestWithAuthRejectsForeignToken(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	other, err := identity.NewTokenIssuer("other-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	token, _, err := other.Issue(identity.Identity{Organization: "acme", Username: "bob", Role: identity.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign token, got %d", rr.Code)
	}
}

func TestWithAuthAcceptsCookie(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	token := sessionFor(t, api, identity.Identity{Organization: "acme", Username: "bob", Role: identity.RoleAdmin})
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionName, Value: token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with cookie, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestWithAuthAcceptsBearer(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	token := sessionFor(t, api, identity.Identity{Organization: "acme", Username: "bob", Role: identity.RoleCustomerAdmin})
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestExtractTokenPrefersCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionName, Value: "cookie-token"})
	req.Header.Set("Authorization", "Bearer header-token")
	if got := extractToken(req); got != "cookie-token" {
		t.Fatalf("expected cookie token preferred, got %q", got)
	}
}

func TestExtractTokenRejectsBadScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwdw==")
	if got := extractToken(req); got != "" {
		t.Fatalf("expected empty token for non-bearer scheme, got %q", got)
	}
}
