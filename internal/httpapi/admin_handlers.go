package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"dachido.org/internal/audit"
	"dachido.org/internal/identity"
)

type createUserRequest struct {
	Organization string `json:"organization"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Role         string `json:"role"`
	Email        string `json:"email"`
}

type updateUserRequest struct {
	Role     *string `json:"role"`
	Password *string `json:"password"`
	Email    *string `json:"email"`
}

type userResponse struct {
	Organization string `json:"organization"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	Email        string `json:"email,omitempty"`
}

func toUserResponse(u *identity.User) userResponse {
	return userResponse{
		Organization: u.Organization,
		Username:     u.Username,
		Role:         u.Role,
		Email:        u.Email,
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleListUsers(w, r)
	case http.MethodPost:
		a.handleCreateUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleListUsers returns every account the caller may see: all of them for
// wildcard roles, the caller's own tenant otherwise.
func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := a.ensurePermission(w, r, identity.PermissionManageUsers)
	if !ok {
		return
	}
	users, err := a.admin.ListUsers(r.Context())
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	visible := make([]userResponse, 0, len(users))
	for _, u := range users {
		if !identity.CanAccessOrganization(id.Organization, id.Role, u.Organization) {
			continue
		}
		visible = append(visible, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": visible})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	actor, ok := a.ensureOrgAccess(w, r, identity.PermissionManageUsers, req.Organization)
	if !ok {
		return
	}
	user, err := a.admin.CreateUser(r.Context(), req.Organization, req.Username, req.Password, req.Role, req.Email)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.create", map[string]any{
		"actor":   actor.Key(),
		"subject": user.Key(),
		"role":    user.Role,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", url.PathEscape(user.Key())))
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// handleUserResource routes /v1/users/{organization:username}.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	key := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	key, err := url.PathUnescape(key)
	if err != nil || key == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	org, username, found := strings.Cut(key, ":")
	if !found || org == "" || username == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		a.handleUpdateUser(w, r, org, username)
	case http.MethodDelete:
		a.handleDeleteUser(w, r, org, username)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request, org, username string) {
	actor, ok := a.ensureOrgAccess(w, r, identity.PermissionManageUsers, org)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.admin.UpdateUser(r.Context(), org, username, identity.UserUpdate{
		Role:     req.Role,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.update", map[string]any{
		"actor":   actor.Key(),
		"subject": user.Key(),
	})
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request, org, username string) {
	actor, ok := a.ensureOrgAccess(w, r, identity.PermissionManageUsers, org)
	if !ok {
		return
	}
	if err := a.admin.DeleteUser(r.Context(), org, username, actor); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.delete", map[string]any{
		"actor":   actor.Key(),
		"subject": identity.UserKey(org, username),
	})
	w.WriteHeader(http.StatusNoContent)
}

type createOrganizationRequest struct {
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name"`
	Metadata    map[string]any `json:"metadata"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleListOrganizations(w, r)
	case http.MethodPost:
		a.handleCreateOrganization(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	id, ok := a.ensurePermission(w, r, identity.PermissionViewDashboard)
	if !ok {
		return
	}
	orgs, err := a.admin.ListOrganizations(r.Context())
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	visible := make([]*identity.Organization, 0, len(orgs))
	for _, org := range orgs {
		if !identity.CanAccessOrganization(id.Organization, id.Role, org.Name) {
			continue
		}
		visible = append(visible, org)
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": visible})
}

func (a *API) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.ensureDachidoAdmin(w, r)
	if !ok {
		return
	}
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.admin.CreateOrganization(r.Context(), req.Name, req.DisplayName, req.Metadata)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.create", map[string]any{
		"actor": actor.Key(),
		"name":  org.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/organizations/%s", url.PathEscape(org.Name)))
	writeJSON(w, http.StatusCreated, org)
}

// handleOrganizationResource routes /v1/organizations/{name}.
func (a *API) handleOrganizationResource(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/organizations/"), "/")
	name, err := url.PathUnescape(name)
	if err != nil || name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.ensureOrgAccess(w, r, identity.PermissionViewDashboard, name); !ok {
		return
	}
	org, err := a.admin.GetOrganization(r.Context(), name)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}
