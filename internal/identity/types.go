package identity

import (
	"strings"
	"time"
)

// DachidoOrg is the operator organization whose admins may cross tenant
// boundaries.
const DachidoOrg = "dachido"

// Roles accepted by account administration and the authorization engine.
const (
	RoleDachidoAdmin  = "dachido_admin"
	RoleAdmin         = "admin"
	RoleCustomerAdmin = "customer_admin"
)

// ValidRole reports whether role is one of the enumerated roles.
func ValidRole(role string) bool {
	switch role {
	case RoleDachidoAdmin, RoleAdmin, RoleCustomerAdmin:
		return true
	}
	return false
}

// User is one local account, unique per (organization, username).
type User struct {
	Organization string    `json:"organization"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Email        string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Key returns the store key, organization lower-cased.
func (u *User) Key() string { return UserKey(u.Organization, u.Username) }

// UserKey builds the canonical "organization:username" store key.
func UserKey(organization, username string) string {
	return strings.ToLower(strings.TrimSpace(organization)) + ":" + strings.TrimSpace(username)
}

// Organization is tenant metadata keyed by lowercase name.
type Organization struct {
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Mapping bridges an external broker identity to a canonical triple. One
// logical mapping is stored under two index keys: the external id and the
// normalized email. Both entries carry the identical triple.
type Mapping struct {
	ExternalID   string    `json:"external_id"`
	Email        string    `json:"email,omitempty"`
	Organization string    `json:"organization"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Triple returns the identity the mapping resolves to.
func (m *Mapping) Triple() Identity {
	return Identity{Organization: m.Organization, Username: m.Username, Role: m.Role}
}

// Identity is the resolved (organization, username, role) triple carried by
// issued tokens and attached to request contexts.
type Identity struct {
	Organization string `json:"organization"`
	Username     string `json:"username"`
	Role         string `json:"role"`
}

// Key returns the "organization:username" form of the identity.
func (id Identity) Key() string { return UserKey(id.Organization, id.Username) }

// Credentials is a locally-registered login attempt.
type Credentials struct {
	Organization string `json:"organization"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

// Validate normalizes the credentials in place and rejects incomplete input.
func (c *Credentials) Validate() error {
	c.Organization = strings.ToLower(strings.TrimSpace(c.Organization))
	c.Username = strings.TrimSpace(c.Username)
	if c.Organization == "" || c.Username == "" || c.Password == "" {
		return ErrValidation
	}
	return nil
}

// ExternalAssertion is the trusted output of the upstream identity broker:
// an opaque id plus whatever display name and email the broker chose to send.
// The broker is trusted for identity only, never for authorization.
type ExternalAssertion struct {
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// Validate rejects assertions without an external id.
func (a *ExternalAssertion) Validate() error {
	a.ExternalID = strings.TrimSpace(a.ExternalID)
	a.DisplayName = strings.TrimSpace(a.DisplayName)
	a.Email = strings.TrimSpace(a.Email)
	if a.ExternalID == "" {
		return ErrValidation
	}
	return nil
}

// EffectiveEmail returns the asserted email, falling back to the display
// name when the broker packed an address there (common for Entra principals).
func (a *ExternalAssertion) EffectiveEmail() string {
	if a.Email != "" {
		return a.Email
	}
	if strings.Contains(a.DisplayName, "@") {
		return a.DisplayName
	}
	return ""
}

// Assertion is the tagged union handed to the resolver: exactly one of the
// two kinds must be set.
type Assertion struct {
	Credentials *Credentials
	External    *ExternalAssertion
}

// Validate checks that exactly one assertion kind is present and valid.
func (a Assertion) Validate() error {
	switch {
	case a.Credentials != nil && a.External == nil:
		return a.Credentials.Validate()
	case a.External != nil && a.Credentials == nil:
		return a.External.Validate()
	}
	return ErrValidation
}
