package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Admin mutates User and Organization records. It enforces uniqueness,
// format, and self-protection invariants; tenant-scope gating belongs to
// the caller via the authorization engine.
type Admin struct {
	store Store
	now   func() time.Time
}

// AdminOption configures Admin.
type AdminOption func(*Admin)

// WithAdminClock overrides the time source for created records.
func WithAdminClock(fn func() time.Time) AdminOption {
	return func(a *Admin) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAdmin constructs an Admin over the given store.
func NewAdmin(store Store, opts ...AdminOption) *Admin {
	a := &Admin{store: store, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// UserUpdate is a partial update; nil fields keep their prior values.
type UserUpdate struct {
	Role     *string
	Password *string
	Email    *string
}

// CreateUser registers a local account. The organization record is created
// implicitly when unknown. All validation happens before any store write.
func (a *Admin) CreateUser(ctx context.Context, organization, username, password, role, email string) (*User, error) {
	organization = strings.ToLower(strings.TrimSpace(organization))
	username = strings.TrimSpace(username)
	if organization == "" || username == "" || password == "" {
		return nil, fmt.Errorf("%w: organization, username, and password are required", ErrValidation)
	}
	if role == "" {
		role = RoleCustomerAdmin
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: unsupported role %s", ErrValidation, role)
	}
	email = strings.TrimSpace(email)
	if email != "" && !ValidEmail(email) {
		return nil, fmt.Errorf("%w: invalid email format", ErrValidation)
	}

	if err := a.EnsureOrganization(ctx, organization); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Organization: organization,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Email:        email,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser applies a partial update to an existing account.
func (a *Admin) UpdateUser(ctx context.Context, organization, username string, upd UserUpdate) (*User, error) {
	user, err := a.store.Users().Get(ctx, organization, username)
	if err != nil {
		return nil, err
	}
	if upd.Role != nil {
		if !ValidRole(*upd.Role) {
			return nil, fmt.Errorf("%w: unsupported role %s", ErrValidation, *upd.Role)
		}
		user.Role = *upd.Role
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email != "" && !ValidEmail(email) {
			return nil, fmt.Errorf("%w: invalid email format", ErrValidation)
		}
		user.Email = email
	}
	if upd.Password != nil && *upd.Password != "" {
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if err := a.store.Users().Put(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes an account. A caller may never delete the record
// matching their own authenticated identity; that guard holds for every
// role and protects against total admin lockout.
func (a *Admin) DeleteUser(ctx context.Context, organization, username string, requester Identity) error {
	user, err := a.store.Users().Get(ctx, organization, username)
	if err != nil {
		return err
	}
	if user.Key() == requester.Key() {
		return ErrSelfDelete
	}
	return a.store.Users().Delete(ctx, organization, username)
}

// ListUsers returns every account; callers scope the result per tenant.
func (a *Admin) ListUsers(ctx context.Context) ([]*User, error) {
	return a.store.Users().List(ctx)
}

// CreateOrganization registers a tenant explicitly. The display name
// defaults to the title-cased organization name.
func (a *Admin) CreateOrganization(ctx context.Context, name, displayName string, metadata map[string]any) (*Organization, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", ErrValidation)
	}
	if displayName == "" {
		displayName = titleCase(name)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	org := &Organization{
		Name:        name,
		DisplayName: displayName,
		Metadata:    metadata,
		CreatedAt:   a.now().UTC(),
	}
	if err := a.store.Organizations().Create(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// EnsureOrganization creates the tenant record when absent.
func (a *Admin) EnsureOrganization(ctx context.Context, name string) error {
	_, err := a.store.Organizations().Get(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := a.CreateOrganization(ctx, name, "", nil); err != nil && !errors.Is(err, ErrConflict) {
		return err
	}
	return nil
}

// GetOrganization loads one tenant record.
func (a *Admin) GetOrganization(ctx context.Context, name string) (*Organization, error) {
	return a.store.Organizations().Get(ctx, name)
}

// ListOrganizations returns all tenant records.
func (a *Admin) ListOrganizations(ctx context.Context) ([]*Organization, error) {
	return a.store.Organizations().List(ctx)
}

func titleCase(name string) string {
	if name == "" {
		return ""
	}
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
