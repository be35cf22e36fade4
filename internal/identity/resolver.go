package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Resolver turns an inbound assertion into a canonical
// (organization, username, role) triple. Stages run in fixed priority
// order; later stages are progressively more best-effort:
//
//  1. local credentials against the user store
//  2. structured "<organization>/<username>" display name
//  3. mapping keyed by external id
//  4. mapping keyed by normalized email
//  5. lazy mapping from an email match against existing users
//
// Nothing matched is ErrUnresolved, which callers route to the assignment
// flow rather than a failure page.
type Resolver struct {
	store         Store
	now           func() time.Time
	onLazyMapping func()
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock overrides the time source used for created mappings.
func WithResolverClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithMappingObserver registers a callback invoked each time a mapping is
// created lazily; used for metrics.
func WithMappingObserver(fn func()) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.onLazyMapping = fn
		}
	}
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve dispatches on the assertion kind. Every read goes to the store
// fresh; the resolver keeps no per-request state.
func (r *Resolver) Resolve(ctx context.Context, a Assertion) (Identity, error) {
	if err := a.Validate(); err != nil {
		return Identity{}, err
	}
	if a.Credentials != nil {
		return r.resolveLocal(ctx, *a.Credentials)
	}
	return r.resolveExternal(ctx, *a.External)
}

// resolveLocal verifies a password against the stored hash. Unknown user
// and wrong password collapse into the same generic error.
func (r *Resolver) resolveLocal(ctx context.Context, c Credentials) (Identity, error) {
	user, err := r.store.Users().Get(ctx, c.Organization, c.Username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("load user: %w", err)
	}
	if err := VerifyPassword(user.PasswordHash, c.Password); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{
		Organization: user.Organization,
		Username:     user.Username,
		Role:         roleOrDefault(user.Role),
	}, nil
}

func (r *Resolver) resolveExternal(ctx context.Context, a ExternalAssertion) (Identity, error) {
	// Stage 2: structured display name. The broker asserts who the caller
	// is; the role still comes from our own user record.
	if id, ok, err := r.resolveStructured(ctx, a.DisplayName); err != nil {
		return Identity{}, err
	} else if ok {
		return id, nil
	}

	// Stage 3: mapping by external id.
	m, err := r.store.Mappings().GetByExternalID(ctx, a.ExternalID)
	if err == nil {
		return m.Triple(), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Identity{}, fmt.Errorf("mapping by id: %w", err)
	}

	// Stage 4: mapping by email. When both index entries exist the id-keyed
	// one has already won above.
	email := a.EffectiveEmail()
	if email != "" {
		m, err := r.store.Mappings().GetByEmail(ctx, NormalizeEmail(email))
		if err == nil {
			return m.Triple(), nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Identity{}, fmt.Errorf("mapping by email: %w", err)
		}
	}

	// Stage 5: lazy mapping from an email match against users.
	if ValidEmail(email) {
		if id, ok, err := r.lazyMap(ctx, a, email); err != nil {
			return Identity{}, err
		} else if ok {
			return id, nil
		}
	}

	return Identity{}, ErrUnresolved
}

// resolveStructured handles "<organization>/<username>" display names,
// splitting on the first slash only.
func (r *Resolver) resolveStructured(ctx context.Context, displayName string) (Identity, bool, error) {
	org, username, found := strings.Cut(displayName, "/")
	if !found {
		return Identity{}, false, nil
	}
	org = strings.ToLower(strings.TrimSpace(org))
	username = strings.TrimSpace(username)
	if org == "" || username == "" {
		return Identity{}, false, nil
	}
	user, err := r.store.Users().Get(ctx, org, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, false, nil
		}
		return Identity{}, false, fmt.Errorf("load user: %w", err)
	}
	return Identity{
		Organization: org,
		Username:     user.Username,
		Role:         roleOrDefault(user.Role),
	}, true, nil
}

// lazyMap synthesizes a mapping pair the first time an asserted email
// matches an existing user. Creation never overwrites: when a concurrent
// resolver got there first, the stored mapping is read back and returned,
// so repeated runs converge on one consistent record.
func (r *Resolver) lazyMap(ctx context.Context, a ExternalAssertion, email string) (Identity, bool, error) {
	user, err := r.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, false, nil
		}
		return Identity{}, false, fmt.Errorf("find user by email: %w", err)
	}
	m := &Mapping{
		ExternalID:   a.ExternalID,
		Email:        NormalizeEmail(email),
		Organization: user.Organization,
		Username:     user.Username,
		Role:         roleOrDefault(user.Role),
		CreatedAt:    r.now().UTC(),
	}
	if err := r.store.Mappings().Create(ctx, m); err != nil {
		if !errors.Is(err, ErrConflict) {
			return Identity{}, false, fmt.Errorf("create lazy mapping: %w", err)
		}
		stored, err := r.store.Mappings().GetByExternalID(ctx, a.ExternalID)
		if err != nil {
			return Identity{}, false, fmt.Errorf("reload mapping: %w", err)
		}
		return stored.Triple(), true, nil
	}
	if r.onLazyMapping != nil {
		r.onLazyMapping()
	}
	return m.Triple(), true, nil
}

// CreateMapping binds an external identity to a triple by administrative
// action, overwriting any previous assignment. This is the remediation
// target for ErrUnresolved.
func (r *Resolver) CreateMapping(ctx context.Context, externalID, email, organization, username, role string) (*Mapping, error) {
	externalID = strings.TrimSpace(externalID)
	organization = strings.ToLower(strings.TrimSpace(organization))
	username = strings.TrimSpace(username)
	if externalID == "" || organization == "" || username == "" {
		return nil, ErrValidation
	}
	if !ValidRole(role) {
		return nil, ErrValidation
	}
	email = NormalizeEmail(email)
	if email != "" && !ValidEmail(email) {
		return nil, ErrValidation
	}
	m := &Mapping{
		ExternalID:   externalID,
		Email:        email,
		Organization: organization,
		Username:     username,
		Role:         role,
		CreatedAt:    r.now().UTC(),
	}
	if err := r.store.Mappings().Put(ctx, m); err != nil {
		return nil, fmt.Errorf("store mapping: %w", err)
	}
	return m, nil
}

func roleOrDefault(role string) string {
	if role == "" {
		return RoleCustomerAdmin
	}
	return role
}
