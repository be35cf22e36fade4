package identity

import "context"

// Store describes the persistence capabilities the identity core needs. The
// core makes no assumption about the backing technology, only that a single
// write is atomic from the store's point of view.
type Store interface {
	Users() UserStore
	Organizations() OrganizationStore
	Mappings() MappingStore
}

// UserStore manages User records keyed by (organization, username).
type UserStore interface {
	Get(ctx context.Context, organization, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	// FindByEmail matches the stored email case-insensitively.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Create fails with ErrConflict when the key already exists.
	Create(ctx context.Context, u *User) error
	// Put overwrites the record at its key.
	Put(ctx context.Context, u *User) error
	Delete(ctx context.Context, organization, username string) error
}

// OrganizationStore manages tenant metadata keyed by lowercase name.
type OrganizationStore interface {
	Get(ctx context.Context, name string) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
	// Create fails with ErrConflict when the name already exists.
	Create(ctx context.Context, org *Organization) error
}

// MappingStore manages the two index entries of each logical mapping.
type MappingStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*Mapping, error)
	GetByEmail(ctx context.Context, email string) (*Mapping, error)
	// Create writes both index entries but never overwrites: when the
	// id-keyed entry already exists it fails with ErrConflict, leaving the
	// stored mapping untouched. This is what makes lazy creation safe to
	// race.
	Create(ctx context.Context, m *Mapping) error
	// Put overwrites both index entries; used by explicit administrative
	// assignment.
	Put(ctx context.Context, m *Mapping) error
}
