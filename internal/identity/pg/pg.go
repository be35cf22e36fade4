// Package pg implements identity.Store on PostgreSQL through database/sql
// (pgx stdlib driver). Each logical mapping is stored as two rows, one per
// index key, so lookups by external id and by email stay single-row reads.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"dachido.org/internal/identity"
)

var _ identity.Store = (*Store)(nil)

// Store wraps a sql.DB.
type Store struct {
	db *sql.DB
}

// New constructs a Store.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Users() identity.UserStore                 { return &userStore{db: s.db} }
func (s *Store) Organizations() identity.OrganizationStore { return &orgStore{db: s.db} }
func (s *Store) Mappings() identity.MappingStore           { return &mappingStore{db: s.db} }

// User store ----------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `organization, username, password_hash, coalesce(nullif(role, ''), 'customer_admin'), coalesce(email, ''), created_at`

func scanUser(row interface{ Scan(...any) error }) (*identity.User, error) {
	var u identity.User
	if err := row.Scan(&u.Organization, &u.Username, &u.PasswordHash, &u.Role, &u.Email, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Get(ctx context.Context, organization, username string) (*identity.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where organization=$1 and username=$2`,
		strings.ToLower(strings.TrimSpace(organization)), strings.TrimSpace(username))
	return scanUser(row)
}

func (s *userStore) List(ctx context.Context) ([]*identity.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by organization, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*identity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, identity.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email)=$1 limit 1`, email)
	return scanUser(row)
}

func (s *userStore) Create(ctx context.Context, u *identity.User) error {
	res, err := s.db.ExecContext(ctx,
		`insert into users(organization, username, password_hash, role, email, created_at)
		 values($1,$2,$3,$4,$5,$6) on conflict (organization, username) do nothing`,
		strings.ToLower(u.Organization), u.Username, u.PasswordHash, u.Role, u.Email, u.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return identity.ErrConflict
	}
	return nil
}

func (s *userStore) Put(ctx context.Context, u *identity.User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(organization, username, password_hash, role, email, created_at)
		 values($1,$2,$3,$4,$5,$6)
		 on conflict (organization, username)
		 do update set password_hash=excluded.password_hash, role=excluded.role, email=excluded.email`,
		strings.ToLower(u.Organization), u.Username, u.PasswordHash, u.Role, u.Email, u.CreatedAt)
	return err
}

func (s *userStore) Delete(ctx context.Context, organization, username string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from users where organization=$1 and username=$2`,
		strings.ToLower(strings.TrimSpace(organization)), strings.TrimSpace(username))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// Organization store --------------------------------------------------------

type orgStore struct{ db *sql.DB }

func (s *orgStore) Get(ctx context.Context, name string) (*identity.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select name, display_name, metadata, created_at from organizations where name=$1`,
		strings.ToLower(strings.TrimSpace(name)))
	return scanOrganization(row)
}

func (s *orgStore) List(ctx context.Context) ([]*identity.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`select name, display_name, metadata, created_at from organizations order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []*identity.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (s *orgStore) Create(ctx context.Context, org *identity.Organization) error {
	meta, _ := json.Marshal(org.Metadata)
	res, err := s.db.ExecContext(ctx,
		`insert into organizations(name, display_name, metadata, created_at)
		 values($1,$2,$3,$4) on conflict (name) do nothing`,
		strings.ToLower(org.Name), org.DisplayName, meta, org.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return identity.ErrConflict
	}
	return nil
}

func scanOrganization(row interface{ Scan(...any) error }) (*identity.Organization, error) {
	var (
		org      identity.Organization
		metadata []byte
	)
	if err := row.Scan(&org.Name, &org.DisplayName, &metadata, &org.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(metadata, &org.Metadata)
	return &org, nil
}

// Mapping store -------------------------------------------------------------

type mappingStore struct{ db *sql.DB }

const mappingColumns = `external_id, coalesce(email, ''), organization, username, role, created_at`

func scanMapping(row interface{ Scan(...any) error }) (*identity.Mapping, error) {
	var m identity.Mapping
	if err := row.Scan(&m.ExternalID, &m.Email, &m.Organization, &m.Username, &m.Role, &m.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *mappingStore) GetByExternalID(ctx context.Context, externalID string) (*identity.Mapping, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+mappingColumns+` from identity_mappings where map_key=$1`,
		"id:"+externalID)
	return scanMapping(row)
}

func (s *mappingStore) GetByEmail(ctx context.Context, email string) (*identity.Mapping, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+mappingColumns+` from identity_mappings where map_key=$1`,
		"email:"+identity.NormalizeEmail(email))
	return scanMapping(row)
}

// Create inserts both index rows without overwriting. The id-keyed row
// decides the race: when it already exists nothing is written and
// ErrConflict tells the caller to re-read.
func (s *mappingStore) Create(ctx context.Context, m *identity.Mapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`insert into identity_mappings(map_key, external_id, email, organization, username, role, created_at)
		 values($1,$2,$3,$4,$5,$6,$7) on conflict (map_key) do nothing`,
		"id:"+m.ExternalID, m.ExternalID, m.Email, m.Organization, m.Username, m.Role, m.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return identity.ErrConflict
	}
	if m.Email != "" {
		if _, err := tx.ExecContext(ctx,
			`insert into identity_mappings(map_key, external_id, email, organization, username, role, created_at)
			 values($1,$2,$3,$4,$5,$6,$7) on conflict (map_key) do nothing`,
			"email:"+m.Email, m.ExternalID, m.Email, m.Organization, m.Username, m.Role, m.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Put upserts both index rows in one transaction.
func (s *mappingStore) Put(ctx context.Context, m *identity.Mapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	keys := []string{"id:" + m.ExternalID}
	if m.Email != "" {
		keys = append(keys, "email:"+m.Email)
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`insert into identity_mappings(map_key, external_id, email, organization, username, role, created_at)
			 values($1,$2,$3,$4,$5,$6,$7)
			 on conflict (map_key)
			 do update set external_id=excluded.external_id, email=excluded.email,
			   organization=excluded.organization, username=excluded.username, role=excluded.role`,
			key, m.ExternalID, m.Email, m.Organization, m.Username, m.Role, m.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
