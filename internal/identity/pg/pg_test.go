package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"dachido.org/internal/identity"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestUserGet(t *testing.T) {
	store, mock := newMock(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"organization", "username", "password_hash", "role", "email", "created_at"}).
		AddRow("acme", "bob", "hash", "admin", "bob@acme.com", created)
	mock.ExpectQuery("from users where organization=").WithArgs("acme", "bob").WillReturnRows(rows)

	user, err := store.Users().Get(context.Background(), " Acme ", "bob")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if user.Organization != "acme" || user.Role != identity.RoleAdmin {
		t.Fatalf("unexpected user: %+v", user)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserGetNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("from users where organization=").WithArgs("acme", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"organization", "username", "password_hash", "role", "email", "created_at"}))

	_, err := store.Users().Get(context.Background(), "acme", "ghost")
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserCreateConflict(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into users").
		WithArgs("acme", "bob", "hash", "admin", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Users().Create(context.Background(), &identity.User{
		Organization: "acme",
		Username:     "bob",
		PasswordHash: "hash",
		Role:         identity.RoleAdmin,
		CreatedAt:    time.Now(),
	})
	if !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserDeleteNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("delete from users").WithArgs("acme", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Users().Delete(context.Background(), "acme", "ghost"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserFindByEmail(t *testing.T) {
	store, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"organization", "username", "password_hash", "role", "email", "created_at"}).
		AddRow("acme", "carol", "hash", "admin", "carol@acme.com", time.Now())
	mock.ExpectQuery("from users where lower\\(email\\)=").WithArgs("carol@acme.com").WillReturnRows(rows)

	user, err := store.Users().FindByEmail(context.Background(), " Carol@Acme.com ")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.Username != "carol" {
		t.Fatalf("unexpected user: %+v", user)
	}

	// Blank email short-circuits without touching the database.
	if _, err := store.Users().FindByEmail(context.Background(), "  "); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank email, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMappingGetByExternalID(t *testing.T) {
	store, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"external_id", "email", "organization", "username", "role", "created_at"}).
		AddRow("ext-7", "bob@acme.com", "acme", "bob", "customer_admin", time.Now())
	mock.ExpectQuery("from identity_mappings where map_key=").WithArgs("id:ext-7").WillReturnRows(rows)

	m, err := store.Mappings().GetByExternalID(context.Background(), "ext-7")
	if err != nil {
		t.Fatalf("GetByExternalID: %v", err)
	}
	if m.Organization != "acme" || m.Username != "bob" {
		t.Fatalf("unexpected mapping: %+v", m)
	}
}

func TestMappingCreate(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into identity_mappings").
		WithArgs("id:ext-7", "ext-7", "bob@acme.com", "acme", "bob", "customer_admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into identity_mappings").
		WithArgs("email:bob@acme.com", "ext-7", "bob@acme.com", "acme", "bob", "customer_admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.Mappings().Create(context.Background(), &identity.Mapping{
		ExternalID:   "ext-7",
		Email:        "bob@acme.com",
		Organization: "acme",
		Username:     "bob",
		Role:         identity.RoleCustomerAdmin,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMappingCreateConflict(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into identity_mappings").
		WithArgs("id:ext-7", "ext-7", "bob@acme.com", "acme", "bob", "customer_admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Mappings().Create(context.Background(), &identity.Mapping{
		ExternalID:   "ext-7",
		Email:        "bob@acme.com",
		Organization: "acme",
		Username:     "bob",
		Role:         identity.RoleCustomerAdmin,
		CreatedAt:    time.Now(),
	})
	if !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
