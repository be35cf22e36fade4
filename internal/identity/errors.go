package identity

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown local user and a wrong
	// password; callers must not learn which field was wrong.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrUnresolved means an external assertion matched no user and no
	// mapping. Distinct from a hard failure: callers route it to the
	// organization/role assignment flow.
	ErrUnresolved = errors.New("identity: external identity not mapped")

	ErrNotFound   = errors.New("identity: not found")
	ErrConflict   = errors.New("identity: already exists")
	ErrValidation = errors.New("identity: invalid input")
	ErrSelfDelete = errors.New("identity: cannot delete own account")

	ErrTokenMalformed = errors.New("identity: token malformed")
	ErrTokenSignature = errors.New("identity: token signature invalid")
	ErrTokenExpired   = errors.New("identity: token expired")
)
