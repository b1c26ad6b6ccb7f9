package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultStoreTimeout = 3 * time.Second

// Repository implements IdentityStore over Postgres. The refresh credential
// lives on the user row: NULL means no active session. Every call runs under a
// bounded timeout and transport failures wrap ErrStoreUnavailable.
type Repository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewRepository(db *sql.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Repository{db: db, timeout: timeout}
}

const identityColumns = `
	id, username, email, fullname, avatar_url, cover_image_url,
	password_hash, refresh_token, refresh_expires_at, created_at, updated_at
`

func (r *Repository) FindByIdentifier(ctx context.Context, usernameOrEmail string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM users
		WHERE username = $1 OR email = $1
	`, usernameOrEmail)

	return scanIdentity(row, "query user by identifier")
}

func (r *Repository) FindByID(ctx context.Context, id string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM users
		WHERE id = $1
	`, id)

	return scanIdentity(row, "query user by id")
}

// SetRefreshToken unconditionally overwrites the stored credential; used at
// login, where a fresh password check authorizes replacing any prior session.
func (r *Repository) SetRefreshToken(ctx context.Context, id, value string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = $2, refresh_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, value, expiresAt.UTC())
	if err != nil {
		return storeError("set refresh token", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storeError("set refresh token rows affected", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// CompareAndSwapRefreshToken is the sole synchronization point for rotation.
// The condition and the write happen in one statement, so of two concurrent
// rotations presenting the same old value only one can see affected == 1.
func (r *Repository) CompareAndSwapRefreshToken(ctx context.Context, id, expectedOld, newValue string, expiresAt time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = $3, refresh_expires_at = $4, updated_at = NOW()
		WHERE id = $1 AND refresh_token = $2
	`, id, expectedOld, newValue, expiresAt.UTC())
	if err != nil {
		return false, storeError("compare-and-swap refresh token", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, storeError("compare-and-swap rows affected", err)
	}

	return affected == 1, nil
}

// ClearRefreshToken sets the credential to its absent state. Clearing an
// already-absent credential succeeds.
func (r *Repository) ClearRefreshToken(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = NULL, refresh_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return storeError("clear refresh token", err)
	}

	return nil
}

// ExpireStaleSessions clears credentials whose stored expiry has passed.
// Validity checks never consult refresh_expires_at; it exists only so
// abandoned sessions do not linger forever.
func (r *Repository) ExpireStaleSessions(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM users
			WHERE refresh_expires_at IS NOT NULL AND refresh_expires_at < NOW()
			LIMIT $1
		)
		UPDATE users u
		SET refresh_token = NULL, refresh_expires_at = NULL, updated_at = NOW()
		FROM stale
		WHERE u.id = stale.id
	`, batchSize)
	if err != nil {
		return 0, storeError("expire stale sessions", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("expire stale sessions rows affected", err)
	}

	return affected, nil
}

func scanIdentity(row *sql.Row, op string) (Identity, error) {
	var identity Identity
	var refreshToken sql.NullString
	var refreshExpiresAt sql.NullTime

	err := row.Scan(
		&identity.ID, &identity.Username, &identity.Email, &identity.FullName,
		&identity.AvatarURL, &identity.CoverImageURL, &identity.PasswordHash,
		&refreshToken, &refreshExpiresAt, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrAccountNotFound
		}
		return Identity{}, storeError(op, err)
	}

	if refreshToken.Valid {
		value := refreshToken.String
		identity.RefreshToken = &value
	}
	if refreshExpiresAt.Valid {
		value := refreshExpiresAt.Time.UTC()
		identity.RefreshExpiresAt = &value
	}

	return identity, nil
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
