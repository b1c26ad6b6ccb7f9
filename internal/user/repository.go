package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

type Repository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewRepository(db *sql.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Repository{db: db, timeout: timeout}
}

const profileColumns = `id, username, email, fullname, avatar_url, cover_image_url, created_at, updated_at`

func (r *Repository) Exists(ctx context.Context, username, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR email = $2)
	`, username, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}

	return exists, nil
}

func (r *Repository) Create(ctx context.Context, input NewUser) (Profile, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Profile{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return Profile{}, fmt.Errorf("hash password: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	profile := Profile{
		ID:            id.String(),
		Username:      input.Username,
		Email:         input.Email,
		FullName:      input.FullName,
		AvatarURL:     input.AvatarURL,
		CoverImageURL: input.CoverImageURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, fullname, avatar_url, cover_image_url, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, profile.ID, profile.Username, profile.Email, profile.FullName,
		profile.AvatarURL, profile.CoverImageURL, string(hash), now)
	if err != nil {
		// Exists is check-then-insert; the UNIQUE constraints are the arbiter
		// when two registrations race past it.
		if isUniqueViolation(err) {
			return Profile{}, ErrDuplicate
		}
		return Profile{}, fmt.Errorf("insert user: %w", err)
	}

	return profile, nil
}

func (r *Repository) PasswordHashByID(ctx context.Context, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query password hash: %w", err)
	}

	return hash, nil
}

func (r *Repository) UpdatePassword(ctx context.Context, id, plainPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, id, string(hash))
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return requireRow(res)
}

// UpdateAccount changes fullname and/or email; empty fields keep their current
// value.
func (r *Repository) UpdateAccount(ctx context.Context, id, fullname, email string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET fullname = COALESCE(NULLIF($2, ''), fullname),
		    email = COALESCE(NULLIF($3, ''), email),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+profileColumns+`
	`, id, fullname, email)

	return scanProfile(row, "update account")
}

func (r *Repository) UpdateAvatar(ctx context.Context, id, url string) (Profile, error) {
	return r.updateImage(ctx, id, "avatar_url", url)
}

func (r *Repository) UpdateCoverImage(ctx context.Context, id, url string) (Profile, error) {
	return r.updateImage(ctx, id, "cover_image_url", url)
}

func (r *Repository) updateImage(ctx context.Context, id, column, url string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		UPDATE users SET `+column+` = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+profileColumns+`
	`, id, url)

	return scanProfile(row, "update "+column)
}

// ChannelProfile resolves a channel page: the profile plus subscriber
// aggregates and whether the viewer subscribes to it. viewerID may be empty
// for anonymous viewers.
func (r *Repository) ChannelProfile(ctx context.Context, username, viewerID string) (Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var c Channel
	err := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.email, u.fullname, u.avatar_url, u.cover_image_url,
		       u.created_at, u.updated_at,
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
		       EXISTS(SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = $2)
		FROM users u
		WHERE u.username = $1
	`, username, viewerID).Scan(
		&c.ID, &c.Username, &c.Email, &c.FullName, &c.AvatarURL, &c.CoverImageURL,
		&c.CreatedAt, &c.UpdatedAt,
		&c.SubscriberCount, &c.SubscribedToCount, &c.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Channel{}, ErrNotFound
		}
		return Channel{}, fmt.Errorf("query channel profile: %w", err)
	}

	return c, nil
}

func (r *Repository) WatchHistory(ctx context.Context, userID string, limit int) ([]WatchEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT v.id, v.title, v.thumbnail_url, v.duration_seconds, h.watched_at,
		       o.username, o.fullname, o.avatar_url
		FROM watch_history h
		JOIN videos v ON v.id = h.video_id
		JOIN users o ON o.id = v.owner_id
		WHERE h.user_id = $1
		ORDER BY h.watched_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	entries := make([]WatchEntry, 0)
	for rows.Next() {
		var e WatchEntry
		if err := rows.Scan(
			&e.VideoID, &e.Title, &e.ThumbnailURL, &e.Duration, &e.WatchedAt,
			&e.Owner.Username, &e.Owner.FullName, &e.Owner.AvatarURL,
		); err != nil {
			return nil, fmt.Errorf("scan watch history entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch history: %w", err)
	}

	return entries, nil
}

// PruneWatchHistory deletes entries older than the retention window, in
// batches, for the maintenance endpoint.
func (r *Repository) PruneWatchHistory(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cutoff := time.Now().UTC().Add(-retention)
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT user_id, video_id
			FROM watch_history
			WHERE watched_at < $1
			ORDER BY watched_at ASC
			LIMIT $2
		)
		DELETE FROM watch_history h
		USING stale
		WHERE h.user_id = stale.user_id AND h.video_id = stale.video_id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("prune watch history: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune watch history rows affected: %w", err)
	}

	return affected, nil
}

func scanProfile(row *sql.Row, op string) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Username, &p.Email, &p.FullName, &p.AvatarURL, &p.CoverImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		// An account update can collide with another user's email.
		if isUniqueViolation(err) {
			return Profile{}, ErrDuplicate
		}
		return Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
