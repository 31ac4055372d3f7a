package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var (
	ErrLinkNotFound  = errors.New("upload link not found")
	ErrLinkExpired   = errors.New("upload link has expired")
	ErrLinkDeleted   = errors.New("upload link has been deleted")
	ErrQuotaExceeded = errors.New("upload link quota exceeded")
)

const linkColumns = `id, token, name, quota_total, quota_used, created_at, expires_at, deleted_at`

// LinkRepository provides CRUD and quota operations for upload links.
type LinkRepository struct {
	db *DB
}

// NewLinkRepository creates a new LinkRepository.
func NewLinkRepository(db *DB) *LinkRepository {
	return &LinkRepository{db: db}
}

func scanLink(row pgx.Row) (*UploadLink, error) {
	link := &UploadLink{}
	err := row.Scan(
		&link.ID,
		&link.Token,
		&link.Name,
		&link.QuotaTotal,
		&link.QuotaUsed,
		&link.CreatedAt,
		&link.ExpiresAt,
		&link.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return link, nil
}

// Create inserts a new upload link record.
func (r *LinkRepository) Create(ctx context.Context, link *UploadLink) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO upload_links (
			id, token, name, quota_total, quota_used, created_at, expires_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		link.ID,
		link.Token,
		link.Name,
		link.QuotaTotal,
		link.QuotaUsed,
		link.CreatedAt,
		link.ExpiresAt,
		link.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload link: %w", err)
	}
	return nil
}

// GetByToken retrieves an upload link by its public token.
func (r *LinkRepository) GetByToken(ctx context.Context, token string) (*UploadLink, error) {
	link, err := scanLink(r.db.Pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM upload_links WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get upload link: %w", err)
	}
	return link, nil
}

// GetByID retrieves an upload link by its ID.
func (r *LinkRepository) GetByID(ctx context.Context, id string) (*UploadLink, error) {
	link, err := scanLink(r.db.Pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM upload_links WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get upload link: %w", err)
	}
	return link, nil
}

// List returns all non-tombstoned upload links, newest first.
func (r *LinkRepository) List(ctx context.Context) ([]*UploadLink, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+linkColumns+` FROM upload_links WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query upload links: %w", err)
	}
	defer rows.Close()

	var links []*UploadLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Reserve atomically charges bytes against the link identified by token.
//
// The whole read-check-increment runs in one transaction with the link row
// locked, so concurrent reservations against the same link serialize here
// and the quota invariant holds without any in-process locking. The caller
// must treat the reservation as provisional and call Release if the paired
// file write does not complete.
func (r *LinkRepository) Reserve(ctx context.Context, token string, bytes int64) (*UploadLink, error) {
	var reserved *UploadLink
	err := withTxRetry(ctx, func() error {
		tx, err := r.db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin reservation: %w", err)
		}
		defer tx.Rollback(ctx)

		link, err := scanLink(tx.QueryRow(ctx,
			`SELECT `+linkColumns+` FROM upload_links WHERE token = $1 FOR UPDATE`, token))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrLinkNotFound
			}
			return fmt.Errorf("failed to lock upload link: %w", err)
		}

		switch link.State(time.Now()) {
		case LinkDeleted:
			return ErrLinkDeleted
		case LinkExpired:
			return ErrLinkExpired
		case LinkExhausted:
			return ErrQuotaExceeded
		}

		if link.QuotaUsed+bytes > link.QuotaTotal {
			return ErrQuotaExceeded
		}

		if _, err := tx.Exec(ctx,
			"UPDATE upload_links SET quota_used = quota_used + $1 WHERE id = $2",
			bytes, link.ID,
		); err != nil {
			return fmt.Errorf("failed to reserve quota: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit reservation: %w", err)
		}

		link.QuotaUsed += bytes
		reserved = link
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

// Release atomically returns bytes to the link's quota. Used to roll back a
// reservation whose paired file write failed, and on file deletion. The
// decrement is clamped at zero so the quota invariant survives a stray
// double release.
func (r *LinkRepository) Release(ctx context.Context, id string, bytes int64) error {
	return withTxRetry(ctx, func() error {
		tag, err := r.db.Pool.Exec(ctx,
			"UPDATE upload_links SET quota_used = GREATEST(quota_used - $1, 0) WHERE id = $2",
			bytes, id,
		)
		if err != nil {
			return fmt.Errorf("failed to release quota: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrLinkNotFound
		}
		return nil
	})
}

// Tombstone marks a link as deleted without removing the row, so its token
// keeps resolving to the deleted state. Idempotent on already-deleted links.
func (r *LinkRepository) Tombstone(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE upload_links SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return fmt.Errorf("failed to tombstone upload link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already tombstoned; distinguish for the caller.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ListTombstoned returns links that have been tombstoned, for physical
// cleanup of any leftover files.
func (r *LinkRepository) ListTombstoned(ctx context.Context) ([]*UploadLink, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+linkColumns+` FROM upload_links WHERE deleted_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tombstoned links: %w", err)
	}
	defer rows.Close()

	var links []*UploadLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tombstoned link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
