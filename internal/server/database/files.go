package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrFileNotFound = errors.New("uploaded file not found")

const fileColumns = `id, link_id, original_filename, stored_filename, size_bytes, uploaded_at`

// FileRepository provides CRUD operations for uploaded file metadata.
type FileRepository struct {
	db *DB
}

// NewFileRepository creates a new FileRepository.
func NewFileRepository(db *DB) *FileRepository {
	return &FileRepository{db: db}
}

func scanFile(row pgx.Row) (*UploadedFile, error) {
	f := &UploadedFile{}
	err := row.Scan(
		&f.ID,
		&f.LinkID,
		&f.OriginalFilename,
		&f.StoredFilename,
		&f.SizeBytes,
		&f.UploadedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Create inserts a new uploaded file record.
func (r *FileRepository) Create(ctx context.Context, f *UploadedFile) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO uploaded_files (
			id, link_id, original_filename, stored_filename, size_bytes, uploaded_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`,
		f.ID,
		f.LinkID,
		f.OriginalFilename,
		f.StoredFilename,
		f.SizeBytes,
		f.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create uploaded file record: %w", err)
	}
	return nil
}

// GetByID retrieves an uploaded file record by its ID.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*UploadedFile, error) {
	f, err := scanFile(r.db.Pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM uploaded_files WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get uploaded file: %w", err)
	}
	return f, nil
}

// List returns all uploaded file records, newest first.
func (r *FileRepository) List(ctx context.Context) ([]*UploadedFile, error) {
	return r.query(ctx,
		`SELECT `+fileColumns+` FROM uploaded_files ORDER BY uploaded_at DESC`)
}

// ListByLink returns the uploaded file records belonging to one link.
func (r *FileRepository) ListByLink(ctx context.Context, linkID string) ([]*UploadedFile, error) {
	return r.query(ctx,
		`SELECT `+fileColumns+` FROM uploaded_files WHERE link_id = $1 ORDER BY uploaded_at DESC`,
		linkID)
}

func (r *FileRepository) query(ctx context.Context, sql string, args ...any) ([]*UploadedFile, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploaded files: %w", err)
	}
	defer rows.Close()

	var files []*UploadedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan uploaded file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Delete removes an uploaded file record by ID.
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM uploaded_files WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete uploaded file record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// DeleteByLink removes all uploaded file records belonging to one link.
func (r *FileRepository) DeleteByLink(ctx context.Context, linkID string) error {
	_, err := r.db.Pool.Exec(ctx, "DELETE FROM uploaded_files WHERE link_id = $1", linkID)
	if err != nil {
		return fmt.Errorf("failed to delete uploaded file records: %w", err)
	}
	return nil
}

// CountByLink reports how many file records a link still owns.
func (r *FileRepository) CountByLink(ctx context.Context, linkID string) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM uploaded_files WHERE link_id = $1", linkID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count uploaded files: %w", err)
	}
	return n, nil
}
