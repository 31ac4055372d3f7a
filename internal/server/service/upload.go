package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"filedrop/internal/server/database"
	"filedrop/internal/server/storage"

	"github.com/google/uuid"
)

// Sentinel errors for the service layer.
var (
	ErrLinkNotFound    = errors.New("upload link not found")
	ErrLinkExpired     = errors.New("upload link has expired")
	ErrLinkDeleted     = errors.New("upload link has been deleted")
	ErrQuotaExceeded   = errors.New("upload link quota exceeded")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrSizeMismatch    = errors.New("uploaded size does not match declared size")
	ErrFileNotFound    = errors.New("uploaded file not found")
	ErrInvalidQuota    = errors.New("quota must be greater than zero")
	ErrInvalidName     = errors.New("link name must not be empty")
)

// LinkStore is the persistence surface the upload service needs for links.
// Reserve and Release carry the quota atomicity contract: Reserve must be
// safe under arbitrary concurrent invocation for the same token and either
// charge exactly the requested bytes or fail without mutation.
type LinkStore interface {
	Create(ctx context.Context, link *database.UploadLink) error
	GetByToken(ctx context.Context, token string) (*database.UploadLink, error)
	GetByID(ctx context.Context, id string) (*database.UploadLink, error)
	List(ctx context.Context) ([]*database.UploadLink, error)
	Reserve(ctx context.Context, token string, bytes int64) (*database.UploadLink, error)
	Release(ctx context.Context, id string, bytes int64) error
	Tombstone(ctx context.Context, id string) error
	GetStats(ctx context.Context) (*database.Stats, error)
}

// FileStore is the persistence surface for uploaded file metadata.
type FileStore interface {
	Create(ctx context.Context, f *database.UploadedFile) error
	GetByID(ctx context.Context, id string) (*database.UploadedFile, error)
	List(ctx context.Context) ([]*database.UploadedFile, error)
	ListByLink(ctx context.Context, linkID string) ([]*database.UploadedFile, error)
	Delete(ctx context.Context, id string) error
	DeleteByLink(ctx context.Context, linkID string) error
}

// UploadResult is returned after a successful upload.
type UploadResult struct {
	FileID     string    `json:"file_id"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// LinkInfo is the guest-facing view of a link.
type LinkInfo struct {
	Name           string `json:"name"`
	State          string `json:"state"`
	QuotaTotal     int64  `json:"quota_total_bytes"`
	QuotaRemaining int64  `json:"quota_remaining_bytes"`
}

// UploadService contains the business logic for the link and upload
// lifecycle. All quota coordination is delegated to the LinkStore's
// transactional guarantees; the service never takes in-process locks.
type UploadService struct {
	links LinkStore
	files FileStore
	store storage.Store
}

// NewUploadService creates a new upload service.
func NewUploadService(links LinkStore, files FileStore, store storage.Store) *UploadService {
	return &UploadService{
		links: links,
		files: files,
		store: store,
	}
}

// CreateLink mints a new upload link with the given byte quota and an
// optional expiry offset from now.
func (s *UploadService) CreateLink(ctx context.Context, name string, quotaBytes int64, expiresIn *time.Duration) (*database.UploadLink, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if quotaBytes <= 0 {
		return nil, ErrInvalidQuota
	}

	token, err := generateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate link token: %w", err)
	}

	now := time.Now().UTC()
	link := &database.UploadLink{
		ID:         uuid.NewString(),
		Token:      token,
		Name:       name,
		QuotaTotal: quotaBytes,
		QuotaUsed:  0,
		CreatedAt:  now,
	}
	if expiresIn != nil {
		t := now.Add(*expiresIn)
		link.ExpiresAt = &t
	}

	if err := s.links.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to create upload link: %w", err)
	}

	slog.Info("upload link created",
		"link_id", link.ID,
		"name", link.Name,
		"quota_bytes", link.QuotaTotal,
		"expires_at", link.ExpiresAt,
	)
	return link, nil
}

// ResolveLink resolves a token to the guest-facing link view.
func (s *UploadService) ResolveLink(ctx context.Context, token string) (*LinkInfo, error) {
	link, err := s.links.GetByToken(ctx, token)
	if err != nil {
		return nil, mapLinkError(err)
	}
	return &LinkInfo{
		Name:           link.Name,
		State:          link.State(time.Now()).String(),
		QuotaTotal:     link.QuotaTotal,
		QuotaRemaining: link.QuotaRemaining(),
	}, nil
}

// ProcessUpload handles an incoming guest upload end to end:
//
//	reserve quota -> write file -> record metadata
//
// The reservation commits before the disk write starts so a slow upload
// never holds a row lock. Every later failure releases the reservation and
// removes any disk artifact, keeping quota_used equal to the byte sum of
// persisted files at all observable times.
func (s *UploadService) ProcessUpload(ctx context.Context, token, filename string, data io.Reader, declaredSize int64) (*UploadResult, error) {
	if declaredSize < 0 {
		return nil, fmt.Errorf("%w: declared size is negative", ErrSizeMismatch)
	}

	// Fail before charging quota when the name can never be accepted.
	if _, err := storage.SanitizeFilename(filename); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilename, err)
	}

	link, err := s.links.Reserve(ctx, token, declaredSize)
	if err != nil {
		return nil, mapLinkError(err)
	}

	stored, display, written, err := s.store.Save(link.ID, filename, data, declaredSize)
	if err != nil {
		s.release(ctx, link.ID, declaredSize)
		switch {
		case errors.Is(err, storage.ErrInvalidFilename):
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilename, err)
		case errors.Is(err, storage.ErrSizeMismatch):
			return nil, fmt.Errorf("%w: %v", ErrSizeMismatch, err)
		}
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	file := &database.UploadedFile{
		ID:               uuid.NewString(),
		LinkID:           link.ID,
		OriginalFilename: display,
		StoredFilename:   stored,
		SizeBytes:        written,
		UploadedAt:       time.Now().UTC(),
	}

	if err := s.files.Create(ctx, file); err != nil {
		// Undo in reverse order: remove the artifact, then the charge.
		if derr := s.store.Delete(link.ID, stored); derr != nil {
			slog.Error("failed to remove file after metadata failure",
				"link_id", link.ID, "stored_filename", stored, "error", derr)
		}
		s.release(ctx, link.ID, declaredSize)
		return nil, fmt.Errorf("failed to create upload record: %w", err)
	}

	slog.Info("upload processed",
		"file_id", file.ID,
		"link_id", link.ID,
		"filename", display,
		"size_bytes", written,
	)

	return &UploadResult{
		FileID:     file.ID,
		Filename:   display,
		SizeBytes:  written,
		UploadedAt: file.UploadedAt,
	}, nil
}

// release rolls back a quota reservation. Failure here is logged, not
// surfaced: the caller is already on an error path and the cleanup pass
// cannot do better by knowing.
func (s *UploadService) release(ctx context.Context, linkID string, bytes int64) {
	if err := s.links.Release(ctx, linkID, bytes); err != nil {
		slog.Error("failed to release quota reservation",
			"link_id", linkID, "bytes", bytes, "error", err)
	}
}

// ListLinks returns all live links.
func (s *UploadService) ListLinks(ctx context.Context) ([]*database.UploadLink, error) {
	return s.links.List(ctx)
}

// GetLink returns one link by ID.
func (s *UploadService) GetLink(ctx context.Context, id string) (*database.UploadLink, error) {
	link, err := s.links.GetByID(ctx, id)
	if err != nil {
		return nil, mapLinkError(err)
	}
	return link, nil
}

// ListLinkFiles returns the uploads belonging to one link.
func (s *UploadService) ListLinkFiles(ctx context.Context, linkID string) ([]*database.UploadedFile, error) {
	if _, err := s.links.GetByID(ctx, linkID); err != nil {
		return nil, mapLinkError(err)
	}
	return s.files.ListByLink(ctx, linkID)
}

// ListUploads returns all uploads.
func (s *UploadService) ListUploads(ctx context.Context) ([]*database.UploadedFile, error) {
	return s.files.List(ctx)
}

// DownloadFile returns the on-disk path and display filename for an upload.
func (s *UploadService) DownloadFile(ctx context.Context, fileID string) (path, filename string, err error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return "", "", ErrFileNotFound
		}
		return "", "", err
	}

	path, err = s.store.FilePath(file.LinkID, file.StoredFilename)
	if err != nil {
		return "", "", fmt.Errorf("file missing from storage: %w", err)
	}

	return path, file.OriginalFilename, nil
}

// DeleteUpload removes one uploaded file: the disk artifact, then the
// metadata row, then the quota charge. The ordering guarantees a crash
// mid-sequence never leaves a live record pointing at a removed file.
// Deleting an unknown or already-deleted ID returns ErrFileNotFound.
func (s *UploadService) DeleteUpload(ctx context.Context, fileID string) error {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return ErrFileNotFound
		}
		return err
	}

	if err := s.store.Delete(file.LinkID, file.StoredFilename); err != nil {
		if !errors.Is(err, storage.ErrFileNotFound) {
			return fmt.Errorf("failed to delete file from storage: %w", err)
		}
		// Artifact already gone; removing the record is still the right move.
		slog.Warn("stored file already missing",
			"file_id", file.ID, "stored_filename", file.StoredFilename)
	}

	if err := s.files.Delete(ctx, fileID); err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to delete upload record: %w", err)
	}

	s.release(ctx, file.LinkID, file.SizeBytes)

	slog.Info("upload deleted",
		"file_id", file.ID,
		"link_id", file.LinkID,
		"size_bytes", file.SizeBytes,
	)
	return nil
}

// DeleteLink tombstones a link and then clears its uploads. The tombstone
// lands first so the link can never be observed live with its files gone;
// physical cleanup is best-effort and the cleanup service retries leftovers.
func (s *UploadService) DeleteLink(ctx context.Context, linkID string) error {
	if err := s.links.Tombstone(ctx, linkID); err != nil {
		return mapLinkError(err)
	}

	if err := s.files.DeleteByLink(ctx, linkID); err != nil {
		slog.Error("failed to delete upload records for link",
			"link_id", linkID, "error", err)
	}
	if err := s.store.DeleteLinkDir(linkID); err != nil {
		slog.Error("failed to delete link directory",
			"link_id", linkID, "error", err)
	}

	slog.Info("upload link deleted", "link_id", linkID)
	return nil
}

// GetStats returns aggregate server statistics.
func (s *UploadService) GetStats(ctx context.Context) (*database.Stats, error) {
	return s.links.GetStats(ctx)
}

// mapLinkError translates database-layer link errors into service sentinels.
func mapLinkError(err error) error {
	switch {
	case errors.Is(err, database.ErrLinkNotFound):
		return ErrLinkNotFound
	case errors.Is(err, database.ErrLinkExpired):
		return ErrLinkExpired
	case errors.Is(err, database.ErrLinkDeleted):
		return ErrLinkDeleted
	case errors.Is(err, database.ErrQuotaExceeded):
		return ErrQuotaExceeded
	}
	return err
}
