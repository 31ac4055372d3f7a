package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidFilename = errors.New("invalid filename")
	ErrSizeMismatch    = errors.New("uploaded size does not match declared size")
	ErrFileNotFound    = errors.New("file not found on disk")
)

// Store defines the interface for file storage backends.
// Every link gets its own isolated directory; stored filenames are always
// system-generated, never derived from user input.
type Store interface {
	// Save streams data into the link's directory under a generated name
	// and returns that name, the display-safe original name, and the byte
	// count actually written. The file only becomes visible under its
	// final name after the stream has been fully consumed; a stream error
	// or declared-size mismatch leaves nothing behind.
	Save(linkID, originalFilename string, data io.Reader, declaredSize int64) (stored, display string, written int64, err error)
	FilePath(linkID, storedFilename string) (string, error)
	Delete(linkID, storedFilename string) error
	DeleteLinkDir(linkID string) error
	EnsureRoot() error
}

// FileSystemStore stores uploaded files on the local filesystem under
// {basePath}/{linkID}/{storedFilename}.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureRoot creates the storage root directory if it doesn't exist.
func (fs *FileSystemStore) EnsureRoot() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// linkDir maps a link to its isolated directory. Link IDs are
// system-generated UUIDs, so directories for distinct links never overlap
// and never alias the root.
func (fs *FileSystemStore) linkDir(linkID string) string {
	return filepath.Join(fs.basePath, linkID)
}

// Save implements the write path: sanitize the untrusted name, generate a
// collision-free stored name, stream to a temporary file inside the link
// directory, then publish it with an atomic rename.
func (fs *FileSystemStore) Save(linkID, originalFilename string, data io.Reader, declaredSize int64) (string, string, int64, error) {
	display, err := SanitizeFilename(originalFilename)
	if err != nil {
		return "", "", 0, err
	}
	stored := generateStoredName(display)

	dir := fs.linkDir(linkID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", 0, fmt.Errorf("failed to create link directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", "", 0, fmt.Errorf("failed to write file: %w", err)
	}

	if declaredSize >= 0 && n != declaredSize {
		os.Remove(tmpPath)
		return "", "", 0, fmt.Errorf("%w: declared %d, wrote %d", ErrSizeMismatch, declaredSize, n)
	}

	finalPath := filepath.Join(dir, stored)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", "", 0, fmt.Errorf("failed to publish file: %w", err)
	}

	return stored, display, n, nil
}

// FilePath returns the absolute path to a stored file.
// Returns ErrFileNotFound if the file does not exist.
func (fs *FileSystemStore) FilePath(linkID, storedFilename string) (string, error) {
	path := filepath.Join(fs.linkDir(linkID), storedFilename)

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	return path, nil
}

// Delete removes a stored file from the link's directory.
func (fs *FileSystemStore) Delete(linkID, storedFilename string) error {
	path := filepath.Join(fs.linkDir(linkID), storedFilename)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}

// DeleteLinkDir removes a link's entire isolated directory tree.
// Removing a directory that was never created is not an error.
func (fs *FileSystemStore) DeleteLinkDir(linkID string) error {
	if err := os.RemoveAll(fs.linkDir(linkID)); err != nil {
		return fmt.Errorf("failed to delete link directory: %w", err)
	}
	return nil
}

// SanitizeFilename reduces an untrusted, user-supplied filename to a
// display-safe base name. The result is only ever stored as metadata; it is
// never used as a filesystem path.
func SanitizeFilename(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: contains null byte", ErrInvalidFilename)
	}

	// Normalize Windows-style backslashes before taking the base component,
	// which strips any directory traversal.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	if name == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("%w: empty after normalization", ErrInvalidFilename)
	}

	if len(name) > 255 {
		ext := filepath.Ext(name)
		// An oversized "extension" (last dot near the front of a very long
		// name) is not worth preserving and would leave no room for the stem.
		if len(ext) > 32 {
			ext = ""
		}
		name = name[:255-len(ext)] + ext
	}

	return name, nil
}

// generateStoredName produces a collision-free filesystem name: a random
// UUID, suffixed with a conservative extension taken from the sanitized
// original so downloads keep a usable type hint.
func generateStoredName(sanitized string) string {
	id := uuid.NewString()
	ext := safeExtension(sanitized)
	if ext == "" {
		return id
	}
	return id + ext
}

// safeExtension returns the original extension only when it is short and
// purely alphanumeric; anything else is dropped.
func safeExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || len(ext) > 10 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	if len(ext) == 1 {
		return ""
	}
	return ext
}
