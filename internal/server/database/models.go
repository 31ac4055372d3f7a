package database

import "time"

// LinkState is the effective state of an upload link, derived from the
// stored row and the current time. It is never persisted.
type LinkState int

const (
	LinkActive LinkState = iota
	LinkExhausted
	LinkExpired
	LinkDeleted
)

func (s LinkState) String() string {
	switch s {
	case LinkActive:
		return "active"
	case LinkExhausted:
		return "exhausted"
	case LinkExpired:
		return "expired"
	case LinkDeleted:
		return "deleted"
	}
	return "unknown"
}

// UploadLink represents a token-addressable, quota-bounded upload
// destination created by an administrator.
type UploadLink struct {
	ID         string
	Token      string
	Name       string
	QuotaTotal int64
	QuotaUsed  int64
	CreatedAt  time.Time
	ExpiresAt  *time.Time // nil means the link never expires
	DeletedAt  *time.Time // non-nil tombstone
}

// State derives the effective link state at the given instant.
// Precedence: deleted beats expired beats exhausted.
func (l *UploadLink) State(now time.Time) LinkState {
	switch {
	case l.DeletedAt != nil:
		return LinkDeleted
	case l.ExpiresAt != nil && now.After(*l.ExpiresAt):
		return LinkExpired
	case l.QuotaUsed >= l.QuotaTotal:
		return LinkExhausted
	}
	return LinkActive
}

// QuotaRemaining reports the bytes still available on the link.
func (l *UploadLink) QuotaRemaining() int64 {
	if l.QuotaUsed >= l.QuotaTotal {
		return 0
	}
	return l.QuotaTotal - l.QuotaUsed
}

// UploadedFile is the metadata row for a file deposited through a link.
// StoredFilename is system-generated; OriginalFilename is untrusted and
// used for display only.
type UploadedFile struct {
	ID               string
	LinkID           string
	OriginalFilename string
	StoredFilename   string
	SizeBytes        int64
	UploadedAt       time.Time
}

// AdminUser is an administrator account. Passwords are stored as bcrypt
// hashes only.
type AdminUser struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is a store-backed admin session with a fixed absolute lifetime.
type Session struct {
	Token     string
	AdminID   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Stats holds aggregate server statistics.
type Stats struct {
	TotalLinks  int64
	ActiveLinks int64
	TotalFiles  int64
	BytesStored int64
}
