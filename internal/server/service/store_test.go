package service

// In-memory store fakes honoring the same contracts as the pgx-backed
// repositories, so the reservation/rollback pairing can be exercised
// without a database. Reserve holds a mutex across the read-check-increment,
// mirroring the row lock the real store takes.

import (
	"context"
	"sync"
	"time"

	"filedrop/internal/server/database"
)

type memLinkStore struct {
	mu    sync.Mutex
	links map[string]*database.UploadLink // keyed by ID
}

func newMemLinkStore() *memLinkStore {
	return &memLinkStore{links: make(map[string]*database.UploadLink)}
}

func (m *memLinkStore) byToken(token string) *database.UploadLink {
	for _, l := range m.links {
		if l.Token == token {
			return l
		}
	}
	return nil
}

func (m *memLinkStore) Create(_ context.Context, link *database.UploadLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *link
	m.links[link.ID] = &cp
	return nil
}

func (m *memLinkStore) GetByToken(_ context.Context, token string) (*database.UploadLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l := m.byToken(token); l != nil {
		cp := *l
		return &cp, nil
	}
	return nil, database.ErrLinkNotFound
}

func (m *memLinkStore) GetByID(_ context.Context, id string) (*database.UploadLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.links[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, database.ErrLinkNotFound
}

func (m *memLinkStore) List(_ context.Context) ([]*database.UploadLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.UploadLink
	for _, l := range m.links {
		if l.DeletedAt == nil {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memLinkStore) Reserve(_ context.Context, token string, bytes int64) (*database.UploadLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.byToken(token)
	if l == nil {
		return nil, database.ErrLinkNotFound
	}
	switch l.State(time.Now()) {
	case database.LinkDeleted:
		return nil, database.ErrLinkDeleted
	case database.LinkExpired:
		return nil, database.ErrLinkExpired
	case database.LinkExhausted:
		return nil, database.ErrQuotaExceeded
	}
	if l.QuotaUsed+bytes > l.QuotaTotal {
		return nil, database.ErrQuotaExceeded
	}
	l.QuotaUsed += bytes
	cp := *l
	return &cp, nil
}

func (m *memLinkStore) Release(_ context.Context, id string, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return database.ErrLinkNotFound
	}
	l.QuotaUsed -= bytes
	if l.QuotaUsed < 0 {
		l.QuotaUsed = 0
	}
	return nil
}

func (m *memLinkStore) Tombstone(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return database.ErrLinkNotFound
	}
	if l.DeletedAt == nil {
		now := time.Now().UTC()
		l.DeletedAt = &now
	}
	return nil
}

func (m *memLinkStore) GetStats(_ context.Context) (*database.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &database.Stats{}
	now := time.Now()
	for _, l := range m.links {
		stats.TotalLinks++
		if l.State(now) == database.LinkActive {
			stats.ActiveLinks++
		}
	}
	return stats, nil
}

// quotaUsed reads the current quota charge for assertions.
func (m *memLinkStore) quotaUsed(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[id].QuotaUsed
}

type memFileStore struct {
	mu         sync.Mutex
	files      map[string]*database.UploadedFile
	failCreate error // when set, Create fails with this error
}

func newMemFileStore() *memFileStore {
	return &memFileStore{files: make(map[string]*database.UploadedFile)}
}

func (m *memFileStore) Create(_ context.Context, f *database.UploadedFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	cp := *f
	m.files[f.ID] = &cp
	return nil
}

func (m *memFileStore) GetByID(_ context.Context, id string) (*database.UploadedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, database.ErrFileNotFound
}

func (m *memFileStore) List(_ context.Context) ([]*database.UploadedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.UploadedFile
	for _, f := range m.files {
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memFileStore) ListByLink(_ context.Context, linkID string) ([]*database.UploadedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.UploadedFile
	for _, f := range m.files {
		if f.LinkID == linkID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memFileStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return database.ErrFileNotFound
	}
	delete(m.files, id)
	return nil
}

func (m *memFileStore) DeleteByLink(_ context.Context, linkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.files {
		if f.LinkID == linkID {
			delete(m.files, id)
		}
	}
	return nil
}

type memAdminStore struct {
	mu     sync.Mutex
	admins map[string]*database.AdminUser
}

func newMemAdminStore() *memAdminStore {
	return &memAdminStore{admins: make(map[string]*database.AdminUser)}
}

func (m *memAdminStore) Create(_ context.Context, admin *database.AdminUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *admin
	m.admins[admin.ID] = &cp
	return nil
}

func (m *memAdminStore) GetByUsername(_ context.Context, username string) (*database.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admins {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, database.ErrAdminNotFound
}

func (m *memAdminStore) GetByID(_ context.Context, id string) (*database.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.admins[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, database.ErrAdminNotFound
}

func (m *memAdminStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	if !ok {
		return database.ErrAdminNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (m *memAdminStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.admins)), nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*database.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*database.Session)}
}

func (m *memSessionStore) Create(_ context.Context, s *database.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.Token] = &cp
	return nil
}

func (m *memSessionStore) Get(_ context.Context, token string) (*database.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[token]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, database.ErrSessionNotFound
}

func (m *memSessionStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *memSessionStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for token, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

func (m *memSessionStore) has(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[token]
	return ok
}

// Compile-time checks that the fakes satisfy the service interfaces.
var (
	_ LinkStore    = (*memLinkStore)(nil)
	_ FileStore    = (*memFileStore)(nil)
	_ AdminStore   = (*memAdminStore)(nil)
	_ SessionStore = (*memSessionStore)(nil)
)
