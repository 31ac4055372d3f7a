package storage

import (
	"context"
	"log/slog"
	"time"

	"filedrop/internal/server/database"
)

// CleanupService periodically removes expired session rows and finishes the
// physical cleanup of tombstoned links whose files or directories survived
// a partial delete. Link expiry itself is a read-time computation and is
// never decided here.
type CleanupService struct {
	links    *database.LinkRepository
	files    *database.FileRepository
	sessions *database.SessionRepository
	store    Store
	interval time.Duration
	done     chan struct{}
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(links *database.LinkRepository, files *database.FileRepository, sessions *database.SessionRepository, store Store, interval time.Duration) *CleanupService {
	return &CleanupService{
		links:    links,
		files:    files,
		sessions: sessions,
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup loop in a background goroutine.
func (cs *CleanupService) Start(ctx context.Context) {
	slog.Info("cleanup service started", "interval", cs.interval)

	go func() {
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		// Run once immediately on start
		cs.runCleanup(ctx)

		for {
			select {
			case <-ticker.C:
				cs.runCleanup(ctx)
			case <-ctx.Done():
				slog.Info("cleanup service stopping")
				close(cs.done)
				return
			}
		}
	}()
}

// Wait blocks until the cleanup service has fully stopped.
func (cs *CleanupService) Wait() {
	<-cs.done
}

func (cs *CleanupService) runCleanup(ctx context.Context) {
	if n, err := cs.sessions.DeleteExpired(ctx); err != nil {
		slog.Error("failed to delete expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}

	cs.sweepTombstoned(ctx)
}

// sweepTombstoned retries the best-effort part of link deletion: dropping
// any file rows and the on-disk directory a tombstoned link left behind.
func (cs *CleanupService) sweepTombstoned(ctx context.Context) {
	links, err := cs.links.ListTombstoned(ctx)
	if err != nil {
		slog.Error("failed to list tombstoned links", "error", err)
		return
	}

	for _, link := range links {
		remaining, err := cs.files.CountByLink(ctx, link.ID)
		if err != nil {
			slog.Error("failed to count leftover uploads",
				"link_id", link.ID, "error", err)
			continue
		}
		if remaining > 0 {
			if err := cs.files.DeleteByLink(ctx, link.ID); err != nil {
				slog.Error("failed to delete leftover upload records",
					"link_id", link.ID, "error", err)
				continue
			}
			slog.Info("removed leftover upload records",
				"link_id", link.ID, "count", remaining)
		}

		if err := cs.store.DeleteLinkDir(link.ID); err != nil {
			slog.Error("failed to delete link directory",
				"link_id", link.ID, "error", err)
		}
	}
}
