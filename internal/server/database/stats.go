package database

import (
	"context"
	"fmt"
)

// GetStats returns aggregate server statistics.
func (r *LinkRepository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (
				WHERE deleted_at IS NULL
				  AND (expires_at IS NULL OR expires_at > NOW())
				  AND quota_used < quota_total
			),
			(SELECT COUNT(*) FROM uploaded_files),
			(SELECT COALESCE(SUM(size_bytes), 0) FROM uploaded_files)
		FROM upload_links
	`).Scan(
		&stats.TotalLinks,
		&stats.ActiveLinks,
		&stats.TotalFiles,
		&stats.BytesStored,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}
