package database

import (
	"testing"
	"time"
)

func TestUploadLinkState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		link UploadLink
		want LinkState
	}{
		{
			name: "active with quota and no expiry",
			link: UploadLink{QuotaTotal: 1000, QuotaUsed: 0},
			want: LinkActive,
		},
		{
			name: "active with future expiry",
			link: UploadLink{QuotaTotal: 1000, QuotaUsed: 500, ExpiresAt: &future},
			want: LinkActive,
		},
		{
			name: "exhausted when used equals total",
			link: UploadLink{QuotaTotal: 1000, QuotaUsed: 1000},
			want: LinkExhausted,
		},
		{
			name: "expired beats remaining quota",
			link: UploadLink{QuotaTotal: 1000, QuotaUsed: 0, ExpiresAt: &past},
			want: LinkExpired,
		},
		{
			name: "expired beats exhausted",
			link: UploadLink{QuotaTotal: 1000, QuotaUsed: 1000, ExpiresAt: &past},
			want: LinkExpired,
		},
		{
			name: "deleted beats everything",
			link: UploadLink{QuotaTotal: 1000, QuotaUsed: 1000, ExpiresAt: &past, DeletedAt: &past},
			want: LinkDeleted,
		},
		{
			name: "zero quota link is born exhausted",
			link: UploadLink{QuotaTotal: 0, QuotaUsed: 0},
			want: LinkExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.link.State(now); got != tt.want {
				t.Errorf("State() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUploadLinkStateAtExpiryBoundary(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	link := UploadLink{QuotaTotal: 1000, ExpiresAt: &expiry}

	if got := link.State(expiry.Add(-time.Second)); got != LinkActive {
		t.Errorf("one second before expiry: got %v, want active", got)
	}
	if got := link.State(expiry.Add(time.Second)); got != LinkExpired {
		t.Errorf("one second after expiry: got %v, want expired", got)
	}
}

func TestQuotaRemaining(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		used  int64
		want  int64
	}{
		{"untouched", 1000, 0, 1000},
		{"partial", 1000, 400, 600},
		{"exhausted", 1000, 1000, 0},
		{"never negative", 1000, 1500, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := UploadLink{QuotaTotal: tt.total, QuotaUsed: tt.used}
			if got := link.QuotaRemaining(); got != tt.want {
				t.Errorf("QuotaRemaining() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLinkStateString(t *testing.T) {
	tests := []struct {
		state LinkState
		want  string
	}{
		{LinkActive, "active"},
		{LinkExhausted, "exhausted"},
		{LinkExpired, "expired"},
		{LinkDeleted, "deleted"},
		{LinkState(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("LinkState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
