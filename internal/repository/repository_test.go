package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMention(tenant, externalID string, detected time.Time) *models.Mention {
	return &models.Mention{
		TenantID:   tenant,
		Platform:   models.PlatformTwitter,
		ExternalID: externalID,
		Type:       models.TypeBrandMention,
		Content:    "hello " + externalID,
		CreatedAt:  detected.Add(-time.Minute),
		DetectedAt: detected,
	}
}

func TestMentionRepository_CreateNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMentionRepository(storage.NewMemoryStorage())
	now := time.Now()

	saved, err := repo.Create(ctx, newMention("t1", "100", now))
	require.NoError(t, err)
	assert.True(t, saved)

	dup := newMention("t1", "100", now)
	dup.Content = "changed"
	saved, err = repo.Create(ctx, dup)
	require.NoError(t, err)
	assert.False(t, saved)

	got, err := repo.Get(ctx, "t1", models.ItemID("t1", models.PlatformTwitter, "100"))
	require.NoError(t, err)
	assert.Equal(t, "hello 100", got.Content)
}

func TestMentionRepository_SameExternalIDDifferentTenant(t *testing.T) {
	ctx := context.Background()
	repo := NewMentionRepository(storage.NewMemoryStorage())

	saved, err := repo.Create(ctx, newMention("t1", "1", time.Now()))
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = repo.Create(ctx, newMention("t2", "1", time.Now()))
	require.NoError(t, err)
	assert.True(t, saved)

	exists, err := repo.Exists(ctx, "t2", models.PlatformTwitter, "1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, "t2", models.PlatformReddit, "1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMentionRepository_UpdateKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewMentionRepository(storage.NewMemoryStorage())
	m := newMention("t1", "7", time.Now())
	_, err := repo.Create(ctx, m)
	require.NoError(t, err)

	updated, err := repo.Update(ctx, "t1", m.ID, func(x *models.Mention) error {
		x.IsRead = true
		x.ExternalID = "tampered"
		x.CreatedAt = time.Time{}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.IsRead)
	assert.Equal(t, "7", updated.ExternalID)
	assert.False(t, updated.CreatedAt.IsZero())

	_, err = repo.Update(ctx, "t1", "missing", func(*models.Mention) error { return nil })
	assert.ErrorIs(t, err, ErrMentionNotFound)
}

func TestMentionRepository_ListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewMentionRepository(storage.NewMemoryStorage())
	now := time.Now()

	old := newMention("t1", "old", now.Add(-10*24*time.Hour))
	read := newMention("t1", "read", now.Add(-time.Hour))
	read.IsRead = true
	fresh := newMention("t1", "fresh", now)
	fresh.Keywords = []string{"Globex"}

	for _, m := range []*models.Mention{old, read, fresh} {
		_, err := repo.Create(ctx, m)
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, "t1", Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "fresh", all[0].ExternalID)

	recent, err := repo.List(ctx, "t1", Filter{Since: now.Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	unread, err := repo.List(ctx, "t1", Filter{UnreadOnly: true, Since: now.Add(-24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "fresh", unread[0].ExternalID)

	competitor, err := repo.List(ctx, "t1", Filter{Keywords: []string{"globex"}})
	require.NoError(t, err)
	assert.Len(t, competitor, 1)

	limited, err := repo.List(ctx, "t1", Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMentionRepository_ListDropsForeignTenantDocuments(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	repo := NewMentionRepository(store)
	now := time.Now()

	_, err := repo.Create(ctx, newMention("acme", "own", now))
	require.NoError(t, err)

	// a backend with pattern matching can surface another tenant's key
	foreign := newMention("globex", "theirs", now)
	foreign.ID = models.ItemID("globex", models.PlatformTwitter, "theirs")
	data, err := json.Marshal(foreign)
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, mentionKey("acme", foreign.ID), data))

	items, err := repo.List(ctx, "acme", Filter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "own", items[0].ExternalID)
}

func TestTenantRepository_ConfigCreatedLazily(t *testing.T) {
	ctx := context.Background()
	repo := NewTenantRepository(storage.NewMemoryStorage())

	cfg, err := repo.GetConfig(ctx, "t1", []models.Platform{models.PlatformTwitter})
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []models.Platform{models.PlatformTwitter}, cfg.Platforms)
	assert.Equal(t, 10000, cfg.Thresholds.InfluencerFollowers)

	cfg.BrandKeywords = []string{"acme"}
	require.NoError(t, repo.SaveConfig(ctx, cfg))

	again, err := repo.GetConfig(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, again.BrandKeywords)
}

func TestTenantRepository_ConnectionsAndCursor(t *testing.T) {
	ctx := context.Background()
	repo := NewTenantRepository(storage.NewMemoryStorage())

	conns, err := repo.GetConnections(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, conns)

	require.NoError(t, repo.SaveConnections(ctx, "t1", []models.Connection{{Platform: models.PlatformReddit, AccessToken: "tok"}}))
	conns, err = repo.GetConnections(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, conns, 1)

	_, ok, err := repo.LastRun(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.SetLastRun(ctx, "t1", at))
	got, ok, err := repo.LastRun(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
}
