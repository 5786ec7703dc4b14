package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/storage"
	"github.com/sirupsen/logrus"
)

// ErrMentionNotFound is returned when no item exists for the given id
var ErrMentionNotFound = errors.New("mention not found")

// Filter narrows a mention listing. Zero values mean "no constraint".
type Filter struct {
	Since            time.Time
	Platform         models.Platform
	UnreadOnly       bool
	RequiresResponse bool
	ExcludeArchived  bool
	Keywords         []string // any of these must have matched
	Limit            int
}

// MentionRepository persists one JSON document per item, keyed by tenant and
// the id derived from the dedup key
type MentionRepository struct {
	storage storage.StorageInterface
}

func NewMentionRepository(s storage.StorageInterface) *MentionRepository {
	return &MentionRepository{storage: s}
}

func mentionKey(tenantID, id string) string {
	return fmt.Sprintf("mentions/%s/%s.json", tenantID, id)
}

func mentionPrefix(tenantID string) string {
	return fmt.Sprintf("mentions/%s/", tenantID)
}

// Exists checks whether an item with the dedup key is already stored
func (r *MentionRepository) Exists(ctx context.Context, tenantID string, platform models.Platform, externalID string) (bool, error) {
	return r.storage.Exists(ctx, mentionKey(tenantID, models.ItemID(tenantID, platform, externalID)))
}

// Create writes m if no item with the same dedup key exists. It never
// overwrites and reports whether m was written.
func (r *MentionRepository) Create(ctx context.Context, m *models.Mention) (bool, error) {
	m.ID = models.ItemID(m.TenantID, m.Platform, m.ExternalID)

	data, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("failed to marshal mention: %w", err)
	}

	return r.storage.StoreIfAbsent(ctx, mentionKey(m.TenantID, m.ID), data)
}

func (r *MentionRepository) Get(ctx context.Context, tenantID, id string) (*models.Mention, error) {
	data, err := r.storage.Retrieve(ctx, mentionKey(tenantID, id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMentionNotFound
		}
		return nil, err
	}

	var m models.Mention
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode mention %s: %w", id, err)
	}
	return &m, nil
}

// Update loads the item, applies fn and writes it back. Concurrent updates to
// the same item are last-write-wins. The identity fields and CreatedAt are
// restored after fn so they cannot be changed through an update.
func (r *MentionRepository) Update(ctx context.Context, tenantID, id string, fn func(*models.Mention) error) (*models.Mention, error) {
	m, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	identity := *m
	if err := fn(m); err != nil {
		return nil, err
	}
	m.ID = identity.ID
	m.TenantID = identity.TenantID
	m.Platform = identity.Platform
	m.ExternalID = identity.ExternalID
	m.CreatedAt = identity.CreatedAt

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mention: %w", err)
	}
	if err := r.storage.Store(ctx, mentionKey(tenantID, id), data); err != nil {
		return nil, err
	}
	return m, nil
}

// List returns the tenant's items matching f, newest detection first
func (r *MentionRepository) List(ctx context.Context, tenantID string, f Filter) ([]models.Mention, error) {
	keys, err := r.storage.List(ctx, mentionPrefix(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to list mentions: %w", err)
	}

	var mentions []models.Mention
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}

		data, err := r.storage.Retrieve(ctx, key)
		if err != nil {
			logrus.WithField("key", key).Warnf("Skipping unreadable mention: %v", err)
			continue
		}

		var m models.Mention
		if err := json.Unmarshal(data, &m); err != nil {
			logrus.WithField("key", key).Warnf("Skipping malformed mention: %v", err)
			continue
		}

		if m.TenantID != tenantID {
			logrus.WithField("key", key).Warnf("Skipping mention owned by tenant %q", m.TenantID)
			continue
		}

		if f.matches(&m) {
			mentions = append(mentions, m)
		}
	}

	sort.SliceStable(mentions, func(i, j int) bool {
		return mentions[i].DetectedAt.After(mentions[j].DetectedAt)
	})

	if f.Limit > 0 && len(mentions) > f.Limit {
		mentions = mentions[:f.Limit]
	}

	return mentions, nil
}

func (f Filter) matches(m *models.Mention) bool {
	if !f.Since.IsZero() && m.DetectedAt.Before(f.Since) {
		return false
	}
	if f.Platform != "" && m.Platform != f.Platform {
		return false
	}
	if f.UnreadOnly && m.IsRead {
		return false
	}
	if f.RequiresResponse && (!m.RequiresResponse || m.HasReplied) {
		return false
	}
	if f.ExcludeArchived && m.IsArchived {
		return false
	}
	if len(f.Keywords) > 0 && !anyKeyword(m.Keywords, f.Keywords) {
		return false
	}
	return true
}

func anyKeyword(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
