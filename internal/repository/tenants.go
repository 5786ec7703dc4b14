package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/storage"
)

// TenantRepository stores per-tenant settings: the monitoring config, the
// platform connections and the incremental fetch cursor
type TenantRepository struct {
	storage storage.StorageInterface
}

func NewTenantRepository(s storage.StorageInterface) *TenantRepository {
	return &TenantRepository{storage: s}
}

func configKey(tenantID string) string     { return fmt.Sprintf("tenants/%s/config.json", tenantID) }
func connectionsKey(tenantID string) string { return fmt.Sprintf("tenants/%s/connections.json", tenantID) }
func cursorKey(tenantID string) string      { return fmt.Sprintf("tenants/%s/cursor.json", tenantID) }

// GetConfig returns the tenant's monitoring config, creating it with defaults
// on first access
func (r *TenantRepository) GetConfig(ctx context.Context, tenantID string, defaultPlatforms []models.Platform) (*models.MonitoringConfig, error) {
	var cfg models.MonitoringConfig
	err := r.load(ctx, configKey(tenantID), &cfg)
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	created := models.DefaultMonitoringConfig(tenantID, defaultPlatforms)
	data, err := json.Marshal(created)
	if err != nil {
		return nil, err
	}
	if _, err := r.storage.StoreIfAbsent(ctx, configKey(tenantID), data); err != nil {
		return nil, fmt.Errorf("failed to create monitoring config: %w", err)
	}

	// Another writer may have won the race; read back whatever is stored.
	if err := r.load(ctx, configKey(tenantID), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindConfig returns the stored config without creating one. It returns nil
// when the tenant has none yet.
func (r *TenantRepository) FindConfig(ctx context.Context, tenantID string) (*models.MonitoringConfig, error) {
	var cfg models.MonitoringConfig
	if err := r.load(ctx, configKey(tenantID), &cfg); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig updates the tenant's config in place
func (r *TenantRepository) SaveConfig(ctx context.Context, cfg *models.MonitoringConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = cfg.UpdatedAt
	}
	return r.save(ctx, configKey(cfg.TenantID), cfg)
}

func (r *TenantRepository) GetConnections(ctx context.Context, tenantID string) ([]models.Connection, error) {
	var conns []models.Connection
	if err := r.load(ctx, connectionsKey(tenantID), &conns); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return conns, nil
}

func (r *TenantRepository) SaveConnections(ctx context.Context, tenantID string, conns []models.Connection) error {
	return r.save(ctx, connectionsKey(tenantID), conns)
}

type cursor struct {
	LastRun time.Time `json:"last_run"`
}

// LastRun returns the origin timestamp floor for the next incremental fetch
func (r *TenantRepository) LastRun(ctx context.Context, tenantID string) (time.Time, bool, error) {
	var c cursor
	if err := r.load(ctx, cursorKey(tenantID), &c); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return c.LastRun, true, nil
}

func (r *TenantRepository) SetLastRun(ctx context.Context, tenantID string, t time.Time) error {
	return r.save(ctx, cursorKey(tenantID), cursor{LastRun: t})
}

func (r *TenantRepository) load(ctx context.Context, key string, v any) error {
	data, err := r.storage.Retrieve(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (r *TenantRepository) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return r.storage.Store(ctx, key, data)
}
