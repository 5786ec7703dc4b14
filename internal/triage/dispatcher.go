package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/repository"
	"github.com/azure/social-mentions-monitor/internal/sources"
	"github.com/sirupsen/logrus"
)

// ReplyResult is the outcome of a reply attempt. On failure no triage state
// has been changed.
type ReplyResult struct {
	Success bool            `json:"success"`
	ReplyID string          `json:"reply_id,omitempty"`
	Error   string          `json:"error,omitempty"`
	Item    *models.Mention `json:"item,omitempty"`

	// Err is the underlying error, for errors.Is checks by callers
	Err error `json:"-"`
}

// Dispatcher posts replies through the platform registry and records them
// in the Store
type Dispatcher struct {
	store    *Store
	registry *sources.Registry
	tenants  *repository.TenantRepository
}

func NewDispatcher(store *Store, registry *sources.Registry, tenants *repository.TenantRepository) *Dispatcher {
	return &Dispatcher{store: store, registry: registry, tenants: tenants}
}

// Reply answers an item using the tenant's stored connection for the item's
// platform
func (d *Dispatcher) Reply(ctx context.Context, tenantID, itemID, text string) ReplyResult {
	item, err := d.store.Get(ctx, tenantID, itemID)
	if err != nil {
		return failure(err)
	}

	conns, err := d.tenants.GetConnections(ctx, tenantID)
	if err != nil {
		return failure(fmt.Errorf("failed to load connections: %w", err))
	}
	for _, conn := range conns {
		if conn.Platform == item.Platform {
			return d.dispatch(ctx, item, conn, text)
		}
	}

	return failure(fmt.Errorf("no %s connection for tenant %s", item.Platform, tenantID))
}

// ReplyWithConnection answers an item with an explicit platform connection
func (d *Dispatcher) ReplyWithConnection(ctx context.Context, tenantID, itemID, text string, conn models.Connection) ReplyResult {
	item, err := d.store.Get(ctx, tenantID, itemID)
	if err != nil {
		return failure(err)
	}
	return d.dispatch(ctx, item, conn, text)
}

func (d *Dispatcher) dispatch(ctx context.Context, item *models.Mention, conn models.Connection, text string) ReplyResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return failure(errors.New("reply text is empty"))
	}
	if conn.Platform != item.Platform {
		return failure(fmt.Errorf("connection is for %s but item is on %s", conn.Platform, item.Platform))
	}

	replier, err := d.registry.Replier(item.Platform)
	if err != nil {
		return failure(fmt.Errorf("%s: %w", item.Platform, err))
	}

	replyID, err := replier.Reply(ctx, conn, item, text)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"tenant":   item.TenantID,
			"item":     item.ID,
			"platform": item.Platform,
		}).Errorf("Failed to post reply: %v", err)
		return failure(err)
	}

	updated, err := d.store.RecordReply(ctx, item.TenantID, item.ID, replyID, text)
	if err != nil {
		// the reply is live on the platform, only the linkage is missing
		logrus.WithFields(logrus.Fields{
			"tenant":   item.TenantID,
			"item":     item.ID,
			"reply_id": replyID,
		}).Errorf("Reply posted but recording it failed: %v", err)
		return ReplyResult{ReplyID: replyID, Error: fmt.Sprintf("reply posted but not recorded: %v", err), Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"tenant":   item.TenantID,
		"item":     item.ID,
		"platform": item.Platform,
		"reply_id": replyID,
	}).Info("Reply posted")

	return ReplyResult{Success: true, ReplyID: replyID, Item: updated}
}

func failure(err error) ReplyResult {
	return ReplyResult{Success: false, Error: err.Error(), Err: err}
}
