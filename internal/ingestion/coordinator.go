// Package ingestion fans a tenant's fetch cycle out to the platform adapters
// and persists the unseen results.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/sources"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 5
	DefaultTimeout     = 60 * time.Second
)

// Observer receives per-connection and per-item outcomes
type Observer interface {
	FetchCompleted(platform models.Platform, items int, err error, elapsed time.Duration)
	ItemPersisted(platform models.Platform, saved bool)
}

type nopObserver struct{}

func (nopObserver) FetchCompleted(models.Platform, int, error, time.Duration) {}
func (nopObserver) ItemPersisted(models.Platform, bool)                       {}

// Options tune a Coordinator
type Options struct {
	Concurrency int
	Timeout     time.Duration
	Observer    Observer
}

// Result is everything one fetch cycle produced. Errors holds one entry per
// failed connection.
type Result struct {
	Items  []models.Mention
	Errors []string
}

// Coordinator calls every capability of the adapter matching each of a
// tenant's connections
type Coordinator struct {
	registry    *sources.Registry
	concurrency int
	timeout     time.Duration
	observer    Observer

	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[any]
}

func NewCoordinator(registry *sources.Registry, opts Options) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	return &Coordinator{
		registry:    registry,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		observer:    opts.Observer,
		breakers:    make(map[string]circuitbreaker.CircuitBreaker[any]),
	}
}

// Fetch runs one cycle for tenantID. Connections whose platform is disabled
// in cfg are ignored and connections without an adapter are skipped. When ctx
// is cancelled, the items gathered so far are returned.
func (c *Coordinator) Fetch(ctx context.Context, tenantID string, cfg *models.MonitoringConfig, conns []models.Connection, since time.Time) Result {
	type outcome struct {
		items []models.Mention
		err   error
	}

	var selected []models.Connection
	for _, conn := range conns {
		if cfg != nil && !cfg.PlatformEnabled(conn.Platform) {
			continue
		}
		if _, ok := c.registry.Get(conn.Platform); !ok {
			logrus.WithFields(logrus.Fields{"tenant": tenantID, "platform": conn.Platform}).
				Debug("No adapter registered for connection, skipping")
			continue
		}
		selected = append(selected, conn)
	}

	outcomes := make([]outcome, len(selected))

	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for i, conn := range selected {
		if ctx.Err() != nil {
			outcomes[i] = outcome{err: fmt.Errorf("not started: %w", ctx.Err())}
			continue
		}

		i, conn := i, conn
		g.Go(func() error {
			req := sources.FetchRequest{
				TenantID:   tenantID,
				Connection: conn,
				Config:     cfg,
				Since:      since,
			}
			items, err := c.fetchConnection(ctx, req)
			outcomes[i] = outcome{items: items, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var result Result
	for i, o := range outcomes {
		result.Items = append(result.Items, o.items...)
		if o.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", selected[i].Platform, o.err))
		}
	}

	logrus.WithFields(logrus.Fields{
		"tenant":      tenantID,
		"connections": len(selected),
		"items":       len(result.Items),
		"errors":      len(result.Errors),
	}).Info("Fetch cycle completed")

	return result
}

// fetchConnection runs one connection through its tenant/platform circuit
// breaker with a per-call timeout
func (c *Coordinator) fetchConnection(ctx context.Context, req sources.FetchRequest) ([]models.Mention, error) {
	platform := req.Connection.Platform
	adapter, _ := c.registry.Get(platform)
	breaker := c.breaker(req.TenantID, platform)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var items []models.Mention

	_, err := failsafe.With[any](breaker).Get(func() (any, error) {
		var fetchErr error
		items, fetchErr = callAdapter(callCtx, adapter, req)
		return nil, fetchErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		err = fmt.Errorf("skipped after repeated failures: %w", err)
	}

	c.observer.FetchCompleted(platform, len(items), err, time.Since(start))

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"tenant":   req.TenantID,
			"platform": platform,
			"items":    len(items),
		}).Errorf("Failed to fetch from platform: %v", err)
	} else {
		logrus.WithFields(logrus.Fields{
			"tenant":   req.TenantID,
			"platform": platform,
		}).Infof("Found %d items", len(items))
	}

	return items, err
}

// callAdapter invokes every capability the adapter has and keeps partial
// results. A panicking adapter becomes an error.
func callAdapter(ctx context.Context, adapter sources.Adapter, req sources.FetchRequest) (items []models.Mention, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panicked: %v", r)
		}
	}()

	var errs []string

	if f, ok := adapter.(sources.MentionFetcher); ok {
		mentions, fetchErr := f.FetchMentions(ctx, req)
		items = append(items, mentions...)
		if fetchErr != nil {
			errs = append(errs, "mentions: "+fetchErr.Error())
		}
	}

	if f, ok := adapter.(sources.EngagementFetcher); ok && ctx.Err() == nil {
		engagement, fetchErr := f.FetchEngagement(ctx, req)
		items = append(items, engagement...)
		if fetchErr != nil {
			errs = append(errs, "engagement: "+fetchErr.Error())
		}
	}

	if len(errs) > 0 {
		return items, errors.New(strings.Join(errs, "; "))
	}
	return items, nil
}

func (c *Coordinator) breaker(tenantID string, platform models.Platform) circuitbreaker.CircuitBreaker[any] {
	key := tenantID + "/" + string(platform)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[key]; ok {
		return cb
	}

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(3, 5).
		WithDelay(15 * time.Minute).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			logrus.WithFields(logrus.Fields{
				"tenant":   tenantID,
				"platform": platform,
				"from":     e.OldState,
				"to":       e.NewState,
			}).Warn("Platform circuit breaker state change")
		}).
		Build()
	c.breakers[key] = cb
	return cb
}
