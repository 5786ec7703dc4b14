package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/azure/social-mentions-monitor/internal/config"
	"github.com/azure/social-mentions-monitor/internal/digest"
	"github.com/azure/social-mentions-monitor/internal/ingestion"
	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/notifications"
	"github.com/azure/social-mentions-monitor/internal/repository"
	"github.com/azure/social-mentions-monitor/internal/sentiment"
	"github.com/azure/social-mentions-monitor/internal/sources"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const cursorOverlap = 5 * time.Minute

// Components are the pipeline stages the service orchestrates
type Components struct {
	Mentions    *repository.MentionRepository
	Tenants     *repository.TenantRepository
	Registry    *sources.Registry
	Coordinator *ingestion.Coordinator
	Gate        *ingestion.Gate
	Classifier  *sentiment.Classifier
	Digests     *digest.Builder

	// AlertDelivered, when set, is told the outcome of every alert send
	AlertDelivered func(err error)
}

// Service runs the monitoring pipeline for each tenant: fetch, persist,
// classify, alert. It also sends the scheduled digest.
type Service struct {
	config              *config.Config
	components          Components
	notificationService notifications.NotificationInterface
	metrics             *Metrics
	mu                  sync.RWMutex
}

// Metrics holds monitoring metrics
type Metrics struct {
	TotalRuns       int                       `json:"total_runs"`
	LastRun         time.Time                 `json:"last_run"`
	LastRunDuration string                    `json:"last_run_duration"`
	ErrorCount      int                       `json:"error_count"`
	Tenants         map[string]*TenantMetrics `json:"tenants"`
}

// TenantMetrics are the totals for one tenant since process start
type TenantMetrics struct {
	LastRun    time.Time `json:"last_run"`
	Fetched    int       `json:"fetched"`
	Saved      int       `json:"saved"`
	Duplicates int       `json:"duplicates"`
	Classified int       `json:"classified"`
	Alerts     int       `json:"alerts"`
	Errors     int       `json:"errors"`
	LastErrors []string  `json:"last_errors,omitempty"`
}

// RunResult summarises one ingestion cycle
type RunResult struct {
	TenantID   string   `json:"tenant_id"`
	Skipped    bool     `json:"skipped,omitempty"`
	Fetched    int      `json:"fetched"`
	Saved      int      `json:"saved"`
	Duplicates int      `json:"duplicates"`
	Classified int      `json:"classified"`
	Alerts     int      `json:"alerts"`
	Errors     []string `json:"errors,omitempty"`
	Duration   string   `json:"duration"`
}

// NewService creates a new monitoring service
func NewService(cfg *config.Config, components Components, notificationService notifications.NotificationInterface) *Service {
	return &Service{
		config:              cfg,
		components:          components,
		notificationService: notificationService,
		metrics: &Metrics{
			Tenants: make(map[string]*TenantMetrics),
		},
	}
}

// RunIngestion performs one ingestion cycle for a tenant. Adapter and
// classifier failures are reported in the result; only storage failures
// that prevent the cycle from running return an error.
func (s *Service) RunIngestion(ctx context.Context, tenantID string) (*RunResult, error) {
	start := time.Now()
	log := logrus.WithField("tenant", tenantID)
	log.Info("Starting ingestion run")

	result := &RunResult{TenantID: tenantID}

	cfg, err := s.components.Tenants.GetConfig(ctx, tenantID, s.components.Registry.Platforms())
	if err != nil {
		return nil, fmt.Errorf("failed to load monitoring config: %w", err)
	}
	if !cfg.Enabled {
		log.Info("Monitoring disabled for tenant, skipping")
		result.Skipped = true
		result.Duration = time.Since(start).String()
		return result, nil
	}

	conns, err := s.components.Tenants.GetConnections(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connections: %w", err)
	}

	since, err := s.since(ctx, tenantID, start)
	if err != nil {
		return nil, err
	}

	fetched := s.components.Coordinator.Fetch(ctx, tenantID, cfg, conns, since)
	result.Fetched = len(fetched.Items)
	result.Errors = append(result.Errors, fetched.Errors...)

	persisted := s.components.Gate.Persist(ctx, fetched.Items)
	result.Saved = persisted.Saved
	result.Duplicates = persisted.Duplicates
	result.Errors = append(result.Errors, persisted.Errors...)

	classified, alerts, errs := s.classifyItems(ctx, cfg, persisted.Items)
	result.Classified = classified
	result.Alerts = alerts
	result.Errors = append(result.Errors, errs...)

	// Only a clean cycle moves the cursor, so a failed platform is fetched
	// again from the same point next time. The cursor trails the run start by
	// cursorOverlap to catch posts the platforms index late. Dedup absorbs
	// the re-fetch.
	if len(fetched.Errors) == 0 && ctx.Err() == nil {
		if err := s.components.Tenants.SetLastRun(ctx, tenantID, start.Add(-cursorOverlap)); err != nil {
			log.Errorf("Failed to store ingestion cursor: %v", err)
			result.Errors = append(result.Errors, fmt.Sprintf("cursor: %v", err))
		}
	} else {
		log.Warn("Ingestion cursor not advanced because the cycle was incomplete")
	}

	result.Duration = time.Since(start).String()
	s.updateMetrics(result, time.Since(start))

	log.WithFields(logrus.Fields{
		"fetched":    result.Fetched,
		"saved":      result.Saved,
		"duplicates": result.Duplicates,
		"classified": result.Classified,
		"alerts":     result.Alerts,
		"errors":     len(result.Errors),
	}).Infof("Ingestion run completed in %v", time.Since(start))

	return result, nil
}

func (s *Service) since(ctx context.Context, tenantID string, now time.Time) (time.Time, error) {
	last, ok, err := s.components.Tenants.LastRun(ctx, tenantID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load ingestion cursor: %w", err)
	}
	if ok {
		return last, nil
	}
	if s.config.InitialLookback > 0 {
		return now.Add(-s.config.InitialLookback), nil
	}
	return time.Time{}, nil
}

// ClassifyPending classifies stored items the classifier has not reached
// yet, such as items whose classification failed in an earlier cycle
func (s *Service) ClassifyPending(ctx context.Context, tenantID string) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{TenantID: tenantID}

	cfg, err := s.components.Tenants.GetConfig(ctx, tenantID, s.components.Registry.Platforms())
	if err != nil {
		return nil, fmt.Errorf("failed to load monitoring config: %w", err)
	}

	items, err := s.components.Mentions.List(ctx, tenantID, repository.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	var pending []models.Mention
	for _, m := range items {
		if !m.IsClassified() && !m.IsSpam {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		result.Duration = time.Since(start).String()
		return result, nil
	}

	logrus.WithField("tenant", tenantID).Infof("Classifying %d pending items", len(pending))

	result.Classified, result.Alerts, result.Errors = s.classifyItems(ctx, cfg, pending)
	result.Duration = time.Since(start).String()
	s.updateMetrics(result, time.Since(start))

	return result, nil
}

// classifyItems batch classifies items, writes the results back and raises
// an alert for each item that crosses an urgency trigger
func (s *Service) classifyItems(ctx context.Context, cfg *models.MonitoringConfig, items []models.Mention) (int, int, []string) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	inputs := make([]sentiment.Input, 0, len(items))
	for i := range items {
		inputs = append(inputs, sentiment.InputFromMention(&items[i]))
	}

	results, errs := s.components.Classifier.ClassifyBatch(ctx, inputs)

	classified, alerts := 0, 0
	for _, item := range items {
		c, ok := results[item.ID]
		if !ok {
			continue
		}

		updated, err := s.components.Mentions.Update(ctx, item.TenantID, item.ID, func(m *models.Mention) error {
			sentiment.Apply(m, c)
			m.ClassifiedAt = time.Now().UTC()
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("item %s: %v", item.ID, err))
			continue
		}
		classified++

		if updated.IsSpam {
			continue
		}
		urgency := sentiment.CheckAlert(updated, cfg.Thresholds)
		if !urgency.IsUrgent {
			continue
		}
		if err := s.sendAlert(updated, urgency); err != nil {
			errs = append(errs, fmt.Sprintf("alert %s: %v", item.ID, err))
			continue
		}
		alerts++
	}

	return classified, alerts, errs
}

func (s *Service) sendAlert(m *models.Mention, urgency sentiment.Urgency) error {
	alert := buildAlert(m, urgency)

	logrus.WithFields(logrus.Fields{
		"tenant":   m.TenantID,
		"platform": m.Platform,
		"item":     m.ID,
	}).Warnf("Urgent item detected: %s", strings.Join(urgency.Reasons, "; "))

	err := s.notificationService.SendAlert(alert)
	if s.components.AlertDelivered != nil {
		s.components.AlertDelivered(err)
	}
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	return nil
}

func buildAlert(m *models.Mention, urgency sentiment.Urgency) *models.Alert {
	severity := "urgent"
	if m.Priority == models.PriorityCritical {
		severity = "critical"
	}

	item := *m
	return &models.Alert{
		ID:       uuid.NewString(),
		TenantID: m.TenantID,
		Type:     severity,
		Title:    fmt.Sprintf("Urgent %s %s", m.Platform, strings.ReplaceAll(string(m.Type), "_", " ")),
		Message: fmt.Sprintf("A %s item with %d engagements needs attention",
			m.Sentiment, m.Engagement.Total()),
		Reasons:   urgency.Reasons,
		Actions:   urgency.Actions,
		Mention:   &item,
		CreatedAt: time.Now().UTC(),
	}
}

// SendDigest builds the tenant digest and sends it as a report
func (s *Service) SendDigest(ctx context.Context, tenantID string) error {
	days := s.config.DigestDays
	if days <= 0 {
		days = 1
	}

	d, err := s.components.Digests.Build(ctx, tenantID, days)
	if err != nil {
		return fmt.Errorf("failed to build digest: %w", err)
	}

	if err := s.notificationService.SendReport(reportFromDigest(d)); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}

	logrus.WithField("tenant", tenantID).Info("Digest sent")
	return nil
}

func reportFromDigest(d *digest.Digest) *models.Report {
	period := "daily"
	if d.Days != 1 {
		period = fmt.Sprintf("%d-day", d.Days)
	}

	highlights := d.NeedsResponse
	if len(highlights) == 0 {
		highlights = d.RecentUnread
	}

	return &models.Report{
		TenantID:    d.TenantID,
		GeneratedAt: d.GeneratedAt,
		Period:      period,
		Title:       fmt.Sprintf("Social mentions digest - %s", d.TenantID),
		Body:        d.Render(),
		Highlights:  highlights,
	}
}

// RunAll runs an ingestion cycle for every configured tenant
func (s *Service) RunAll(ctx context.Context) error {
	return s.forEachTenant(ctx, "ingestion", func(tenantID string) error {
		_, err := s.RunIngestion(ctx, tenantID)
		return err
	})
}

// ClassifyAll sweeps pending items for every configured tenant
func (s *Service) ClassifyAll(ctx context.Context) error {
	return s.forEachTenant(ctx, "classification", func(tenantID string) error {
		_, err := s.ClassifyPending(ctx, tenantID)
		return err
	})
}

// SendAllDigests sends the digest for every configured tenant
func (s *Service) SendAllDigests(ctx context.Context) error {
	return s.forEachTenant(ctx, "digest", func(tenantID string) error {
		return s.SendDigest(ctx, tenantID)
	})
}

func (s *Service) forEachTenant(ctx context.Context, job string, fn func(tenantID string) error) error {
	var errors []string
	for _, tenantID := range s.config.Tenants {
		if ctx.Err() != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", tenantID, ctx.Err()))
			break
		}
		if err := fn(tenantID); err != nil {
			logrus.WithField("tenant", tenantID).Errorf("Failed %s run: %v", job, err)
			errors = append(errors, fmt.Sprintf("%s: %v", tenantID, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s errors: %s", job, strings.Join(errors, "; "))
	}
	return nil
}

func (s *Service) updateMetrics(result *RunResult, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.TotalRuns++
	s.metrics.LastRun = time.Now()
	s.metrics.LastRunDuration = duration.String()
	s.metrics.ErrorCount += len(result.Errors)

	tm, ok := s.metrics.Tenants[result.TenantID]
	if !ok {
		tm = &TenantMetrics{}
		s.metrics.Tenants[result.TenantID] = tm
	}
	tm.LastRun = s.metrics.LastRun
	tm.Fetched += result.Fetched
	tm.Saved += result.Saved
	tm.Duplicates += result.Duplicates
	tm.Classified += result.Classified
	tm.Alerts += result.Alerts
	tm.Errors += len(result.Errors)
	tm.LastErrors = result.Errors
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
