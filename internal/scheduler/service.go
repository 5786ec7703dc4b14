package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/azure/social-mentions-monitor/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const jobTimeout = 30 * time.Minute

// Runner is the part of the monitoring service the scheduler drives
type Runner interface {
	RunAll(ctx context.Context) error
	ClassifyAll(ctx context.Context) error
	SendAllDigests(ctx context.Context) error
}

// Service handles scheduling of monitoring tasks
type Service struct {
	config *config.Config
	runner Runner
	cron   *cron.Cron
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

// NewService creates a new scheduler service. Jobs run in the configured
// time zone and a job still running when its next tick fires is skipped.
func NewService(cfg *config.Config, runner Runner) (*Service, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", cfg.TimeZone, err)
	}

	logger := cron.PrintfLogger(logrus.StandardLogger())

	return &Service{
		config: cfg,
		runner: runner,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}, nil
}

func (s *Service) jobs() []job {
	return []job{
		{name: "ingestion", spec: s.config.IngestionSchedule, run: s.runner.RunAll},
		{name: "classification sweep", spec: s.config.ClassificationSchedule, run: s.runner.ClassifyAll},
		{name: "digest", spec: s.config.DigestSchedule, run: s.runner.SendAllDigests},
	}
}

// Start registers every job and begins the schedule
func (s *Service) Start() error {
	for _, j := range s.jobs() {
		if j.spec == "" {
			logrus.Infof("No schedule for %s, job disabled", j.name)
			continue
		}

		j := j
		if _, err := s.cron.AddFunc(j.spec, func() { s.execute(j) }); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", j.name, j.spec, err)
		}
		logrus.Infof("Scheduled %s job (%s)", j.name, j.spec)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started for %d tenants in %s", len(s.config.Tenants), s.config.TimeZone)
	return nil
}

func (s *Service) execute(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	logrus.Infof("Starting scheduled %s run", j.name)
	if err := j.run(ctx); err != nil {
		logrus.Errorf("Scheduled %s run failed: %v", j.name, err)
		return
	}
	logrus.Infof("Scheduled %s run completed in %v", j.name, time.Since(start))
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
