package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"finfeed/domain"
)

// Job names as reported in status output and logs.
const (
	JobIngestion   = "feed_ingestion"
	JobStatistics  = "statistics_refresh"
	JobMaintenance = "daily_maintenance"
)

// SchedulerConfig holds the cadence specs (robfig/cron syntax, @every and
// descriptors included) and the article retention window.
type SchedulerConfig struct {
	IngestSpec      string
	StatsSpec       string
	MaintenanceSpec string
	Retention       time.Duration
}

// DefaultSchedulerConfig returns the production cadences: frequent
// ingestion, hourly statistics, daily maintenance with 30-day retention.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		IngestSpec:      "@every 2m",
		StatsSpec:       "@hourly",
		MaintenanceSpec: "@daily",
		Retention:       30 * 24 * time.Hour,
	}
}

// Scheduler drives the ingestion pipeline, statistics refresh and
// maintenance on independent cadences.
//
// The ingestion job is single-flight: ingestRunning is the one piece of
// process-wide mutable state here, flipped with compare-and-swap so a
// trigger arriving mid-run is skipped (scheduled) or rejected (manual),
// never queued. Statistics and maintenance are read-or-delete-by-timestamp
// jobs and run unguarded, concurrently with ingestion if need be.
type Scheduler struct {
	cron     *cron.Cron
	ingestor domain.Ingestor
	stats    *StatisticsAggregator
	store    domain.Store
	cfg      SchedulerConfig
	log      zerolog.Logger

	ingestRunning atomic.Bool

	mu      sync.Mutex
	running bool
	jobs    map[string]*domain.JobStatus
	entries map[string]cron.EntryID
}

func NewScheduler(ingestor domain.Ingestor, stats *StatisticsAggregator, store domain.Store, cfg SchedulerConfig, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		ingestor: ingestor,
		stats:    stats,
		store:    store,
		cfg:      cfg,
		log:      log.With().Str("component", "scheduler").Logger(),
		jobs:     make(map[string]*domain.JobStatus),
		entries:  make(map[string]cron.EntryID),
	}

	if err := s.register(JobIngestion, cfg.IngestSpec, s.runScheduledIngestion); err != nil {
		return nil, err
	}
	if err := s.register(JobStatistics, cfg.StatsSpec, s.runStatisticsRefresh); err != nil {
		return nil, err
	}
	if err := s.register(JobMaintenance, cfg.MaintenanceSpec, s.runMaintenance); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) register(name, spec string, fn func(context.Context) error) error {
	id, err := s.cron.AddFunc(spec, func() {
		started := time.Now()
		s.markRunning(name, started)
		err := fn(context.Background())
		s.markDone(name, started, err)
	})
	if err != nil {
		return fmt.Errorf("register job %s (%q): %w", name, spec, err)
	}
	s.entries[name] = id
	s.jobs[name] = &domain.JobStatus{Name: name, State: domain.JobIdle}
	s.log.Info().Str("job", name).Str("schedule", spec).Msg("Job registered")
	return nil
}

// Start begins all cadences. Calling it on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Info().Int("jobs", len(s.entries)).Msg("Scheduler started")
}

// Stop halts all cadences and waits for in-flight jobs to finish. Calling it
// on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// TriggerManualProcessing runs the ingestion job out-of-band. If an
// ingestion pass is already in flight it fails immediately with
// domain.ErrAlreadyRunning; callers must retry later.
func (s *Scheduler) TriggerManualProcessing(ctx context.Context) (domain.BatchResult, error) {
	if !s.ingestRunning.CompareAndSwap(false, true) {
		return domain.BatchResult{}, domain.ErrAlreadyRunning
	}
	defer s.ingestRunning.Store(false)

	started := time.Now()
	s.markRunning(JobIngestion, started)
	s.log.Info().Msg("Manual ingestion triggered")
	res, err := s.ingestor.ProcessAllFeeds(ctx)
	s.markDone(JobIngestion, started, err)
	return res, err
}

// Status reports the single-flight flag, active job count and per-job
// last/next run details.
func (s *Scheduler) Status() domain.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]domain.JobStatus, 0, len(s.jobs))
	for _, name := range []string{JobIngestion, JobStatistics, JobMaintenance} {
		st := *s.jobs[name]
		if s.running {
			st.NextRun = s.cron.Entry(s.entries[name]).Next
		}
		jobs = append(jobs, st)
	}
	return domain.SchedulerStatus{
		IsRunning:     s.running,
		IngestRunning: s.ingestRunning.Load(),
		ActiveJobs:    len(jobs),
		Jobs:          jobs,
	}
}

// Statistics exposes the aggregator to control-plane callers.
func (s *Scheduler) Statistics(ctx context.Context, timeframe string) (domain.Statistics, error) {
	return s.stats.GetStatistics(ctx, timeframe)
}

func (s *Scheduler) runScheduledIngestion(ctx context.Context) error {
	if !s.ingestRunning.CompareAndSwap(false, true) {
		s.log.Info().Str("job", JobIngestion).Msg("Previous ingestion still running, trigger skipped")
		return nil
	}
	defer s.ingestRunning.Store(false)

	_, err := s.ingestor.ProcessAllFeeds(ctx)
	return err
}

func (s *Scheduler) runStatisticsRefresh(ctx context.Context) error {
	stats, err := s.stats.GetStatistics(ctx, "24h")
	if err != nil {
		return err
	}
	s.log.Info().
		Int("total_articles", stats.TotalArticles).
		Int("assets", len(stats.TopAssets)).
		Msg("Statistics refreshed")
	return nil
}

func (s *Scheduler) runMaintenance(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.Retention)
	deleted, err := s.store.DeleteArticlesOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete old articles: %w", err)
	}
	s.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Retention cleanup complete")

	for _, timeframe := range []string{"24h", "7d"} {
		stats, err := s.stats.GetStatistics(ctx, timeframe)
		if err != nil {
			return fmt.Errorf("daily report %s: %w", timeframe, err)
		}
		topAsset := ""
		if len(stats.TopAssets) > 0 {
			topAsset = stats.TopAssets[0].Instrument
		}
		s.log.Info().
			Str("timeframe", timeframe).
			Int("total_articles", stats.TotalArticles).
			Str("top_asset", topAsset).
			Msg("Daily report")
	}
	return nil
}

func (s *Scheduler) markRunning(name string, started time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.jobs[name]
	st.State = domain.JobRunning
	st.LastRun = started
}

func (s *Scheduler) markDone(name string, started time.Time, err error) {
	duration := time.Since(started)
	s.mu.Lock()
	st := s.jobs[name]
	st.LastDuration = duration
	if err != nil {
		st.State = domain.JobError
		st.LastError = err.Error()
	} else {
		st.State = domain.JobIdle
		st.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("job", name).Dur("duration", duration).Msg("Job failed")
	} else {
		s.log.Debug().Str("job", name).Dur("duration", duration).Msg("Job completed")
	}
}
