// Package cron runs the periodic cache stats report.
package cron

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	cron "github.com/robfig/cron/v3"

	"shortvid/config"
	"shortvid/internal/domain"
	"shortvid/internal/logger"
)

// Scheduler manages cron jobs for the application.
type Scheduler struct {
	cron   *cron.Cron
	config *config.Config
	cache  domain.CacheRepository
}

// NewScheduler creates a new cron scheduler.
func NewScheduler(cfg *config.Config, cache domain.CacheRepository) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		config: cfg,
		cache:  cache,
	}
}

// Start schedules the stats report job and starts the scheduler.
func (s *Scheduler) Start() error {
	schedule := normalizeSchedule(s.config.StatsCronSchedule)
	jobID, err := s.cron.AddFunc(schedule, s.reportStatsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule stats job: %w", err)
	}
	logger.Info().Printf("Scheduled cache stats job with ID: %d, schedule: %s", jobID, schedule)

	s.cron.Start()
	logger.Info().Println("Cron scheduler started")

	go s.reportStatsJob()

	return nil
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	logger.Info().Println("Stopping cron scheduler...")
	s.cron.Stop()
	logger.Info().Println("Cron scheduler stopped")
}

// reportStatsJob logs a snapshot of the cache: totals plus the heaviest
// cached videos with their media sizes.
func (s *Scheduler) reportStatsJob() {
	stats, err := s.cache.Stats()
	if err != nil {
		logger.Error().Printf("Cache stats job failed: %v", err)
		return
	}

	logger.Info().Printf("Cache stats: %d videos, %d total accesses", stats.TotalVideos, stats.TotalAccesses)
	for i, entry := range stats.MostAccessed {
		size := "unknown size"
		if entry.Result.SizeBytes > 0 {
			size = humanize.Bytes(uint64(entry.Result.SizeBytes))
		}
		logger.Info().Printf("  #%d %s [%s] %d accesses, %s", i+1, entry.VideoID, entry.Platform, entry.AccessCount, size)
	}
}

// normalizeSchedule ensures cron expressions are compatible with cron.WithSeconds
func normalizeSchedule(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) == 5 {
		return "0 " + expr
	}
	return expr
}
