// internal/storage/analytics.go
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/valpere/SocialScrapexter/internal/config"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

// RollupDaily aggregates one UTC day of scraping into analytics_metrics:
// post volume, average engagement, and session outcomes per platform.
// Re-running a day overwrites its metrics, so the rollup is idempotent.
func (g *sqlGateway) RollupDaily(ctx context.Context, day time.Time) error {
	date := day.UTC().Format("2006-01-02")
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := g.db.QueryContext(ctx, g.d.Rebind(
		`SELECT platform, COUNT(*), AVG(engagement_score), SUM(likes), SUM(comments), SUM(shares)
		 FROM posts WHERE scraped_at >= ? AND scraped_at < ? GROUP BY platform`),
		dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("rolling up posts for %s: %w", date, err)
	}
	defer rows.Close()

	type postAgg struct {
		platform types.Platform
		count    int64
		avgScore float64
		likes    int64
		comments int64
		shares   int64
	}
	var postAggs []postAgg
	for rows.Next() {
		var a postAgg
		var platform string
		if err := rows.Scan(&platform, &a.count, &a.avgScore, &a.likes, &a.comments, &a.shares); err != nil {
			return err
		}
		a.platform = types.Platform(platform)
		postAggs = append(postAggs, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, a := range postAggs {
		metrics := map[string]float64{
			"posts_scraped":  float64(a.count),
			"avg_engagement": a.avgScore,
			"total_likes":    float64(a.likes),
			"total_comments": float64(a.comments),
			"total_shares":   float64(a.shares),
		}
		for name, value := range metrics {
			if err := g.UpsertAnalytics(ctx, date, a.platform, name, value); err != nil {
				return err
			}
		}
	}

	srows, err := g.db.QueryContext(ctx, g.d.Rebind(
		`SELECT platform, status, COUNT(*)
		 FROM scraping_sessions WHERE start_time >= ? AND start_time < ?
		 GROUP BY platform, status`),
		dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("rolling up sessions for %s: %w", date, err)
	}
	defer srows.Close()

	for srows.Next() {
		var platform, status string
		var n int64
		if err := srows.Scan(&platform, &status, &n); err != nil {
			return err
		}
		name := "sessions_" + status
		if err := g.UpsertAnalytics(ctx, date, types.Platform(platform), name, float64(n)); err != nil {
			return err
		}
	}
	if err := srows.Err(); err != nil {
		return err
	}

	logger.Infof("analytics rollup complete for %s (%d platforms)", date, len(postAggs))
	return nil
}

// Scheduler drives the daily rollup on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	gw   Gateway
}

// NewScheduler registers the rollup job. An empty schedule defaults to
// "@daily"; the job aggregates yesterday so a run at midnight sees the
// full day.
func NewScheduler(gw Gateway, cfg config.AnalyticsConfig) (*Scheduler, error) {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "@daily"
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		if err := gw.RollupDaily(ctx, yesterday); err != nil {
			logger.WithError(err).Error("scheduled analytics rollup failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid analytics schedule %q: %w", schedule, err)
	}

	return &Scheduler{cron: c, gw: gw}, nil
}

// Start begins running scheduled rollups.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
