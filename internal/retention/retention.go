// Package retention runs the periodic maintenance sweep: expired queue
// items are purged, the live-pin gauge is refreshed, and a sweep report
// is written under <data>/state/retention.
package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"zerozero/pkg/config"
	"zerozero/pkg/logger"
	"zerozero/pkg/state"
	"zerozero/pkg/store"
)

// Deps are the stores the sweep touches.
type Deps struct {
	Queue *store.Queue
	Pins  *store.Pins
}

// Report is the artifact written after each sweep.
type Report struct {
	Time        string `json:"time"`
	QueuePurged int    `json:"queue_purged"`
	PinsLive    int    `json:"pins_live"`
	DryRun      bool   `json:"dry_run"`
	DurationMs  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

const defaultCron = "0 2 * * *"

// RunOnce performs a single sweep and writes the report artifact.
func RunOnce(deps Deps, dataPath string, dryRun bool) (Report, error) {
	started := time.Now()
	rep := Report{Time: started.UTC().Format(time.RFC3339), DryRun: dryRun}

	if dryRun {
		items, err := deps.Queue.LoadAll()
		if err != nil {
			rep.Error = err.Error()
		} else {
			now := time.Now().UnixMilli()
			for _, it := range items {
				if it.Expired(now) {
					rep.QueuePurged++
				}
			}
		}
	} else {
		n, err := deps.Queue.PurgeExpired()
		if err != nil {
			rep.Error = err.Error()
		}
		rep.QueuePurged = n
	}
	rep.PinsLive = deps.Pins.CountLive()
	rep.DurationMs = time.Since(started).Milliseconds()

	b, _ := json.MarshalIndent(rep, "", "  ")
	name := fmt.Sprintf("sweep-%d.json", started.UnixNano())
	if _, err := state.WriteArtifact(dataPath, "retention", name, b); err != nil {
		logger.Warn("retention_report_write_failed", "error", err)
	}
	logger.Info("retention_sweep", "purged", rep.QueuePurged, "pins_live", rep.PinsLive, "dry_run", dryRun)
	if rep.Error != "" {
		return rep, fmt.Errorf("retention sweep: %s", rep.Error)
	}
	return rep, nil
}

// Start launches the cron scheduler when retention is enabled. The
// returned cancel stops it.
func Start(ctx context.Context, cfg config.RetentionConfig, deps Deps, dataPath string) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, deps, dataPath, cfg.DryRun)
	logger.Info("retention_enabled", "cron", cronExpr, "dry_run", cfg.DryRun)
	return cancel, nil
}

// runScheduler sleeps until each next cron tick and sweeps.
func runScheduler(ctx context.Context, cronExpr string, deps Deps, dataPath string, dryRun bool) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if _, err := RunOnce(deps, dataPath, dryRun); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}
