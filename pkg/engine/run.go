package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/nrw"
	"github.com/dd0wney/cluso-waternet/pkg/parallel"
)

const systemMetricsInterval = 15 * time.Second

// Start replays the journal, then runs the periodic jobs until ctx is done.
// It returns nil on a clean shutdown.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Recover(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.every(ctx, e.cfg.RollupInterval, func(ctx context.Context) { e.RollupAll(ctx) })
	})
	g.Go(func() error { return e.every(ctx, e.cfg.ExpirySweepInterval, e.expireAlerts) })
	g.Go(func() error { return e.every(ctx, e.cfg.SweepInterval, func(context.Context) { e.SweepIntegrity() }) })
	if e.metrics != nil {
		g.Go(func() error {
			return e.every(ctx, systemMetricsInterval, func(context.Context) {
				e.metrics.UpdateSystemMetrics(e.started)
				e.metrics.SetQueue(e.QueueDepth())
			})
		})
	}

	e.logger.Info("engine started",
		logging.Duration("rollup_interval", e.cfg.RollupInterval),
		logging.Duration("sweep_interval", e.cfg.SweepInterval))

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// every runs fn on each tick until ctx is done
func (e *Engine) every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			fn(ctx)
		}
	}
}

// RollupAll rolls up every zone on the rollup pool. Each zone gets its own
// time budget; a zone that overruns is logged and skipped.
func (e *Engine) RollupAll(ctx context.Context) []nrw.RollupResult {
	ids := e.zones.IDs()
	results := make([]nrw.RollupResult, len(ids))

	_, err := parallel.ForEach(ctx, e.workers, indexes(len(ids)), func(ctx context.Context, i int) error {
		results[i] = e.rollupOne(ctx, ids[i])
		return nil
	})
	if err != nil {
		e.logger.Warn("rollup round aborted", logging.Error(err))
	}

	now := e.now()
	if pruned := e.readings.Prune(now.Add(-e.cfg.ReadingRetention)); pruned > 0 {
		e.logger.Debug("readings condensed into day summaries", logging.Count(pruned))
	}
	if pruned := e.readings.PruneSummaries(now.Add(-e.cfg.SummaryRetention)); pruned > 0 {
		e.logger.Debug("day summaries pruned", logging.Count(pruned))
	}
	if e.metrics != nil {
		e.metrics.ReadingsRetained.Set(float64(e.readings.Len()))
	}
	return results
}

func (e *Engine) rollupOne(ctx context.Context, id dma.ID) nrw.RollupResult {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RollupBudget)
	defer cancel()

	start := e.now()
	res, err := e.nrw.Rollup(ctx, id)
	status := "success"
	switch {
	case errors.Is(err, fault.ErrRollupDeadlineExceeded):
		status = "deadline_exceeded"
		e.logger.Warn("rollup deadline exceeded", logging.DMA(string(id)),
			logging.Duration("budget", e.cfg.RollupBudget), logging.Error(err))
	case err != nil:
		status = "error"
		e.logger.Error("rollup failed", logging.DMA(string(id)), logging.Error(err))
	}
	if e.metrics != nil {
		e.metrics.RecordRollup(status, e.now().Sub(start))
	}
	if err != nil {
		return res
	}

	if res.HasNRW {
		if err := e.zones.RecordCurrentNRW(id, res.NRW, e.now()); err != nil {
			e.logger.Warn("failed to record current NRW", logging.DMA(string(id)), logging.Error(err))
		}
	}
	if e.snapshots != nil {
		if sum, err := e.ZoneSummary(id); err == nil {
			if err := e.snapshots.PutZone(ctx, sum); err != nil {
				e.logger.Warn("failed to cache zone snapshot", logging.DMA(string(id)), logging.Error(err))
			}
		}
	}
	return res
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// expireAlerts expires stale alerts and archives closed ones that have
// aged past the retention window
func (e *Engine) expireAlerts(ctx context.Context) {
	now := e.now()
	e.alerts.ExpireStale(now)

	pruned := e.alerts.Prune(now.Add(-e.cfg.ReadingRetention))
	if e.archiver == nil {
		return
	}
	for _, a := range pruned {
		if err := e.archiver.ArchiveAlert(ctx, a); err != nil {
			e.logger.Warn("failed to archive alert", logging.AlertID(a.ID), logging.Error(err))
		}
	}
}

// SweepIntegrity runs the DMA consistency sweep. A violation halts
// automated re-balancing until an operator resumes it.
func (e *Engine) SweepIntegrity() error {
	err := e.zones.Sweep()
	if err != nil {
		e.logger.Error("integrity sweep failed, re-balancing halted", logging.Error(err))
	}
	return err
}
