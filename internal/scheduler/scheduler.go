package scheduler

import (
	"context"
	"fmt"
	"log"

	"MarketVault/internal/cache"

	"github.com/robfig/cron/v3"
)

// Scheduler periodically refreshes tracked symbols through the cache's
// staleness policy. One bad symbol never stops the others.
type Scheduler struct {
	Cron    *cron.Cron
	Cache   *cache.HistoricalCache
	Symbols []string
	Ctx     context.Context
}

// NewScheduler creates a new Scheduler over the given symbol set.
func NewScheduler(ctx context.Context, c *cache.HistoricalCache, symbols []string) *Scheduler {
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds()),
		Cache:   c,
		Symbols: symbols,
		Ctx:     ctx,
	}
}

// Register adds the refresh task under the given cron spec.
func (s *Scheduler) Register(refreshCron string) error {
	if _, err := s.Cron.AddFunc(refreshCron, s.refreshTask); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunNow executes the refresh task immediately (manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.refreshTask()
}

func (s *Scheduler) refreshTask() {
	log.Printf("[INFO] running refresh for %d symbols", len(s.Symbols))
	for _, sym := range s.Symbols {
		select {
		case <-s.Ctx.Done():
			log.Println("[INFO] refresh interrupted by shutdown")
			return
		default:
		}

		updated, err := s.Cache.UpdateSymbolData(s.Ctx, sym, false)
		if err != nil {
			log.Printf("[ERROR] refresh %s: %v", sym, err)
			continue
		}
		if updated {
			log.Printf("[INFO] refreshed %s", sym)
		}
	}
}
