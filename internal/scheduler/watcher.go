// Package scheduler runs the background loop that watches market deadlines.
// It only announces markets that are due; resolving them is the authority's
// call.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atmx/binary-amm/internal/metrics"
	"github.com/atmx/binary-amm/internal/model"
	"github.com/atmx/binary-amm/internal/store"
)

// MarketLister is the read the watcher needs from the store.
type MarketLister interface {
	ListMarkets(ctx context.Context, f store.MarketFilter) ([]model.Market, error)
}

// Notifier receives one call per market the first time it is seen past its
// resolution time. Satisfied by *trade.WSHub.
type Notifier interface {
	NotifyExpired(marketID uint64, at time.Time)
}

// Watcher periodically lists unresolved markets past their deadline.
type Watcher struct {
	markets  MarketLister
	notifier Notifier
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	announced map[uint64]bool
}

// NewWatcher creates a Watcher. A nil notifier only updates the gauge.
func NewWatcher(markets MarketLister, notifier Notifier, interval time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		markets:   markets,
		notifier:  notifier,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
		announced: make(map[uint64]bool),
	}
}

// Run checks deadlines every interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.recoverAndLog()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Tick(ctx); err != nil {
			w.logger.Error("deadline watcher: tick failed", "err", err)
		}
		select {
		case <-ctx.Done():
			w.logger.Info("deadline watcher: shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one check and returns the ids announced for the first time.
func (w *Watcher) Tick(ctx context.Context) ([]uint64, error) {
	now := w.now()
	due, err := w.markets.ListMarkets(ctx, store.MarketFilter{DueBy: now})
	if err != nil {
		return nil, fmt.Errorf("list due markets: %w", err)
	}
	metrics.MarketsAwaitingResolution.Set(float64(len(due)))

	seen := make(map[uint64]bool, len(due))
	var fresh []uint64
	for _, m := range due {
		seen[m.ID] = true
		if w.announced[m.ID] {
			continue
		}
		w.announced[m.ID] = true
		fresh = append(fresh, m.ID)
		w.logger.Info("market awaiting resolution",
			"market_id", m.ID,
			"question", m.Question,
			"resolution_time", m.ResolutionTime,
		)
		if w.notifier != nil {
			w.notifier.NotifyExpired(m.ID, now)
		}
	}
	// Forget markets that have since been resolved.
	for id := range w.announced {
		if !seen[id] {
			delete(w.announced, id)
		}
	}
	return fresh, nil
}

func (w *Watcher) recoverAndLog() {
	if r := recover(); r != nil {
		w.logger.Error("deadline watcher: panic recovered", "panic", r)
	}
}
