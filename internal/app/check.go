package app

import (
	"context"
	"fmt"

	"stock-price-alerts/internal/alerting"
)

// CheckNow runs a single evaluation pass outside the daemon. The advisory
// lock keeps it from overlapping with a running daemon's pass.
func (a *App) CheckNow(ctx context.Context) error {
	mon := a.newMonitor(a.newFeed())
	return mon.RunOnce(ctx)
}

// ResetAlert clears the cooldown for one (code, direction) pair so the next
// breach alerts immediately. Reports whether a record existed.
func (a *App) ResetAlert(ctx context.Context, code, direction string) (bool, error) {
	dir, err := alerting.ParseDirection(direction)
	if err != nil {
		return false, err
	}

	dedup := alerting.NewDeduplicator(a.cooldown, a.cfg.Alerting.Cooldown, decimalPct(a.cfg.Alerting.SignificantMovePct), a.logger)
	deleted, err := dedup.Reset(ctx, code, dir)
	if err != nil {
		return false, fmt.Errorf("reset alert state: %w", err)
	}
	return deleted, nil
}
