package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Direction is the side of the threshold a price breached.
type Direction string

const (
	// DirectionUp: price at or above the upper threshold.
	DirectionUp Direction = "UP"
	// DirectionDown: price at or below the lower threshold.
	DirectionDown Direction = "DOWN"
)

// ParseDirection validates an operator-supplied direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionUp:
		return DirectionUp, nil
	case DirectionDown:
		return DirectionDown, nil
	}
	return "", fmt.Errorf("invalid direction %q (want UP or DOWN)", s)
}

// CooldownRecord tracks the last notified breach per (instrument, direction).
type CooldownRecord struct {
	Code           string
	Direction      Direction
	LastPrice      decimal.Decimal
	LastNotifiedAt time.Time
}

// CooldownStore persists cooldown records durably across restarts. Writes
// to a single (code, direction) key must be atomic.
type CooldownStore interface {
	GetCooldown(ctx context.Context, code string, dir Direction) (CooldownRecord, bool, error)
	PutCooldown(ctx context.Context, rec CooldownRecord) error
	DeleteCooldown(ctx context.Context, code string, dir Direction) (bool, error)
}

// Deduplicator decides whether a breach is a new alert or a repeat inside
// the cooldown window.
type Deduplicator struct {
	store              CooldownStore
	window             time.Duration
	significantMovePct decimal.Decimal
	now                func() time.Time
	logger             zerolog.Logger
}

// NewDeduplicator builds a Deduplicator. A non-positive window falls back
// to 60 minutes, a non-positive move threshold to 2%.
func NewDeduplicator(store CooldownStore, window time.Duration, significantMovePct decimal.Decimal, logger zerolog.Logger) *Deduplicator {
	if window <= 0 {
		window = 60 * time.Minute
	}
	if significantMovePct.LessThanOrEqual(decimal.Zero) {
		significantMovePct = decimal.NewFromFloat(2.0)
	}
	return &Deduplicator{
		store:              store,
		window:             window,
		significantMovePct: significantMovePct,
		now:                time.Now,
		logger:             logger.With().Str("component", "dedup").Logger(),
	}
}

// IsNewAlert reports whether the breach should produce an alert and, when it
// should, records it. A plain cooldown would suppress a materially different
// repeat breach for the whole window, so a price move of at least the
// significant-move percentage overrides an active cooldown.
func (d *Deduplicator) IsNewAlert(ctx context.Context, code string, dir Direction, price decimal.Decimal) (bool, error) {
	now := d.now()

	rec, found, err := d.store.GetCooldown(ctx, code, dir)
	if err != nil {
		return false, fmt.Errorf("load cooldown record: %w", err)
	}

	if found && now.Sub(rec.LastNotifiedAt) < d.window {
		movePct := decimal.Zero
		if !rec.LastPrice.IsZero() {
			movePct = price.Sub(rec.LastPrice).Abs().Div(rec.LastPrice).Mul(decimal.NewFromInt(100))
		}
		if movePct.LessThan(d.significantMovePct) {
			d.logger.Debug().
				Str("code", code).
				Str("direction", string(dir)).
				Str("move_pct", movePct.StringFixed(3)).
				Msg("冷却期内且价格变化不大，跳过重复告警")
			return false, nil
		}
		d.logger.Info().
			Str("code", code).
			Str("direction", string(dir)).
			Str("move_pct", movePct.StringFixed(3)).
			Msg("significant move overrides active cooldown")
	}

	updated := CooldownRecord{
		Code:           code,
		Direction:      dir,
		LastPrice:      price,
		LastNotifiedAt: now,
	}
	if err := d.store.PutCooldown(ctx, updated); err != nil {
		return false, fmt.Errorf("record cooldown: %w", err)
	}
	return true, nil
}

// Reset clears the cooldown record, returning the pair to its idle state.
func (d *Deduplicator) Reset(ctx context.Context, code string, dir Direction) (bool, error) {
	deleted, err := d.store.DeleteCooldown(ctx, code, dir)
	if err != nil {
		return false, fmt.Errorf("reset cooldown: %w", err)
	}
	if deleted {
		d.logger.Info().Str("code", code).Str("direction", string(dir)).Msg("cooldown record cleared")
	}
	return deleted, nil
}
