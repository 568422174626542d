package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/watchlist"
)

// AddInstrument validates and registers a new watchlist entry.
func (a *App) AddInstrument(ctx context.Context, code, name, upper, lower, owner string) error {
	upperDec, lowerDec, err := parseThresholds(upper, lower)
	if err != nil {
		return err
	}

	inst := watchlist.Instrument{
		Code:           code,
		Name:           name,
		UpperThreshold: upperDec,
		LowerThreshold: lowerDec,
		OwnerEmail:     owner,
	}
	if err := inst.Validate(); err != nil {
		return err
	}

	if err := a.watch.Add(ctx, inst); err != nil {
		return err
	}
	a.logger.Info().Str("code", code).Str("name", name).Msg("已加入监控列表")
	return nil
}

// RemoveInstrument drops a watchlist entry.
func (a *App) RemoveInstrument(ctx context.Context, code, owner string) error {
	if err := a.watch.Remove(ctx, code, owner); err != nil {
		return err
	}
	a.logger.Info().Str("code", code).Msg("已移出监控列表")
	return nil
}

// SetThresholds replaces the threshold pair for a tracked instrument.
func (a *App) SetThresholds(ctx context.Context, code, owner, upper, lower string) error {
	upperDec, lowerDec, err := parseThresholds(upper, lower)
	if err != nil {
		return err
	}
	if err := watchlist.ValidateThresholds(upperDec, lowerDec); err != nil {
		return err
	}

	if err := a.watch.UpdateThresholds(ctx, code, owner, upperDec, lowerDec); err != nil {
		return err
	}
	a.logger.Info().
		Str("code", code).
		Str("upper", upperDec.String()).
		Str("lower", lowerDec.String()).
		Msg("阈值已更新")
	return nil
}

// ListInstruments returns the tracked instruments.
func (a *App) ListInstruments(ctx context.Context) ([]watchlist.Instrument, error) {
	return a.watch.List(ctx)
}

func parseThresholds(upper, lower string) (decimal.Decimal, decimal.Decimal, error) {
	upperDec, err := decimal.NewFromString(upper)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("invalid upper threshold %q: %w", upper, err)
	}
	lowerDec, err := decimal.NewFromString(lower)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("invalid lower threshold %q: %w", lower, err)
	}
	return upperDec, lowerDec, nil
}
