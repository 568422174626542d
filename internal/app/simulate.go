package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/pricefeed"
)

// staticFeed serves one injected price and reports every other instrument
// as unavailable, so a simulation run touches only the targeted code.
type staticFeed struct {
	code  string
	price decimal.Decimal
}

func (f staticFeed) Latest(ctx context.Context, code string) (pricefeed.Quote, error) {
	if code != f.code {
		return pricefeed.Quote{}, pricefeed.ErrUnavailable
	}
	return pricefeed.Quote{Code: code, Price: f.price, ObservedAt: time.Now().UTC()}, nil
}

var _ pricefeed.Feed = staticFeed{}

// SimulateAlert runs the full evaluation pipeline for one instrument with an
// injected price. Cooldown, persistence, and notification behave exactly as
// in a live run.
func (a *App) SimulateAlert(ctx context.Context, code, price string) error {
	priceDec, err := decimal.NewFromString(price)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", price, err)
	}

	a.logger.Info().Str("code", code).Str("price", priceDec.String()).Msg("模拟价格巡检")
	mon := a.newMonitor(staticFeed{code: code, price: priceDec})
	return mon.RunOnce(ctx)
}
