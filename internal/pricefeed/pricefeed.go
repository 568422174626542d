package pricefeed

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable indicates the feed has no current price for the instrument.
var ErrUnavailable = errors.New("pricefeed: price not available")

// Quote is the latest observed price for one instrument. Quotes are
// ephemeral; the engine never persists them.
type Quote struct {
	Code       string
	Price      decimal.Decimal
	ObservedAt time.Time
}

// Feed retrieves the latest price for an instrument.
type Feed interface {
	Latest(ctx context.Context, code string) (Quote, error)
}
