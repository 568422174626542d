package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// AlertEvent is a finalized, immutable breach notification record.
type AlertEvent struct {
	ID             int64
	Code           string
	Name           string
	Direction      string
	TriggeredPrice decimal.Decimal
	ThresholdPrice decimal.Decimal
	TriggeredAt    time.Time
	OwnerEmail     string
	Enrichment     json.RawMessage
	CreatedAt      time.Time
}

// AlertFilter narrows an alert listing.
type AlertFilter struct {
	Code      string
	Direction string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// AlertSink persists finalized alert events and exposes them for query.
type AlertSink interface {
	RecordAlert(ctx context.Context, event AlertEvent) (int64, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]AlertEvent, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertEvent, error)
}

// AdvisoryLocker exposes advisory lock helpers for cross-process
// serialisation of evaluation runs.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}
