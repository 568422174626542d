package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/alerting"
	"stock-price-alerts/internal/enrichment"
	"stock-price-alerts/internal/pricefeed"
	"stock-price-alerts/internal/storage"
	"stock-price-alerts/internal/watchlist"
)

// Deduper decides whether a breach becomes a new alert.
type Deduper interface {
	IsNewAlert(ctx context.Context, code string, dir alerting.Direction, price decimal.Decimal) (bool, error)
}

// Enricher produces structured commentary for a breach.
type Enricher interface {
	Enrich(ctx context.Context, code string, price decimal.Decimal, direction string) enrichment.Result
}

// Breach describes a threshold crossing.
type Breach struct {
	Direction alerting.Direction
	Threshold decimal.Decimal
}

// Evaluate compares a price against an instrument's threshold pair. Both
// boundaries are inclusive; the upper threshold wins if the pair is
// misconfigured to overlap.
func Evaluate(price decimal.Decimal, inst watchlist.Instrument) (Breach, bool) {
	if price.GreaterThanOrEqual(inst.UpperThreshold) {
		return Breach{Direction: alerting.DirectionUp, Threshold: inst.UpperThreshold}, true
	}
	if price.LessThanOrEqual(inst.LowerThreshold) {
		return Breach{Direction: alerting.DirectionDown, Threshold: inst.LowerThreshold}, true
	}
	return Breach{}, false
}

// Options 聚合一次行情巡检所需的全部协作方。
type Options struct {
	Watchlist watchlist.Store
	Feed      pricefeed.Feed
	Dedup     Deduper
	// Enricher may be nil when AI analysis is disabled.
	Enricher Enricher
	Sink     storage.AlertSink
	Notifier alerting.Notifier
	// Locker may be nil when no database is configured; the scheduler's
	// in-process guard is then the only serialisation.
	Locker  storage.AdvisoryLocker
	LockKey int64

	FetchTimeout time.Duration
	FetchDelay   time.Duration
	Workers      int
}

// Monitor runs the evaluation pipeline: fetch quotes, compare thresholds,
// deduplicate, enrich, persist, notify.
type Monitor struct {
	opts   Options
	logger zerolog.Logger
}

// New builds a Monitor.
func New(opts Options, logger zerolog.Logger) *Monitor {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Monitor{
		opts:   opts,
		logger: logger.With().Str("component", "monitor").Logger(),
	}
}

// RunOnce performs a single evaluation pass over the whole watchlist.
// Feed failures skip the affected instrument; state-store failures abort
// the run so that no alert can be double-sent or silently lost.
func (m *Monitor) RunOnce(ctx context.Context) error {
	if m.opts.Locker != nil {
		unlock, acquired, err := m.opts.Locker.TryAdvisoryLock(ctx, m.opts.LockKey)
		if err != nil {
			return fmt.Errorf("acquire run lock: %w", err)
		}
		if !acquired {
			m.logger.Info().Msg("另一进程正在巡检，本轮跳过")
			return nil
		}
		defer unlock()
	}

	instruments, err := m.opts.Watchlist.List(ctx)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}
	if len(instruments) == 0 {
		m.logger.Debug().Msg("watchlist is empty; nothing to evaluate")
		return nil
	}

	started := time.Now()
	quotes := m.fetchQuotes(ctx, instruments)

	alertsSent := 0
	for _, inst := range instruments {
		quote, ok := quotes[inst.Code]
		if !ok {
			continue
		}

		breach, breached := Evaluate(quote.Price, inst)
		if !breached {
			continue
		}

		isNew, err := m.opts.Dedup.IsNewAlert(ctx, inst.Code, breach.Direction, quote.Price)
		if err != nil {
			return fmt.Errorf("deduplicate %s: %w", inst.Code, err)
		}
		if !isNew {
			continue
		}

		if err := m.emit(ctx, inst, quote, breach); err != nil {
			return err
		}
		alertsSent++
	}

	m.logger.Info().
		Int("instruments", len(instruments)).
		Int("quotes", len(quotes)).
		Int("alerts", alertsSent).
		Dur("elapsed", time.Since(started)).
		Msg("巡检完成")
	return nil
}

// emit finalises one breach: enrich, persist, then notify. Notification
// failures are logged but do not fail the run; the alert is already durable.
func (m *Monitor) emit(ctx context.Context, inst watchlist.Instrument, quote pricefeed.Quote, breach Breach) error {
	var analysis *enrichment.Result
	if m.opts.Enricher != nil {
		res := m.opts.Enricher.Enrich(ctx, inst.Code, quote.Price, string(breach.Direction))
		analysis = &res
	}

	event := storage.AlertEvent{
		Code:           inst.Code,
		Name:           inst.Name,
		Direction:      string(breach.Direction),
		TriggeredPrice: quote.Price,
		ThresholdPrice: breach.Threshold,
		TriggeredAt:    quote.ObservedAt,
		OwnerEmail:     inst.OwnerEmail,
	}
	if analysis != nil {
		if raw, err := json.Marshal(analysis); err == nil {
			event.Enrichment = raw
		}
	}

	id, err := m.opts.Sink.RecordAlert(ctx, event)
	if err != nil {
		return fmt.Errorf("persist alert for %s: %w", inst.Code, err)
	}

	m.logger.Info().
		Int64("alert_id", id).
		Str("code", inst.Code).
		Str("direction", string(breach.Direction)).
		Str("price", quote.Price.StringFixed(2)).
		Str("threshold", breach.Threshold.StringFixed(2)).
		Msg("触发价格告警")

	if m.opts.Notifier != nil {
		note := alerting.Notification{
			Code:        inst.Code,
			Name:        inst.Name,
			Direction:   breach.Direction,
			Price:       quote.Price,
			Threshold:   breach.Threshold,
			TriggeredAt: quote.ObservedAt,
			Recipient:   inst.OwnerEmail,
			Analysis:    analysis,
		}
		if err := m.opts.Notifier.Notify(ctx, note); err != nil {
			m.logger.Error().Err(err).Str("code", inst.Code).Msg("告警投递失败，事件已入库")
		}
	}
	return nil
}

// fetchQuotes pulls the latest quote for every instrument, skipping the
// ones whose feed call fails. With more than one worker the fetches run
// concurrently; the delay throttles each worker between calls.
func (m *Monitor) fetchQuotes(ctx context.Context, instruments []watchlist.Instrument) map[string]pricefeed.Quote {
	codes := make([]string, 0, len(instruments))
	seen := make(map[string]bool, len(instruments))
	for _, inst := range instruments {
		if !seen[inst.Code] {
			seen[inst.Code] = true
			codes = append(codes, inst.Code)
		}
	}

	quotes := make(map[string]pricefeed.Quote, len(codes))
	var mu sync.Mutex

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < m.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first := true
			for code := range jobs {
				if !first && m.opts.FetchDelay > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(m.opts.FetchDelay):
					}
				}
				first = false

				quote, err := m.fetchOne(ctx, code)
				if err != nil {
					m.logger.Warn().Err(err).Str("code", code).Msg("获取行情失败，跳过该标的")
					continue
				}
				mu.Lock()
				quotes[code] = quote
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, code := range codes {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- code:
		}
	}
	close(jobs)
	wg.Wait()

	return quotes
}

func (m *Monitor) fetchOne(ctx context.Context, code string) (pricefeed.Quote, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer cancel()
	return m.opts.Feed.Latest(fetchCtx, code)
}
