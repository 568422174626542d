package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/alerting"
	"stock-price-alerts/internal/watchlist"
)

const (
	watchlistFile = "watchlist.json"
	cooldownFile  = "cooldowns.json"
	alertsFile    = "alerts.json"
)

// FileStore keeps the watchlist and cooldown records in JSON files for
// single-binary deployments without a database. Writes go through a
// temp-file rename so a crash never leaves a half-written state file.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewFileStore prepares the data directory and returns the store.
func NewFileStore(dir string, logger zerolog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("storage data dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With().Str("component", "file_store").Logger(),
	}, nil
}

type watchEntry struct {
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	UpperThreshold string    `json:"upper_threshold"`
	LowerThreshold string    `json:"lower_threshold"`
	OwnerEmail     string    `json:"owner_email"`
	AddedAt        time.Time `json:"added_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type cooldownEntry struct {
	LastPrice      string    `json:"last_price"`
	LastNotifiedAt time.Time `json:"last_notified_at"`
}

func cooldownKey(code string, dir alerting.Direction) string {
	return code + ":" + string(dir)
}

// List returns every tracked instrument.
func (f *FileStore) List(ctx context.Context) ([]watchlist.Instrument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadWatchlist()
	if err != nil {
		return nil, err
	}

	items := make([]watchlist.Instrument, 0, len(entries))
	for _, e := range entries {
		inst, convErr := entryToInstrument(e)
		if convErr != nil {
			return nil, convErr
		}
		items = append(items, inst)
	}
	return items, nil
}

// Add inserts a new instrument; duplicates per (code, owner) are rejected.
func (f *FileStore) Add(ctx context.Context, inst watchlist.Instrument) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadWatchlist()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Code == inst.Code && e.OwnerEmail == inst.OwnerEmail {
			return watchlist.ErrDuplicate
		}
	}

	now := time.Now().UTC()
	entries = append(entries, watchEntry{
		Code:           inst.Code,
		Name:           inst.Name,
		UpperThreshold: inst.UpperThreshold.String(),
		LowerThreshold: inst.LowerThreshold.String(),
		OwnerEmail:     inst.OwnerEmail,
		AddedAt:        now,
		UpdatedAt:      now,
	})

	return f.saveJSON(watchlistFile, entries)
}

// Remove deletes an instrument from the watchlist.
func (f *FileStore) Remove(ctx context.Context, code, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadWatchlist()
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.Code == code && e.OwnerEmail == owner {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(entries) {
		return watchlist.ErrNotFound
	}

	return f.saveJSON(watchlistFile, kept)
}

// UpdateThresholds replaces the threshold pair for an instrument.
func (f *FileStore) UpdateThresholds(ctx context.Context, code, owner string, upper, lower decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadWatchlist()
	if err != nil {
		return err
	}

	found := false
	for i := range entries {
		if entries[i].Code == code && entries[i].OwnerEmail == owner {
			entries[i].UpperThreshold = upper.String()
			entries[i].LowerThreshold = lower.String()
			entries[i].UpdatedAt = time.Now().UTC()
			found = true
			break
		}
	}
	if !found {
		return watchlist.ErrNotFound
	}

	return f.saveJSON(watchlistFile, entries)
}

// GetCooldown loads the cooldown record for one (code, direction) pair.
func (f *FileStore) GetCooldown(ctx context.Context, code string, dir alerting.Direction) (alerting.CooldownRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.loadCooldowns()
	if err != nil {
		return alerting.CooldownRecord{}, false, err
	}

	entry, ok := records[cooldownKey(code, dir)]
	if !ok {
		return alerting.CooldownRecord{}, false, nil
	}

	price, convErr := decimal.NewFromString(entry.LastPrice)
	if convErr != nil {
		return alerting.CooldownRecord{}, false, fmt.Errorf("parse cooldown price: %w", convErr)
	}

	return alerting.CooldownRecord{
		Code:           code,
		Direction:      dir,
		LastPrice:      price,
		LastNotifiedAt: entry.LastNotifiedAt,
	}, true, nil
}

// PutCooldown upserts one cooldown record atomically.
func (f *FileStore) PutCooldown(ctx context.Context, rec alerting.CooldownRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.loadCooldowns()
	if err != nil {
		return err
	}

	records[cooldownKey(rec.Code, rec.Direction)] = cooldownEntry{
		LastPrice:      rec.LastPrice.String(),
		LastNotifiedAt: rec.LastNotifiedAt,
	}

	return f.saveJSON(cooldownFile, records)
}

// DeleteCooldown removes one cooldown record; reports whether one existed.
func (f *FileStore) DeleteCooldown(ctx context.Context, code string, dir alerting.Direction) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.loadCooldowns()
	if err != nil {
		return false, err
	}

	key := cooldownKey(code, dir)
	if _, ok := records[key]; !ok {
		return false, nil
	}
	delete(records, key)

	if err := f.saveJSON(cooldownFile, records); err != nil {
		return false, err
	}
	return true, nil
}

type alertEntry struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Direction      string          `json:"direction"`
	TriggeredPrice string          `json:"triggered_price"`
	ThresholdPrice string          `json:"threshold_price"`
	TriggeredAt    time.Time       `json:"triggered_at"`
	OwnerEmail     string          `json:"owner_email"`
	Enrichment     json.RawMessage `json:"enrichment,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// RecordAlert appends a finalized alert event to the alert log file.
func (f *FileStore) RecordAlert(ctx context.Context, event AlertEvent) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadAlerts()
	if err != nil {
		return 0, err
	}

	var nextID int64 = 1
	for _, e := range entries {
		if e.ID >= nextID {
			nextID = e.ID + 1
		}
	}

	entries = append(entries, alertEntry{
		ID:             nextID,
		Code:           event.Code,
		Name:           event.Name,
		Direction:      event.Direction,
		TriggeredPrice: event.TriggeredPrice.String(),
		ThresholdPrice: event.ThresholdPrice.String(),
		TriggeredAt:    event.TriggeredAt,
		OwnerEmail:     event.OwnerEmail,
		Enrichment:     event.Enrichment,
		CreatedAt:      time.Now().UTC(),
	})

	if err := f.saveJSON(alertsFile, entries); err != nil {
		return 0, err
	}
	return nextID, nil
}

// ListAlerts lists alert events matching the filter, newest first.
func (f *FileStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]AlertEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadAlerts()
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	matched := make([]AlertEvent, 0, limit)
	skipped := 0
	// entries are append-ordered; walk backwards for newest-first
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if filter.Code != "" && e.Code != filter.Code {
			continue
		}
		if filter.Direction != "" && e.Direction != filter.Direction {
			continue
		}
		if filter.From != nil && e.TriggeredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !e.TriggeredAt.Before(*filter.To) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}

		event, convErr := entryToAlert(e)
		if convErr != nil {
			return nil, convErr
		}
		matched = append(matched, event)
		if len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

// ListRecentAlerts lists the most recently recorded alert events.
func (f *FileStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertEvent, error) {
	return f.ListAlerts(ctx, AlertFilter{Limit: limit})
}

func (f *FileStore) loadAlerts() ([]alertEntry, error) {
	var entries []alertEntry
	if err := f.loadJSON(alertsFile, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []alertEntry{}
	}
	return entries, nil
}

func entryToAlert(e alertEntry) (AlertEvent, error) {
	triggered, err := decimal.NewFromString(e.TriggeredPrice)
	if err != nil {
		return AlertEvent{}, fmt.Errorf("parse triggered price: %w", err)
	}
	threshold, err := decimal.NewFromString(e.ThresholdPrice)
	if err != nil {
		return AlertEvent{}, fmt.Errorf("parse threshold price: %w", err)
	}
	return AlertEvent{
		ID:             e.ID,
		Code:           e.Code,
		Name:           e.Name,
		Direction:      e.Direction,
		TriggeredPrice: triggered,
		ThresholdPrice: threshold,
		TriggeredAt:    e.TriggeredAt,
		OwnerEmail:     e.OwnerEmail,
		Enrichment:     e.Enrichment,
		CreatedAt:      e.CreatedAt,
	}, nil
}

func (f *FileStore) loadWatchlist() ([]watchEntry, error) {
	var entries []watchEntry
	if err := f.loadJSON(watchlistFile, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []watchEntry{}
	}
	return entries, nil
}

func (f *FileStore) loadCooldowns() (map[string]cooldownEntry, error) {
	var records map[string]cooldownEntry
	if err := f.loadJSON(cooldownFile, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = map[string]cooldownEntry{}
	}
	return records, nil
}

func (f *FileStore) loadJSON(name string, target any) error {
	path := filepath.Join(f.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (f *FileStore) saveJSON(name string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(f.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func entryToInstrument(e watchEntry) (watchlist.Instrument, error) {
	upper, err := decimal.NewFromString(e.UpperThreshold)
	if err != nil {
		return watchlist.Instrument{}, fmt.Errorf("parse upper threshold: %w", err)
	}
	lower, err := decimal.NewFromString(e.LowerThreshold)
	if err != nil {
		return watchlist.Instrument{}, fmt.Errorf("parse lower threshold: %w", err)
	}
	return watchlist.Instrument{
		Code:           e.Code,
		Name:           e.Name,
		UpperThreshold: upper,
		LowerThreshold: lower,
		OwnerEmail:     e.OwnerEmail,
		AddedAt:        e.AddedAt,
		UpdatedAt:      e.UpdatedAt,
	}, nil
}

var _ watchlist.Store = (*FileStore)(nil)
var _ alerting.CooldownStore = (*FileStore)(nil)
var _ AlertSink = (*FileStore)(nil)
