package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/alerting"
	"stock-price-alerts/internal/watchlist"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	listWatchlistSQL = `SELECT
        code,
        name,
        upper_threshold,
        lower_threshold,
        owner_email,
        added_at,
        updated_at
    FROM watchlist
    ORDER BY code, owner_email;`

	insertWatchSQL = `INSERT INTO watchlist (
        code,
        name,
        upper_threshold,
        lower_threshold,
        owner_email
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (code, owner_email) DO NOTHING;`

	removeWatchSQL = `DELETE FROM watchlist
    WHERE code = $1 AND owner_email = $2;`

	updateThresholdsSQL = `UPDATE watchlist
    SET upper_threshold = $3,
        lower_threshold = $4,
        updated_at      = now()
    WHERE code = $1 AND owner_email = $2;`

	getCooldownSQL = `SELECT last_price, last_notified_at
    FROM cooldowns
    WHERE code = $1 AND direction = $2;`

	upsertCooldownSQL = `INSERT INTO cooldowns (
        code,
        direction,
        last_price,
        last_notified_at
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (code, direction) DO UPDATE
    SET last_price       = EXCLUDED.last_price,
        last_notified_at = EXCLUDED.last_notified_at;`

	deleteCooldownSQL = `DELETE FROM cooldowns
    WHERE code = $1 AND direction = $2;`

	insertAlertSQL = `INSERT INTO alerts (
        code,
        name,
        direction,
        triggered_price,
        threshold_price,
        triggered_at,
        owner_email,
        enrichment
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (code, direction, triggered_at) DO UPDATE
    SET enrichment = EXCLUDED.enrichment
    RETURNING id;`

	listAlertsSQL = `SELECT
        id,
        code,
        name,
        direction,
        triggered_price,
        threshold_price,
        triggered_at,
        owner_email,
        enrichment,
        created_at
    FROM alerts
    WHERE ($1 = '' OR code = $1)
      AND ($2 = '' OR direction = $2)
      AND ($3::timestamptz IS NULL OR triggered_at >= $3)
      AND ($4::timestamptz IS NULL OR triggered_at < $4)
    ORDER BY triggered_at DESC
    LIMIT $5 OFFSET $6;`

	listRecentAlertsSQL = `SELECT
        id,
        code,
        name,
        direction,
        triggered_price,
        threshold_price,
        triggered_at,
        owner_email,
        enrichment,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store aggregates database access to the watchlist, cooldown records, and
// the alert log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// List returns every tracked instrument.
func (s *Store) List(ctx context.Context) ([]watchlist.Instrument, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listWatchlistSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list watchlist: %w", queryErr)
	}
	defer rows.Close()

	items := make([]watchlist.Instrument, 0)
	for rows.Next() {
		var (
			inst     watchlist.Instrument
			upperStr string
			lowerStr string
		)
		if err := rows.Scan(
			&inst.Code,
			&inst.Name,
			&upperStr,
			&lowerStr,
			&inst.OwnerEmail,
			&inst.AddedAt,
			&inst.UpdatedAt,
		); err != nil {
			return nil, err
		}

		inst.UpperThreshold, err = decimal.NewFromString(upperStr)
		if err != nil {
			return nil, fmt.Errorf("parse upper threshold: %w", err)
		}
		inst.LowerThreshold, err = decimal.NewFromString(lowerStr)
		if err != nil {
			return nil, fmt.Errorf("parse lower threshold: %w", err)
		}

		items = append(items, inst)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// Add inserts a new instrument; duplicates per (code, owner) are rejected.
func (s *Store) Add(ctx context.Context, inst watchlist.Instrument) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, insertWatchSQL,
		inst.Code,
		inst.Name,
		inst.UpperThreshold.String(),
		inst.LowerThreshold.String(),
		inst.OwnerEmail,
	)
	if execErr != nil {
		return fmt.Errorf("add instrument: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return watchlist.ErrDuplicate
	}
	return nil
}

// Remove deletes an instrument from the watchlist.
func (s *Store) Remove(ctx context.Context, code, owner string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, removeWatchSQL, code, owner)
	if execErr != nil {
		return fmt.Errorf("remove instrument: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return watchlist.ErrNotFound
	}
	return nil
}

// UpdateThresholds replaces the threshold pair for an instrument.
func (s *Store) UpdateThresholds(ctx context.Context, code, owner string, upper, lower decimal.Decimal) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, updateThresholdsSQL, code, owner, upper.String(), lower.String())
	if execErr != nil {
		return fmt.Errorf("update thresholds: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return watchlist.ErrNotFound
	}
	return nil
}

// GetCooldown loads the cooldown record for one (code, direction) pair.
func (s *Store) GetCooldown(ctx context.Context, code string, dir alerting.Direction) (alerting.CooldownRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return alerting.CooldownRecord{}, false, err
	}

	var (
		priceStr   string
		notifiedAt time.Time
	)
	scanErr := pool.QueryRow(ctx, getCooldownSQL, code, string(dir)).Scan(&priceStr, &notifiedAt)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return alerting.CooldownRecord{}, false, nil
		}
		return alerting.CooldownRecord{}, false, fmt.Errorf("get cooldown: %w", scanErr)
	}

	price, convErr := decimal.NewFromString(priceStr)
	if convErr != nil {
		return alerting.CooldownRecord{}, false, fmt.Errorf("parse cooldown price: %w", convErr)
	}

	return alerting.CooldownRecord{
		Code:           code,
		Direction:      dir,
		LastPrice:      price,
		LastNotifiedAt: notifiedAt,
	}, true, nil
}

// PutCooldown upserts one cooldown record atomically.
func (s *Store) PutCooldown(ctx context.Context, rec alerting.CooldownRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, execErr := pool.Exec(ctx, upsertCooldownSQL,
		rec.Code,
		string(rec.Direction),
		rec.LastPrice.String(),
		rec.LastNotifiedAt,
	); execErr != nil {
		return fmt.Errorf("upsert cooldown: %w", execErr)
	}
	return nil
}

// DeleteCooldown removes one cooldown record; reports whether one existed.
func (s *Store) DeleteCooldown(ctx context.Context, code string, dir alerting.Direction) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	cmdTag, execErr := pool.Exec(ctx, deleteCooldownSQL, code, string(dir))
	if execErr != nil {
		return false, fmt.Errorf("delete cooldown: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// RecordAlert persists a finalized alert event. Re-recording the same
// (code, direction, triggered_at) event is safe and keeps one row.
func (s *Store) RecordAlert(ctx context.Context, event AlertEvent) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var enrichment interface{}
	if len(event.Enrichment) > 0 {
		enrichment = []byte(event.Enrichment)
	}

	var id int64
	scanErr := pool.QueryRow(ctx, insertAlertSQL,
		event.Code,
		event.Name,
		event.Direction,
		event.TriggeredPrice.String(),
		event.ThresholdPrice.String(),
		event.TriggeredAt,
		event.OwnerEmail,
		enrichment,
	).Scan(&id)
	if scanErr != nil {
		return 0, fmt.Errorf("record alert: %w", scanErr)
	}
	return id, nil
}

// ListAlerts lists alert events matching the filter, newest first.
func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, queryErr := pool.Query(ctx, listAlertsSQL,
		filter.Code,
		filter.Direction,
		filter.From,
		filter.To,
		limit,
		filter.Offset,
	)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, limit)
}

// ListRecentAlerts lists the most recently created alert events.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, limit)
}

func collectAlerts(rows pgx.Rows, capacity int) ([]AlertEvent, error) {
	events := make([]AlertEvent, 0, capacity)
	for rows.Next() {
		event, scanErr := scanAlertEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func scanAlertEvent(rows pgx.Rows) (AlertEvent, error) {
	var (
		event        AlertEvent
		triggeredStr string
		thresholdStr string
		enrichment   []byte
	)

	if err := rows.Scan(
		&event.ID,
		&event.Code,
		&event.Name,
		&event.Direction,
		&triggeredStr,
		&thresholdStr,
		&event.TriggeredAt,
		&event.OwnerEmail,
		&enrichment,
		&event.CreatedAt,
	); err != nil {
		return AlertEvent{}, err
	}

	var convErr error
	event.TriggeredPrice, convErr = decimal.NewFromString(triggeredStr)
	if convErr != nil {
		return AlertEvent{}, fmt.Errorf("parse triggered price: %w", convErr)
	}
	event.ThresholdPrice, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return AlertEvent{}, fmt.Errorf("parse threshold price: %w", convErr)
	}

	if len(enrichment) > 0 {
		event.Enrichment = json.RawMessage(enrichment)
	}

	return event, nil
}

var _ watchlist.Store = (*Store)(nil)
var _ alerting.CooldownStore = (*Store)(nil)
var _ AlertSink = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)
