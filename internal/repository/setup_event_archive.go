package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"SwingScan/internal/domain/models"
	pkgch "SwingScan/pkg/clickhouse"
	xlogger "SwingScan/pkg/logger"
)

// Schema returns the DDL for the setup events table. Executed at startup via
// clickhouse.Client.InitSchema.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.setup_events (
    ts              DateTime64(3),
    event_type      LowCardinality(String),
    symbol          LowCardinality(String),
    timeframe       LowCardinality(String),
    state           LowCardinality(String),
    outcome         LowCardinality(String),
    impulse_low     Float64,
    impulse_high    Float64,
    impulse_percent Float64,
    rsi             Float64,
    rsi_at_trigger  Float64,
    price           Float64,
    entry_price     Float64,
    payload         String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(ts)
ORDER BY (symbol, timeframe, ts)
TTL toDateTime(ts) + INTERVAL 180 DAY
`, database),
	}
}

// ClickHouseArchive persists setup lifecycle events to ClickHouse.
type ClickHouseArchive struct {
	db    *sql.DB
	table string
	log   *xlogger.Logger
}

// NewClickHouseArchive creates an archive over an existing client.
func NewClickHouseArchive(ch *pkgch.Client, database string, log *xlogger.Logger) *ClickHouseArchive {
	return &ClickHouseArchive{
		db:    ch.DB(),
		table: database + ".setup_events",
		log:   log,
	}
}

func (a *ClickHouseArchive) Store(ctx context.Context, ev *models.SetupEvent) error {
	return a.StoreBatch(ctx, []*models.SetupEvent{ev})
}

func (a *ClickHouseArchive) StoreBatch(ctx context.Context, evs []*models.SetupEvent) error {
	if len(evs) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO %s
    (ts, event_type, symbol, timeframe, state, outcome,
     impulse_low, impulse_high, impulse_percent,
     rsi, rsi_at_trigger, price, entry_price, payload)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, a.table)
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range evs {
		payload, err := json.Marshal(ev.Record)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal record: %w", err)
		}
		r := ev.Record
		if _, err := stmt.ExecContext(ctx,
			ev.At, string(ev.Type), r.Symbol, r.Timeframe, string(r.State), r.Outcome,
			r.ImpulseLow, r.ImpulseHigh, r.ImpulsePercent,
			r.CurrentRSI, r.RSIAtTrigger, r.CurrentPrice, r.EntryPrice, string(payload),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert setup event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (a *ClickHouseArchive) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.SetupEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	q := fmt.Sprintf(`SELECT ts, event_type, payload FROM %s
    WHERE symbol = ? AND ts >= ? AND ts <= ?
    ORDER BY ts DESC LIMIT ?`, a.table)

	rows, err := a.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		a.log.Error("setup events query failed",
			xlogger.String("symbol", symbol),
			xlogger.Error(err))
		return nil, fmt.Errorf("query setup events: %w", err)
	}
	defer rows.Close()

	out := make([]*models.SetupEvent, 0, limit)
	for rows.Next() {
		var (
			ts      time.Time
			evType  string
			payload string
		)
		if err := rows.Scan(&ts, &evType, &payload); err != nil {
			return nil, fmt.Errorf("scan setup event: %w", err)
		}
		ev := &models.SetupEvent{Type: models.SetupEventType(evType), At: ts}
		if err := json.Unmarshal([]byte(payload), &ev.Record); err != nil {
			a.log.Warn("skipping malformed setup event payload",
				xlogger.String("symbol", symbol),
				xlogger.Error(err))
			continue
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (a *ClickHouseArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *ClickHouseArchive) Close() error {
	return nil // pool owned by the clickhouse client
}
