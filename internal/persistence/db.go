// Package persistence provides SQLite-backed storage for the country ledger,
// the played-plan log and itinerary metadata.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/atlas-live/internal/broadcast"
	"github.com/talgya/atlas-live/internal/ledger"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
// ":memory:" is accepted for tests.
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would get its own empty database.
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS country_visits (
		id TEXT PRIMARY KEY,
		country_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		theme TEXT NOT NULL,
		topic TEXT NOT NULL,
		content TEXT NOT NULL,
		local_time TEXT NOT NULL,
		visited_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		country TEXT NOT NULL,
		script_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS broadcast_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_visits_country ON country_visits(country_id, visited_at);
	CREATE INDEX IF NOT EXISTS idx_plans_created ON plans(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type visitRow struct {
	ID        string `db:"id"`
	CountryID string `db:"country_id"`
	Day       int    `db:"day"`
	Theme     string `db:"theme"`
	Topic     string `db:"topic"`
	Content   string `db:"content"`
	LocalTime string `db:"local_time"`
	VisitedAt int64  `db:"visited_at"`
}

func (r visitRow) record() ledger.VisitRecord {
	return ledger.VisitRecord{
		ID:        r.ID,
		CountryID: r.CountryID,
		Day:       r.Day,
		Theme:     r.Theme,
		Topic:     r.Topic,
		Content:   r.Content,
		LocalTime: r.LocalTime,
		VisitedAt: time.Unix(0, r.VisitedAt).UTC(),
	}
}

// LoadEntityMemory rebuilds a country's memory from its visits.
// A country with no visits yields the empty memory.
func (db *DB) LoadEntityMemory(ctx context.Context, id string) (ledger.CountryMemory, error) {
	var rows []visitRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT id, country_id, day, theme, topic, content, local_time, visited_at
		 FROM country_visits WHERE country_id = ? ORDER BY visited_at, rowid`, id)
	if err != nil {
		return ledger.CountryMemory{}, fmt.Errorf("load visits for %s: %w", id, err)
	}

	m := ledger.Empty(id)
	for _, r := range rows {
		m.Apply(r.record())
	}
	return m, nil
}

// AppendVisit inserts a visit and returns the updated memory.
func (db *DB) AppendVisit(ctx context.Context, id string, rec ledger.VisitRecord) (ledger.CountryMemory, error) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO country_visits (id, country_id, day, theme, topic, content, local_time, visited_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, id, rec.Day, rec.Theme, rec.Topic, rec.Content, rec.LocalTime, rec.VisitedAt.UnixNano(),
	)
	if err != nil {
		return ledger.CountryMemory{}, fmt.Errorf("insert visit %s: %w", rec.ID, err)
	}
	return db.LoadEntityMemory(ctx, id)
}

// CountryIDs lists every country with at least one recorded visit.
func (db *DB) CountryIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := db.conn.SelectContext(ctx, &ids, "SELECT DISTINCT country_id FROM country_visits ORDER BY country_id")
	return ids, err
}

type planRow struct {
	ID         string `db:"id"`
	Action     string `db:"action"`
	Trigger    string `db:"trigger_type"`
	Country    string `db:"country"`
	ScriptJSON string `db:"script_json"`
	CreatedAt  int64  `db:"created_at"`
}

// RecordPlan appends a played plan to the log.
func (db *DB) RecordPlan(ctx context.Context, p broadcast.Plan) error {
	scriptJSON, err := json.Marshal(p.Script)
	if err != nil {
		return fmt.Errorf("marshal script: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO plans (id, action, trigger_type, country, script_json, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		p.ID, string(p.Action), string(p.Trigger), p.Country, string(scriptJSON), p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert plan %s: %w", p.ID, err)
	}
	return nil
}

// RecentPlans returns the most recent N plans, newest first.
func (db *DB) RecentPlans(ctx context.Context, limit int) ([]broadcast.Plan, error) {
	var rows []planRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT id, action, trigger_type, country, script_json, created_at FROM plans ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}

	plans := make([]broadcast.Plan, 0, len(rows))
	for _, r := range rows {
		var script broadcast.Script
		if err := json.Unmarshal([]byte(r.ScriptJSON), &script); err != nil {
			slog.Warn("skipping corrupt plan row", "id", r.ID, "error", err)
			continue
		}
		plans = append(plans, broadcast.Plan{
			ID:        r.ID,
			Action:    broadcast.Action(r.Action),
			Trigger:   broadcast.Trigger(r.Trigger),
			Country:   r.Country,
			Script:    script,
			CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
		})
	}
	return plans, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO broadcast_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key returns "" and no error.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM broadcast_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
