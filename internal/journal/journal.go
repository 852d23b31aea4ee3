// Package journal keeps a short, queryable history of frames and morph
// transitions in an in-memory SQLite database. It lives and dies with the
// process.
package journal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DefaultDSN is an in-memory database private to each Journal. Open pins the
// pool to a single connection, so every query sees the same database.
const DefaultDSN = ":memory:"

// Journal wraps the SQLite connection.
type Journal struct {
	conn *sqlx.DB
}

// FrameRecord is a sampled diagnostics row. Field names match
// orchestrator.Diagnostics so the two map with copier.
type FrameRecord struct {
	ID                int64   `db:"id" json:"id"`
	Frame             uint64  `db:"frame" json:"frame"`
	AtMillis          int64   `db:"at_ms" json:"at_ms"`
	Type              string  `db:"galaxy_type" json:"type"`
	Seed              int64   `db:"seed" json:"seed"`
	TargetType        string  `db:"target_type" json:"target_type,omitempty"`
	TargetSeed        int64   `db:"target_seed" json:"target_seed,omitempty"`
	TransformProgress float64 `db:"progress" json:"transform_progress"`
	Velocity          float64 `db:"velocity" json:"velocity"`
	IsTransforming    bool    `db:"transforming" json:"is_transforming"`
	MaxAbs            float64 `db:"max_abs" json:"max_abs"`
	CacheSize         int     `db:"cache_size" json:"cache_size"`
	HitRate           float64 `db:"hit_rate" json:"hit_rate"`
}

// TransitionRecord is one state change.
type TransitionRecord struct {
	ID       int64   `db:"id" json:"id"`
	Frame    uint64  `db:"frame" json:"frame"`
	AtMillis int64   `db:"at_ms" json:"at_ms"`
	Kind     string  `db:"kind" json:"kind"`
	FromType string  `db:"from_type" json:"from_type"`
	FromSeed int64   `db:"from_seed" json:"from_seed"`
	ToType   string  `db:"to_type" json:"to_type"`
	ToSeed   int64   `db:"to_seed" json:"to_seed"`
	Progress float64 `db:"progress" json:"progress"`
}

// Open opens the database at dsn, or DefaultDSN when empty, and creates the
// schema.
func Open(dsn string) (*Journal, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One connection keeps every query on the same in-memory database.
	conn.SetMaxOpenConns(1)

	j := &Journal{conn: conn}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Debug("journal opened", "dsn", dsn)
	return j, nil
}

// Close closes the database connection; the in-memory data is gone after.
func (j *Journal) Close() error {
	return j.conn.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		frame INTEGER NOT NULL,
		at_ms INTEGER NOT NULL,
		galaxy_type TEXT NOT NULL,
		seed INTEGER NOT NULL,
		target_type TEXT NOT NULL DEFAULT '',
		target_seed INTEGER NOT NULL DEFAULT 0,
		progress REAL NOT NULL,
		velocity REAL NOT NULL,
		transforming INTEGER NOT NULL,
		max_abs REAL NOT NULL,
		cache_size INTEGER NOT NULL,
		hit_rate REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		frame INTEGER NOT NULL,
		at_ms INTEGER NOT NULL,
		kind TEXT NOT NULL,
		from_type TEXT NOT NULL,
		from_seed INTEGER NOT NULL,
		to_type TEXT NOT NULL,
		to_seed INTEGER NOT NULL,
		progress REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_frames_frame ON frames(frame);
	CREATE INDEX IF NOT EXISTS idx_transitions_kind ON transitions(kind);
	`
	_, err := j.conn.Exec(schema)
	return err
}

// RecordFrame inserts a sampled frame. A zero AtMillis is stamped with now.
func (j *Journal) RecordFrame(r FrameRecord) error {
	if r.AtMillis == 0 {
		r.AtMillis = time.Now().UnixMilli()
	}
	_, err := j.conn.NamedExec(`
		INSERT INTO frames (frame, at_ms, galaxy_type, seed, target_type, target_seed,
			progress, velocity, transforming, max_abs, cache_size, hit_rate)
		VALUES (:frame, :at_ms, :galaxy_type, :seed, :target_type, :target_seed,
			:progress, :velocity, :transforming, :max_abs, :cache_size, :hit_rate)`, r)
	if err != nil {
		return fmt.Errorf("record frame %d: %w", r.Frame, err)
	}
	return nil
}

// RecordTransition inserts a state change. A zero AtMillis is stamped with now.
func (j *Journal) RecordTransition(r TransitionRecord) error {
	if r.AtMillis == 0 {
		r.AtMillis = time.Now().UnixMilli()
	}
	_, err := j.conn.NamedExec(`
		INSERT INTO transitions (frame, at_ms, kind, from_type, from_seed, to_type, to_seed, progress)
		VALUES (:frame, :at_ms, :kind, :from_type, :from_seed, :to_type, :to_seed, :progress)`, r)
	if err != nil {
		return fmt.Errorf("record transition %s: %w", r.Kind, err)
	}
	return nil
}

// RecentFrames returns up to limit frames, newest first.
func (j *Journal) RecentFrames(limit int) ([]FrameRecord, error) {
	var rows []FrameRecord
	err := j.conn.Select(&rows, "SELECT * FROM frames ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent frames: %w", err)
	}
	return rows, nil
}

// RecentTransitions returns up to limit transitions, newest first.
func (j *Journal) RecentTransitions(limit int) ([]TransitionRecord, error) {
	var rows []TransitionRecord
	err := j.conn.Select(&rows, "SELECT * FROM transitions ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent transitions: %w", err)
	}
	return rows, nil
}

// CountTransitions returns how many transitions of kind were recorded; an
// empty kind counts all.
func (j *Journal) CountTransitions(kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = j.conn.Get(&n, "SELECT COUNT(*) FROM transitions")
	} else {
		err = j.conn.Get(&n, "SELECT COUNT(*) FROM transitions WHERE kind = ?", kind)
	}
	if err != nil {
		return 0, fmt.Errorf("count transitions: %w", err)
	}
	return n, nil
}

// Prune keeps the newest keep rows of each history table.
func (j *Journal) Prune(keep int) error {
	if keep < 0 {
		keep = 0
	}
	tx, err := j.conn.Beginx()
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"frames", "transitions"} {
		q := fmt.Sprintf("DELETE FROM %s WHERE id NOT IN (SELECT id FROM %s ORDER BY id DESC LIMIT ?)", table, table)
		if _, err := tx.Exec(q, keep); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// SaveMeta stores a run metadata value.
func (j *Journal) SaveMeta(key, value string) error {
	_, err := j.conn.Exec("INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("save meta %s: %w", key, err)
	}
	return nil
}

// GetMeta retrieves a run metadata value.
func (j *Journal) GetMeta(key string) (string, error) {
	var value string
	err := j.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}
