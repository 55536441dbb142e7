package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/bms-controller/internal/bms"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder writes transitions to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("recorder: opened %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transitions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			from_state   TEXT NOT NULL,
			to_state     TEXT NOT NULL,
			error_flags  INTEGER NOT NULL,
			errors       TEXT,
			pack_voltage REAL,
			pack_current REAL,
			cell_min     REAL,
			cell_max     REAL,
			temp_max     REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_ts ON transitions(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordTransition inserts one event.
func (r *SQLiteRecorder) RecordTransition(evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO transitions
		(timestamp, from_state, to_state, error_flags, errors,
		 pack_voltage, pack_current, cell_min, cell_max, temp_max)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		evt.Timestamp.UnixMilli(), string(evt.From), string(evt.To),
		int64(evt.ErrorFlags), evt.ErrorFlags.String(),
		evt.PackVoltage, evt.PackCurrent, evt.CellMin, evt.CellMax, evt.TempMax,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (r *SQLiteRecorder) Recent(limit int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, from_state, to_state, error_flags,
		pack_voltage, pack_current, cell_min, cell_max, temp_max
		FROM transitions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ts       int64
			from, to string
			flags    int64
			evt      Event
		)
		if err := rows.Scan(&ts, &from, &to, &flags,
			&evt.PackVoltage, &evt.PackCurrent, &evt.CellMin, &evt.CellMax, &evt.TempMax); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		evt.Timestamp = time.UnixMilli(ts).UTC()
		evt.From = bms.State(from)
		evt.To = bms.State(to)
		evt.ErrorFlags = bms.ErrorFlags(flags)
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	log.Printf("recorder: closing")
	return r.db.Close()
}
