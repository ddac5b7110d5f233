package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// LedgerSchemaVersion is the current ledger schema version.
const LedgerSchemaVersion = 1

const ledgerSchemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    workflow TEXT NOT NULL,
    version TEXT NOT NULL,
    started_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    time TEXT NOT NULL,
    flow_name TEXT,
    pairing INTEGER,
    event TEXT NOT NULL,
    seconds_elapsed REAL NOT NULL,
    cumulative_seconds REAL NOT NULL,
    PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_events_flow ON events(run_id, flow_name);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// Ledger archives telemetry events of one or more runs in a SQLite file.
// It is an append-only record of the time log, not run state.
type Ledger struct {
	db    *sql.DB
	path  string
	runID string
}

// OpenLedger opens (creating if needed) the ledger at path and registers
// runID as a new run.
func OpenLedger(ctx context.Context, path, runID, workflow, version string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initLedgerSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO runs (run_id, workflow, version, started_at) VALUES (?, ?, ?, ?)`,
		runID, workflow, version, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register run: %w", err)
	}

	return &Ledger{db: db, path: path, runID: runID}, nil
}

func initLedgerSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ledgerSchemaV1); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		LedgerSchemaVersion, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Append stores event e at position seq of the current run.
func (ld *Ledger) Append(ctx context.Context, seq int, e Event) error {
	var pairingIdx sql.NullInt64
	if e.Pairing >= 0 {
		pairingIdx = sql.NullInt64{Int64: int64(e.Pairing), Valid: true}
	}
	_, err := ld.db.ExecContext(ctx,
		`INSERT INTO events (run_id, seq, time, flow_name, pairing, event, seconds_elapsed, cumulative_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ld.runID, seq, e.Time.UTC().Format(time.RFC3339Nano), e.FlowName, pairingIdx,
		e.Event, e.SecondsElapsed, e.CumulativeSeconds)
	if err != nil {
		return fmt.Errorf("insert event %d: %w", seq, err)
	}
	return nil
}

// Events returns the stored events of runID in sequence order.
func (ld *Ledger) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := ld.db.QueryContext(ctx,
		`SELECT time, flow_name, pairing, event, seconds_elapsed, cumulative_seconds
		 FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ts         string
			flow       sql.NullString
			pairingIdx sql.NullInt64
			e          Event
		)
		if err := rows.Scan(&ts, &flow, &pairingIdx, &e.Event, &e.SecondsElapsed, &e.CumulativeSeconds); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}
		e.FlowName = flow.String
		e.Pairing = -1
		if pairingIdx.Valid {
			e.Pairing = int(pairingIdx.Int64)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Path returns the ledger file path.
func (ld *Ledger) Path() string { return ld.path }

// Close closes the database.
func (ld *Ledger) Close() error {
	if ld == nil || ld.db == nil {
		return nil
	}
	return ld.db.Close()
}
