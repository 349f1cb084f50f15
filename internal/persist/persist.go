// Package persist stores the build ledger and monitoring state in a local
// SQLite database. Records are kept as JSON documents; each save rewrites
// the full collection in one transaction, matching the in-memory stores'
// save-all-on-mutation model.
package persist

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/releasedeck/releasedeck/internal/build"
	"github.com/releasedeck/releasedeck/internal/monitor"
)

const schema = `
CREATE TABLE IF NOT EXISTS build_records (
	application_name    TEXT NOT NULL,
	application_version TEXT NOT NULL,
	document            TEXT NOT NULL,
	PRIMARY KEY (application_name, application_version)
);
CREATE TABLE IF NOT EXISTS monitoring_records (
	service_id TEXT NOT NULL PRIMARY KEY,
	document   TEXT NOT NULL
);`

// DB wraps the SQLite handle. The connection pool is capped at one
// connection; the pure-Go driver serializes writers anyway and a single
// connection avoids SQLITE_BUSY under concurrent saves.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveBuilds replaces the persisted ledger with records.
func (d *DB) SaveBuilds(records []*build.Record) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("persist: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM build_records`); err != nil {
		return fmt.Errorf("persist: clear builds: %w", err)
	}
	for _, rec := range records {
		doc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("persist: encode %s/%s: %w", rec.ApplicationName, rec.ApplicationVersion, err)
		}
		_, err = tx.Exec(
			`INSERT INTO build_records (application_name, application_version, document) VALUES (?, ?, ?)`,
			rec.ApplicationName, rec.ApplicationVersion, string(doc))
		if err != nil {
			return fmt.Errorf("persist: insert %s/%s: %w", rec.ApplicationName, rec.ApplicationVersion, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist: commit builds: %w", err)
	}
	return nil
}

// LoadBuilds reads the persisted ledger. A missing table or empty database
// yields an empty slice, not an error.
func (d *DB) LoadBuilds() ([]*build.Record, error) {
	rows, err := d.db.Query(`SELECT document FROM build_records`)
	if err != nil {
		return nil, fmt.Errorf("persist: query builds: %w", err)
	}
	defer rows.Close()

	var out []*build.Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("persist: scan build row: %w", err)
		}
		rec := &build.Record{}
		if err := json.Unmarshal([]byte(doc), rec); err != nil {
			return nil, fmt.Errorf("persist: decode build record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveMonitorings replaces the persisted monitoring state with records.
func (d *DB) SaveMonitorings(records []monitor.Monitoring) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("persist: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM monitoring_records`); err != nil {
		return fmt.Errorf("persist: clear monitorings: %w", err)
	}
	for _, m := range records {
		doc, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("persist: encode %s: %w", m.ServiceID, err)
		}
		_, err = tx.Exec(
			`INSERT INTO monitoring_records (service_id, document) VALUES (?, ?)`,
			m.ServiceID, string(doc))
		if err != nil {
			return fmt.Errorf("persist: insert %s: %w", m.ServiceID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist: commit monitorings: %w", err)
	}
	return nil
}

// LoadMonitorings reads the persisted monitoring state.
func (d *DB) LoadMonitorings() ([]monitor.Monitoring, error) {
	rows, err := d.db.Query(`SELECT document FROM monitoring_records`)
	if err != nil {
		return nil, fmt.Errorf("persist: query monitorings: %w", err)
	}
	defer rows.Close()

	var out []monitor.Monitoring
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("persist: scan monitoring row: %w", err)
		}
		var m monitor.Monitoring
		if err := json.Unmarshal([]byte(doc), &m); err != nil {
			return nil, fmt.Errorf("persist: decode monitoring record: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
