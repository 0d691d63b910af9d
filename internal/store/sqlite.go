// Package store keeps a history of scans and live hosts in SQLite.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"NetMonitorGo/internal/discovery"
	"NetMonitorGo/internal/portscan"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStore appends scan records and sweep results to a database file.
// Timestamps are stored as unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save appends records in one transaction; either all are stored or none.
func (s *SQLiteStore) Save(records []portscan.ScanRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	defer tx.Rollback()

	portStmt, err := tx.Prepare(`INSERT INTO open_ports(scan_id, port, service) VALUES(?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare statement failed: %w", err)
	}
	defer portStmt.Close()

	for _, r := range records {
		res, err := tx.Exec(`
			INSERT INTO scans(target, ip, started_at, finished_at, port_start, port_end, ports_scanned, probe_errors)
			VALUES(?,?,?,?,?,?,?,?)
		`, r.Target, r.Address.String(), r.StartTime.UnixNano(), r.EndTime.UnixNano(),
			int(r.Ports.Start), int(r.Ports.End), r.PortsScanned, r.ProbeErrors)
		if err != nil {
			return fmt.Errorf("insert scan for %s failed: %w", r.Target, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id failed: %w", err)
		}
		for _, p := range r.OpenPorts {
			if _, err := portStmt.Exec(id, int(p.Port), p.Service); err != nil {
				return fmt.Errorf("insert port %d failed: %w", p.Port, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction failed: %w", err)
	}
	return nil
}

// Records returns stored scans oldest first. A target of "" returns every scan.
func (s *SQLiteStore) Records(target string) ([]portscan.ScanRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, target, ip, started_at, finished_at, port_start, port_end, ports_scanned, probe_errors
		FROM scans
		WHERE ? = '' OR target = ?
		ORDER BY id
	`, target, target)
	if err != nil {
		return nil, fmt.Errorf("query scans failed: %w", err)
	}

	var (
		ids  []int64
		recs []portscan.ScanRecord
	)
	for rows.Next() {
		var (
			id             int64
			r              portscan.ScanRecord
			ip             string
			started, ended int64
			lo, hi         int
		)
		if err := rows.Scan(&id, &r.Target, &ip, &started, &ended, &lo, &hi, &r.PortsScanned, &r.ProbeErrors); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan row failed: %w", err)
		}
		if r.Address, err = netip.ParseAddr(ip); err != nil {
			rows.Close()
			return nil, fmt.Errorf("stored address %q: %w", ip, err)
		}
		r.StartTime = time.Unix(0, started)
		r.EndTime = time.Unix(0, ended)
		r.Ports = portscan.PortRange{Start: uint16(lo), End: uint16(hi)}
		ids = append(ids, id)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i, id := range ids {
		ports, err := s.openPorts(id)
		if err != nil {
			return nil, err
		}
		recs[i].OpenPorts = ports
	}
	return recs, nil
}

func (s *SQLiteStore) openPorts(scanID int64) ([]portscan.OpenPort, error) {
	rows, err := s.db.Query(`SELECT port, service FROM open_ports WHERE scan_id=? ORDER BY port`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query open ports failed: %w", err)
	}
	defer rows.Close()

	var ports []portscan.OpenPort
	for rows.Next() {
		var (
			port    int
			service string
		)
		if err := rows.Scan(&port, &service); err != nil {
			return nil, fmt.Errorf("scan port row failed: %w", err)
		}
		ports = append(ports, portscan.OpenPort{Port: uint16(port), Service: service})
	}
	return ports, rows.Err()
}

// SaveSweep records every live host of a sweep, keeping the first sighting.
func (s *SQLiteStore) SaveSweep(res discovery.SweepResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	defer tx.Rollback()

	seen := res.EndTime.UnixNano()
	for _, h := range res.Live {
		if _, err := tx.Exec(`
			INSERT INTO hosts(ip, first_seen, last_seen) VALUES(?,?,?)
			ON CONFLICT(ip) DO UPDATE SET last_seen=excluded.last_seen
		`, h.Addr.String(), seen, seen); err != nil {
			return fmt.Errorf("upsert host %s failed: %w", h.Addr, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction failed: %w", err)
	}
	return nil
}

// Host is a stored sighting of a live address.
type Host struct {
	Addr      netip.Addr
	FirstSeen time.Time
	LastSeen  time.Time
}

// HostsSeenSince lists hosts whose last sighting is at or after cutoff.
func (s *SQLiteStore) HostsSeenSince(cutoff time.Time) ([]Host, error) {
	rows, err := s.db.Query(`
		SELECT ip, first_seen, last_seen FROM hosts
		WHERE last_seen >= ?
		ORDER BY ip
	`, cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query hosts failed: %w", err)
	}
	defer rows.Close()

	var hosts []Host
	for rows.Next() {
		var (
			ip          string
			first, last int64
		)
		if err := rows.Scan(&ip, &first, &last); err != nil {
			return nil, fmt.Errorf("scan host row failed: %w", err)
		}
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return nil, fmt.Errorf("stored address %q: %w", ip, err)
		}
		hosts = append(hosts, Host{Addr: addr, FirstSeen: time.Unix(0, first), LastSeen: time.Unix(0, last)})
	}
	return hosts, rows.Err()
}

// PortCount is how often a port was found open.
type PortCount struct {
	Port  uint16
	Count int
}

// TopPorts returns the most frequently open ports across all stored scans.
func (s *SQLiteStore) TopPorts(limit int) ([]PortCount, error) {
	rows, err := s.db.Query(`
		SELECT port, COUNT(*) AS c FROM open_ports
		GROUP BY port
		ORDER BY c DESC, port
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top ports failed: %w", err)
	}
	defer rows.Close()

	var out []PortCount
	for rows.Next() {
		var port, count int
		if err := rows.Scan(&port, &count); err != nil {
			return nil, fmt.Errorf("scan top port row failed: %w", err)
		}
		out = append(out, PortCount{Port: uint16(port), Count: count})
	}
	return out, rows.Err()
}
