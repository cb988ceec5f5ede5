package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Repository defines persistence for the BLE registry and sightings.
type Repository interface {
	// List returns every registry entry ordered by MAC.
	List(ctx context.Context) ([]KnownDevice, error)

	// ReplaceDevices makes devices the complete registry in one transaction:
	// entries not listed are deleted, the rest upserted. It returns the
	// number of entries deleted.
	ReplaceDevices(ctx context.Context, devices []KnownDevice) (int, error)

	// RecordSighting upserts the sighting row for s.ID, bumping its seen count.
	RecordSighting(ctx context.Context, s Sighting) error

	// GetSighting returns ErrSightingNotFound if id was never seen.
	GetSighting(ctx context.Context, id string) (*Sighting, error)

	// ListSightings returns all sightings, most recent first.
	ListSightings(ctx context.Context) ([]Sighting, error)
}

// SQLiteRepository implements Repository on the ble_devices and
// ble_sightings tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every registry entry ordered by MAC.
func (r *SQLiteRepository) List(ctx context.Context) ([]KnownDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mac, name, track, consider_home, created_at, updated_at
		FROM ble_devices
		ORDER BY mac`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []KnownDevice
	for rows.Next() {
		var (
			d            KnownDevice
			track        int
			considerHome sql.NullInt64
			createdAt    string
			updatedAt    string
		)
		if err := rows.Scan(&d.MAC, &d.Name, &track, &considerHome, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		d.Track = track == 1
		if considerHome.Valid {
			d.ConsiderHome = time.Duration(considerHome.Int64) * time.Second
		}
		d.CreatedAt = parseTime(createdAt)
		d.UpdatedAt = parseTime(updatedAt)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// ReplaceDevices makes devices the complete registry. Every entry is
// validated before anything is written; on any error the registry is left
// unchanged. CreatedAt and UpdatedAt are set on each element; created_at
// survives in storage for entries that already existed.
func (r *SQLiteRepository) ReplaceDevices(ctx context.Context, devices []KnownDevice) (int, error) {
	keep := make(map[string]struct{}, len(devices))
	for i := range devices {
		if err := ValidateKnownDevice(&devices[i]); err != nil {
			return 0, err
		}
		keep[devices[i].MAC] = struct{}{}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning registry replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	stale, err := staleMACs(ctx, tx, keep)
	if err != nil {
		return 0, err
	}
	for _, mac := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ble_devices WHERE mac = ?`, mac); err != nil {
			return 0, fmt.Errorf("deleting device %s: %w", mac, err)
		}
	}

	now := time.Now().UTC()
	for i := range devices {
		if err := upsertDevice(ctx, tx, &devices[i], now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing registry replace: %w", err)
	}
	return len(stale), nil
}

// staleMACs returns the stored MACs missing from keep.
func staleMACs(ctx context.Context, tx *sql.Tx, keep map[string]struct{}) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT mac FROM ble_devices`)
	if err != nil {
		return nil, fmt.Errorf("querying device keys: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var mac string
		if err := rows.Scan(&mac); err != nil {
			return nil, fmt.Errorf("scanning device key: %w", err)
		}
		if _, ok := keep[mac]; !ok {
			stale = append(stale, mac)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device keys: %w", err)
	}
	return stale, nil
}

func upsertDevice(ctx context.Context, tx *sql.Tx, d *KnownDevice, now time.Time) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	var considerHome any
	if d.ConsiderHome > 0 {
		considerHome = int64(d.ConsiderHome / time.Second)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO ble_devices (mac, name, track, consider_home, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(mac) DO UPDATE SET
			name = excluded.name,
			track = excluded.track,
			consider_home = excluded.consider_home,
			updated_at = excluded.updated_at`,
		d.MAC, d.Name, boolToInt(d.Track), considerHome,
		d.CreatedAt.UTC().Format(timeFormat), d.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", d.MAC, err)
	}
	return nil
}

// RecordSighting upserts the sighting row for s.ID. The stored RSSI is the
// last reported value, so a sighting without RSSI clears it.
func (r *SQLiteRepository) RecordSighting(ctx context.Context, s Sighting) error {
	if s.ID == "" {
		return fmt.Errorf("recording sighting: empty id")
	}
	if s.LastSeen.IsZero() {
		s.LastSeen = time.Now()
	}
	if s.SourceType == "" {
		s.SourceType = SourceTypeBLE
	}
	seen := s.LastSeen.UTC().Format(timeFormat)

	var rssi any
	if s.LastRSSI != nil {
		rssi = *s.LastRSSI
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ble_sightings (id, name, last_rssi, last_seen, seen_count, source_type, first_seen)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			last_rssi = excluded.last_rssi,
			last_seen = excluded.last_seen,
			seen_count = ble_sightings.seen_count + 1,
			source_type = excluded.source_type`,
		s.ID, s.Name, rssi, seen, s.SourceType, seen,
	)
	if err != nil {
		return fmt.Errorf("recording sighting %s: %w", s.ID, err)
	}
	return nil
}

const sightingColumns = `id, name, last_rssi, last_seen, first_seen, seen_count, source_type`

// GetSighting returns the sighting for id.
func (r *SQLiteRepository) GetSighting(ctx context.Context, id string) (*Sighting, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sightingColumns+` FROM ble_sightings WHERE id = ?`, id)
	s, err := scanSighting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSightingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting sighting %s: %w", id, err)
	}
	return s, nil
}

// ListSightings returns all sightings, most recent first.
func (r *SQLiteRepository) ListSightings(ctx context.Context) ([]Sighting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sightingColumns+` FROM ble_sightings ORDER BY last_seen DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying sightings: %w", err)
	}
	defer rows.Close()

	var sightings []Sighting
	for rows.Next() {
		s, err := scanSighting(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sighting: %w", err)
		}
		sightings = append(sightings, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sightings: %w", err)
	}
	return sightings, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSighting(row scanner) (*Sighting, error) {
	var (
		s         Sighting
		rssi      sql.NullInt64
		lastSeen  string
		firstSeen string
	)
	if err := row.Scan(&s.ID, &s.Name, &rssi, &lastSeen, &firstSeen, &s.SeenCount, &s.SourceType); err != nil {
		return nil, err
	}
	if rssi.Valid {
		v := int(rssi.Int64)
		s.LastRSSI = &v
	}
	s.LastSeen = parseTime(lastSeen)
	s.FirstSeen = parseTime(firstSeen)
	return &s, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s) //nolint:errcheck // zero time on garbage
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
