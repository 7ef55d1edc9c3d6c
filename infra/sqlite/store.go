// Package sqlite is the record store backed by a SQLite database holding
// hospitals, blood inventory and blood requests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/bloodlift/core/model"
	"github.com/kilianp07/bloodlift/core/records"
)

const schema = `CREATE TABLE IF NOT EXISTS hospital (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        latitude REAL NOT NULL,
        longitude REAL NOT NULL
    );
    CREATE TABLE IF NOT EXISTS blood_inventory (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        hospital_id INTEGER NOT NULL REFERENCES hospital(id),
        blood_type TEXT NOT NULL,
        units INTEGER NOT NULL,
        last_updated INTEGER NOT NULL,
        UNIQUE(hospital_id, blood_type)
    );
    CREATE TABLE IF NOT EXISTS blood_request (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        hospital_id INTEGER NOT NULL REFERENCES hospital(id),
        blood_type TEXT NOT NULL,
        units INTEGER NOT NULL,
        urgency TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'pending',
        created_at INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS blood_request_status ON blood_request(status, created_at);`

// Store implements records.Store and records.Editor.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps in-memory databases shared and serialises writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ListPendingRequests(ctx context.Context) ([]model.DeliveryRequest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, hospital_id, blood_type, units, urgency, status, created_at
        FROM blood_request WHERE status = ? ORDER BY created_at, id`, string(model.StatusPending))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.DeliveryRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *Store) GetRequest(ctx context.Context, id int64) (model.DeliveryRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, hospital_id, blood_type, units, urgency, status, created_at
        FROM blood_request WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DeliveryRequest{}, fmt.Errorf("request %d: %w", id, records.ErrNotFound)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (model.DeliveryRequest, error) {
	var r model.DeliveryRequest
	var urgency, status string
	var created int64
	if err := sc.Scan(&r.ID, &r.HospitalID, &r.BloodType, &r.Units, &urgency, &status, &created); err != nil {
		return model.DeliveryRequest{}, err
	}
	r.Urgency = model.Urgency(urgency)
	r.Status = model.RequestStatus(status)
	r.CreatedAt = time.Unix(0, created).UTC()
	return r, nil
}

func (s *Store) ListInventory(ctx context.Context) ([]model.InventoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT hospital_id, blood_type, units, last_updated
        FROM blood_inventory WHERE units > 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.InventoryRecord
	for rows.Next() {
		var r model.InventoryRecord
		var updated int64
		if err := rows.Scan(&r.HospitalID, &r.BloodType, &r.Units, &updated); err != nil {
			return nil, err
		}
		r.LastUpdated = time.Unix(0, updated).UTC()
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *Store) ListHospitals(ctx context.Context) ([]model.Hospital, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, latitude, longitude FROM hospital ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Hospital
	for rows.Next() {
		var h model.Hospital
		if err := rows.Scan(&h.ID, &h.Name, &h.Latitude, &h.Longitude); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (s *Store) GetHospital(ctx context.Context, id int64) (model.Hospital, error) {
	var h model.Hospital
	err := s.db.QueryRowContext(ctx, `SELECT id, name, latitude, longitude FROM hospital WHERE id = ?`, id).
		Scan(&h.ID, &h.Name, &h.Latitude, &h.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Hospital{}, fmt.Errorf("hospital %d: %w", id, records.ErrNotFound)
	}
	return h, err
}

// UpdateRequestStatus changes the status inside a transaction so the
// transition check and the write see the same row.
func (s *Store) UpdateRequestStatus(ctx context.Context, id int64, status model.RequestStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM blood_request WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("request %d: %w", id, records.ErrNotFound)
	}
	if err != nil {
		return err
	}
	from := model.RequestStatus(current)
	if !from.CanTransition(status) {
		return records.TransitionError(id, from, status)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE blood_request SET status = ? WHERE id = ?`, string(status), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateRequest(ctx context.Context, r model.DeliveryRequest) (model.DeliveryRequest, error) {
	if err := r.Validate(); err != nil {
		return model.DeliveryRequest{}, records.Invalid(err)
	}
	if _, err := s.GetHospital(ctx, r.HospitalID); err != nil {
		return model.DeliveryRequest{}, err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	r.Status = model.StatusPending
	r.Urgency = model.Urgency(strings.ToLower(string(r.Urgency)))
	res, err := s.db.ExecContext(ctx, `INSERT INTO blood_request (hospital_id, blood_type, units, urgency, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		r.HospitalID, r.BloodType, r.Units, string(r.Urgency), string(r.Status), r.CreatedAt.UnixNano())
	if err != nil {
		return model.DeliveryRequest{}, err
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return model.DeliveryRequest{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (s *Store) UpsertInventory(ctx context.Context, rec model.InventoryRecord) error {
	if rec.Units < 0 {
		return records.Invalid(errors.New("units must not be negative"))
	}
	if _, err := s.GetHospital(ctx, rec.HospitalID); err != nil {
		return err
	}
	if rec.LastUpdated.IsZero() {
		rec.LastUpdated = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO blood_inventory (hospital_id, blood_type, units, last_updated)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(hospital_id, blood_type) DO UPDATE SET
            units = excluded.units,
            last_updated = excluded.last_updated`,
		rec.HospitalID, rec.BloodType, rec.Units, rec.LastUpdated.UnixNano())
	return err
}

func (s *Store) AddHospital(ctx context.Context, h model.Hospital) (model.Hospital, error) {
	if strings.TrimSpace(h.Name) == "" {
		return model.Hospital{}, records.Invalid(errors.New("hospital name is required"))
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO hospital (name, latitude, longitude) VALUES (?, ?, ?)`,
		h.Name, h.Latitude, h.Longitude)
	if err != nil {
		return model.Hospital{}, err
	}
	h.ID, err = res.LastInsertId()
	return h, err
}

func (s *Store) ListRequests(ctx context.Context) ([]model.DeliveryRequest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, hospital_id, blood_type, units, urgency, status, created_at
        FROM blood_request ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.DeliveryRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *Store) UpdateHospital(ctx context.Context, h model.Hospital) error {
	if strings.TrimSpace(h.Name) == "" {
		return records.Invalid(errors.New("hospital name is required"))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := openRequests(ctx, tx, h.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE hospital SET name = ?, latitude = ?, longitude = ? WHERE id = ?`,
		h.Name, h.Latitude, h.Longitude, h.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// openRequests fails with ErrNotFound for an unknown hospital and with
// ErrInUse while pending or scheduled requests reference it.
func openRequests(ctx context.Context, tx *sql.Tx, id int64) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM hospital WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("hospital %d: %w", id, records.ErrNotFound)
	}
	var open int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM blood_request WHERE hospital_id = ? AND status IN (?, ?)`,
		id, string(model.StatusPending), string(model.StatusScheduled)).Scan(&open); err != nil {
		return err
	}
	if open > 0 {
		return fmt.Errorf("hospital %d has %d open requests: %w", id, open, records.ErrInUse)
	}
	return nil
}

func (s *Store) DeleteHospital(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := openRequests(ctx, tx, id); err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM blood_inventory WHERE hospital_id = ?`,
		`DELETE FROM blood_request WHERE hospital_id = ?`,
		`DELETE FROM hospital WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
