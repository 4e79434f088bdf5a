package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Krajiyah/ble-parcel/pkg/util"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS packages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id  TEXT    NOT NULL,
	timestamp  INTEGER NOT NULL,
	parcels    TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_packages_device ON packages(device_id, id);
`

// SQLiteStore archives packages in a sqlite database so they survive restarts
type SQLiteStore struct {
	db     *sql.DB
	policy RetentionPolicy
	now    func() time.Time
}

// OpenSQLite opens (creating when needed) the archive at path; ":memory:" is accepted
func OpenSQLite(path string, policy RetentionPolicy) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open issue")
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite schema issue")
	}
	return &SQLiteStore{db: db, policy: policy, now: time.Now}, nil
}

func (s *SQLiteStore) StorePackage(deviceID string, timestamp int64, parcels []string) error {
	if deviceID == "" {
		return errEmptyDevice
	}
	deviceID = util.NormalizeAddr(deviceID)
	if parcels == nil {
		parcels = []string{}
	}
	b, err := json.Marshal(parcels)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "sqlite begin issue")
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`INSERT INTO packages (device_id, timestamp, parcels) VALUES (?, ?, ?)`, deviceID, timestamp, string(b)); err != nil {
		return errors.Wrap(err, "sqlite insert issue")
	}
	if err := s.evict(tx, deviceID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) evict(tx *sql.Tx, deviceID string) error {
	if cutoff := s.policy.cutoff(s.now()); cutoff > 0 {
		if _, err := tx.Exec(`DELETE FROM packages WHERE device_id = ? AND timestamp < ?`, deviceID, cutoff); err != nil {
			return errors.Wrap(err, "sqlite age eviction issue")
		}
	}
	if s.policy.MaxPerDevice > 0 {
		_, err := tx.Exec(`DELETE FROM packages WHERE device_id = ? AND id NOT IN (
			SELECT id FROM packages WHERE device_id = ? ORDER BY id DESC LIMIT ?)`, deviceID, deviceID, s.policy.MaxPerDevice)
		if err != nil {
			return errors.Wrap(err, "sqlite count eviction issue")
		}
	}
	return nil
}

func (s *SQLiteStore) Snapshot(deviceID string) ([]Package, error) {
	rows, err := s.db.Query(`SELECT timestamp, parcels FROM packages WHERE device_id = ? ORDER BY id`, util.NormalizeAddr(deviceID))
	if err != nil {
		return nil, errors.Wrap(err, "sqlite query issue")
	}
	defer rows.Close()
	ret := []Package{}
	for rows.Next() {
		var p Package
		var raw string
		if err := rows.Scan(&p.Timestamp, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &p.Parcels); err != nil {
			return nil, errors.Wrap(err, "sqlite parcels decode issue")
		}
		ret = append(ret, p)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) Devices() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT device_id FROM packages ORDER BY device_id`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite query issue")
	}
	defer rows.Close()
	ret := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ret = append(ret, id)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
