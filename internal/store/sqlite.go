package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/benmeehan/trailsafe/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps device records in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies pending migrations.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open device database: %w", err)
	}
	// A single connection keeps :memory: databases shared across calls.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
		now:    time.Now,
	}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m is not closed: that would close the shared *sql.DB.
	m.Log = &migrateLogger{logger: s.logger}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	version, _, err := m.Version()
	if err == nil {
		s.logger.Debug().Uint("schema_version", version).Msg("Device database ready")
	}
	return nil
}

// Save implements DeviceStore. Saving an existing (user, device) pair replaces
// its descriptor and labels but keeps the original creation time.
func (s *SQLiteStore) Save(ctx context.Context, rec models.DeviceRecord) (models.DeviceRecord, error) {
	if err := checkUser(rec.UserID); err != nil {
		return models.DeviceRecord{}, err
	}
	if err := rec.Descriptor.Validate(); err != nil {
		return models.DeviceRecord{}, err
	}

	descriptor, err := json.Marshal(rec.Descriptor)
	if err != nil {
		return models.DeviceRecord{}, fmt.Errorf("failed to encode descriptor: %w", err)
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (user_id, device_id, transport, descriptor, label, phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			transport  = excluded.transport,
			descriptor = excluded.descriptor,
			label      = excluded.label,
			phone      = excluded.phone,
			updated_at = excluded.updated_at`,
		rec.UserID, rec.Descriptor.ID, string(rec.Descriptor.Transport), string(descriptor),
		rec.Label, rec.Phone, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return models.DeviceRecord{}, fmt.Errorf("failed to save device %s: %w", rec.Descriptor.ID, err)
	}

	s.logger.Debug().Str("user_id", rec.UserID).Str("device_id", rec.Descriptor.ID).Msg("Device saved")
	return s.Get(ctx, rec.UserID, rec.Descriptor.ID)
}

func (s *SQLiteStore) Get(ctx context.Context, userID, deviceID string) (models.DeviceRecord, error) {
	if err := checkUser(userID); err != nil {
		return models.DeviceRecord{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, descriptor, label, phone, created_at, updated_at
		FROM devices WHERE user_id = ? AND device_id = ?`, userID, deviceID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DeviceRecord{}, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	return rec, err
}

// List returns the user's devices in the order they were first saved.
func (s *SQLiteStore) List(ctx context.Context, userID string) ([]models.DeviceRecord, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, descriptor, label, phone, created_at, updated_at
		FROM devices WHERE user_id = ?
		ORDER BY created_at, device_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var records []models.DeviceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, deviceID string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE user_id = ? AND device_id = ?`, userID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to delete device %s: %w", deviceID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.DeviceRecord, error) {
	var (
		rec                  models.DeviceRecord
		descriptor           string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.UserID, &descriptor, &rec.Label, &rec.Phone, &createdAt, &updatedAt); err != nil {
		return models.DeviceRecord{}, err
	}
	if err := json.Unmarshal([]byte(descriptor), &rec.Descriptor); err != nil {
		return models.DeviceRecord{}, fmt.Errorf("failed to decode descriptor: %w", err)
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}

// migrateLogger routes golang-migrate output through zerolog.
type migrateLogger struct {
	logger zerolog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msgf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}
