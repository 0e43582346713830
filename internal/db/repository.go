package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"race-timing-ingest/internal/model"
	apperrors "race-timing-ingest/pkg/errors"
)

// timestamps are stored as naive local wall-clock strings, never converted
const timestampLayout = "2006-01-02 15:04:05.000"

const mysqlErrDuplicateEntry = 1062

type Repository interface {
	InsertReadings(ctx context.Context, raceID int64, readings []model.TimingReading) (int, error)
	InsertReading(ctx context.Context, raceID int64, reading model.TimingReading) (int64, error)
	SyncReadings(ctx context.Context, raceID int64, readings []model.TimingReading) (int, error)
	ChipIndex(ctx context.Context, raceID int64) ([]model.ChipIndexEntry, error)
	UpsertChipAssignments(ctx context.Context, raceID int64, entries []model.ChipIndexEntry) error
	SampleIDsInWindow(ctx context.Context, raceID int64, start, end time.Time) ([]int64, error)
	CreateImportRun(ctx context.Context, run *model.ImportRun) error
	UpdateImportRun(ctx context.Context, runID string, status model.ImportRunStatus, result *model.ImportResult, errorMessage *string) error
	GetImportRun(ctx context.Context, runID string) (*model.ImportRun, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const readingColumns = `race_id, bib_number, timing_point_id, race_distance_id, registration_id,
	chip_code, timestamp, reading_type, status_code, lap_number, is_processed, notes,
	reader_device_id, operator_user_id`

func readingArgs(raceID int64, r model.TimingReading) []interface{} {
	return []interface{}{
		raceID, r.BibNumber, r.TimingPointID, r.RaceDistanceID, r.RegistrationID,
		nullableString(r.ChipCode), r.Timestamp.Format(timestampLayout), string(r.ReadingType),
		r.StatusCode, r.LapNumber, r.IsProcessed, r.Notes,
		nullableString(r.ReaderDeviceID), r.OperatorUserID,
	}
}

// InsertReadings bulk-inserts one chunk as a single multi-row statement.
// A uniqueness violation on the chunk surfaces as DuplicateError so the
// importer can count it as already imported.
func (r *repository) InsertReadings(ctx context.Context, raceID int64, readings []model.TimingReading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	row := "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	placeholders := make([]string, len(readings))
	args := make([]interface{}, 0, len(readings)*14)
	for i, reading := range readings {
		placeholders[i] = row
		args = append(args, readingArgs(raceID, reading)...)
	}

	query := fmt.Sprintf(`INSERT INTO timing_readings (%s) VALUES %s`,
		readingColumns, strings.Join(placeholders, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classifyWriteError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading affected rows: %w", err)
	}
	return int(affected), nil
}

func (r *repository) InsertReading(ctx context.Context, raceID int64, reading model.TimingReading) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO timing_readings (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		readingColumns)

	result, err := r.db.ExecContext(ctx, query, readingArgs(raceID, reading)...)
	if err != nil {
		return 0, classifyWriteError(err)
	}
	return result.LastInsertId()
}

// SyncReadings applies a device's pending queue: rows carrying a server id
// overwrite the existing row, the rest are inserted. Rows that collide with
// an already-synced copy are counted as applied, not failed.
func (r *repository) SyncReadings(ctx context.Context, raceID int64, readings []model.TimingReading) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning sync transaction: %w", err)
	}
	defer tx.Rollback()

	updateQuery := `UPDATE timing_readings
		SET bib_number = ?, timing_point_id = ?, timestamp = ?, status_code = ?, lap_number = ?, notes = ?
		WHERE id = ? AND race_id = ?`
	insertQuery := fmt.Sprintf(`INSERT INTO timing_readings (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		readingColumns)

	applied := 0
	for _, reading := range readings {
		if reading.ID > 0 {
			_, err := tx.ExecContext(ctx, updateQuery,
				reading.BibNumber, reading.TimingPointID, reading.Timestamp.Format(timestampLayout),
				reading.StatusCode, reading.LapNumber, reading.Notes, reading.ID, raceID)
			if err != nil {
				return 0, fmt.Errorf("error updating reading %d: %w", reading.ID, err)
			}
			applied++
			continue
		}

		_, err := tx.ExecContext(ctx, insertQuery, readingArgs(raceID, reading)...)
		if err != nil {
			var mysqlErr *mysql.MySQLError
			if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
				applied++
				continue
			}
			return 0, fmt.Errorf("error inserting synced reading: %w", err)
		}
		applied++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing sync transaction: %w", err)
	}
	return applied, nil
}

func (r *repository) ChipIndex(ctx context.Context, raceID int64) ([]model.ChipIndexEntry, error) {
	query := `SELECT bib_number, chip_code, chip_code_2, chip_code_3, chip_code_4, chip_code_5, race_distance_id
		FROM chip_assignments WHERE race_id = ? ORDER BY bib_number`

	rows, err := r.db.QueryContext(ctx, query, raceID)
	if err != nil {
		return nil, fmt.Errorf("error querying chip index: %w", err)
	}
	defer rows.Close()

	var entries []model.ChipIndexEntry
	for rows.Next() {
		var entry model.ChipIndexEntry
		var c2, c3, c4, c5 sql.NullString
		var distance sql.NullInt64
		if err := rows.Scan(&entry.BibNumber, &entry.ChipCode, &c2, &c3, &c4, &c5, &distance); err != nil {
			return nil, fmt.Errorf("error scanning chip index row: %w", err)
		}
		entry.ChipCode2 = c2.String
		entry.ChipCode3 = c3.String
		entry.ChipCode4 = c4.String
		entry.ChipCode5 = c5.String
		if distance.Valid {
			entry.RaceDistanceID = &distance.Int64
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *repository) UpsertChipAssignments(ctx context.Context, raceID int64, entries []model.ChipIndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning chip upsert transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO chip_assignments
		(race_id, bib_number, chip_code, chip_code_2, chip_code_3, chip_code_4, chip_code_5, race_distance_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		chip_code = VALUES(chip_code), chip_code_2 = VALUES(chip_code_2),
		chip_code_3 = VALUES(chip_code_3), chip_code_4 = VALUES(chip_code_4),
		chip_code_5 = VALUES(chip_code_5), race_distance_id = VALUES(race_distance_id)`

	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, query,
			raceID, entry.BibNumber, entry.ChipCode,
			nullableString(entry.ChipCode2), nullableString(entry.ChipCode3),
			nullableString(entry.ChipCode4), nullableString(entry.ChipCode5),
			entry.RaceDistanceID)
		if err != nil {
			return fmt.Errorf("error upserting chip assignment for bib %d: %w", entry.BibNumber, err)
		}
	}

	return tx.Commit()
}

// SampleIDsInWindow lists raw gps samples inside the closed interval
// [start, end]. Bounds are compared as local wall-clock values.
func (r *repository) SampleIDsInWindow(ctx context.Context, raceID int64, start, end time.Time) ([]int64, error) {
	query := `SELECT id FROM gps_samples
		WHERE race_id = ? AND recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at`

	rows, err := r.db.QueryContext(ctx, query, raceID,
		start.Format(timestampLayout), end.Format(timestampLayout))
	if err != nil {
		return nil, fmt.Errorf("error querying gps samples: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning gps sample id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repository) CreateImportRun(ctx context.Context, run *model.ImportRun) error {
	query := `INSERT INTO import_runs (id, race_id, file_key, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query, run.ID, run.RaceID, run.FileKey, string(run.Status))
	if err != nil {
		return fmt.Errorf("error creating import run: %w", err)
	}
	return nil
}

func (r *repository) UpdateImportRun(ctx context.Context, runID string, status model.ImportRunStatus, result *model.ImportResult, errorMessage *string) error {
	var resultJSON *string
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("error marshaling import result: %w", err)
		}
		s := string(data)
		resultJSON = &s
	}

	query := `UPDATE import_runs SET status = ?, result = ?, error_message = ?, updated_at = NOW() WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, string(status), resultJSON, errorMessage, runID)
	if err != nil {
		return fmt.Errorf("error updating import run %s: %w", runID, err)
	}
	return nil
}

func (r *repository) GetImportRun(ctx context.Context, runID string) (*model.ImportRun, error) {
	query := `SELECT id, race_id, file_key, status, result, error_message, created_at, updated_at
		FROM import_runs WHERE id = ?`

	var run model.ImportRun
	var resultJSON sql.NullString
	var errorMessage sql.NullString
	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID, &run.RaceID, &run.FileKey, &run.Status,
		&resultJSON, &errorMessage, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrImportRunNotFound
		}
		return nil, fmt.Errorf("error loading import run %s: %w", runID, err)
	}

	if resultJSON.Valid {
		var result model.ImportResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err == nil {
			run.Result = &result
		}
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	return &run, nil
}

// classifyWriteError maps the store's uniqueness-violation code onto the
// importer's duplicate taxonomy and treats connection-level faults as
// retryable transport errors.
func classifyWriteError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if mysqlErr.Number == mysqlErrDuplicateEntry {
			return apperrors.NewDuplicateError(err)
		}
		return fmt.Errorf("error writing readings: %w", err)
	}
	return apperrors.NewRetryableError(err, "event store unreachable")
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
