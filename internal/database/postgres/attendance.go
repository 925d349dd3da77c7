package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage.
// Every transition is a single statement, so concurrent recognitions of the same
// student on the same day cannot both set a timestamp.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const recordColumns = `student_id, to_char(date, 'YYYY-MM-DD'), time_in, time_out`

const (
	arrivalUpsert = `
		INSERT INTO attendance (student_id, date, time_in) VALUES ($1, $2, $3)
		ON CONFLICT (student_id, date) DO UPDATE SET time_in = EXCLUDED.time_in
		WHERE attendance.time_in IS NULL
		RETURNING ` + recordColumns

	departureUpsert = `
		INSERT INTO attendance (student_id, date, time_out) VALUES ($1, $2, $3)
		ON CONFLICT (student_id, date) DO UPDATE SET time_out = EXCLUDED.time_out
		WHERE attendance.time_out IS NULL
		RETURNING ` + recordColumns

	departureAfterArrival = `
		UPDATE attendance SET time_out = $3
		WHERE student_id = $1 AND date = $2 AND time_out IS NULL AND time_in IS NOT NULL
		RETURNING ` + recordColumns
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var timeIn, timeOut sql.NullTime
	if err := row.Scan(&rec.StudentID, &rec.Date, &timeIn, &timeOut); err != nil {
		return nil, err
	}
	if timeIn.Valid {
		rec.TimeIn = &timeIn.Time
	}
	if timeOut.Valid {
		rec.TimeOut = &timeOut.Time
	}
	return &rec, nil
}

// Apply performs the attendance transition atomically in the database.
func (r *AttendanceRepository) Apply(ctx context.Context, studentID, date string, mode database.Mode, at time.Time, policy database.TransitionPolicy) (database.AttendanceRecord, bool, error) {
	var query string
	switch {
	case mode == database.ModeArrival:
		query = arrivalUpsert
	case mode == database.ModeDeparture && policy.AllowDepartureOnly:
		query = departureUpsert
	case mode == database.ModeDeparture:
		query = departureAfterArrival
	default:
		return database.AttendanceRecord{}, false, fmt.Errorf("unknown attendance mode %q", mode)
	}

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, studentID, date, at))
	if err == nil {
		return *rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return database.AttendanceRecord{}, false, fmt.Errorf("applying %s for %s: %w", mode, studentID, err)
	}

	// No row written: the field was already set or the policy rejected the event.
	cur, err := r.Get(ctx, studentID, date)
	if err != nil {
		return database.AttendanceRecord{}, false, err
	}
	if cur == nil {
		return database.AttendanceRecord{}, false, nil
	}
	return *cur, false, nil
}

// Get returns the record for a student and day, or nil if none exists.
func (r *AttendanceRepository) Get(ctx context.Context, studentID, date string) (*database.AttendanceRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM attendance WHERE student_id = $1 AND date = $2`, studentID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting attendance for %s: %w", studentID, err)
	}
	return rec, nil
}

// ListByDate returns all records of a day ordered by student ID.
func (r *AttendanceRepository) ListByDate(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM attendance WHERE date = $1 ORDER BY student_id`, date)
	if err != nil {
		return nil, fmt.Errorf("listing attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning attendance row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attendance rows: %w", err)
	}
	return records, nil
}
