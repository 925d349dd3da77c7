package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// StudentDirectory reads students from the school-management database.
// Students live in school_student and point at school_section for grade and section name.
type StudentDirectory struct {
	pool *Pool
}

// NewStudentDirectory creates a read-only student directory over the school database.
func NewStudentDirectory(pool *Pool) *StudentDirectory {
	return &StudentDirectory{pool: pool}
}

const studentQuery = `
	SELECT s.lrn, s.first_name, s.middle_name, s.last_name,
		COALESCE(sec.grade, 0), COALESCE(sec.name, ''),
		s.guardian, s.guardian_email, s.is_active
	FROM school_student s
	LEFT JOIN school_section sec ON sec.id = s.section_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*database.Student, error) {
	var s database.Student
	var guardianEmail sql.NullString
	if err := row.Scan(&s.ID, &s.FirstName, &s.MiddleName, &s.LastName, &s.Grade, &s.Section,
		&s.GuardianName, &guardianEmail, &s.Active); err != nil {
		return nil, err
	}
	s.GuardianEmail = strings.TrimSpace(guardianEmail.String)
	return &s, nil
}

// GetStudent returns a student by LRN or database.ErrNotFound.
func (d *StudentDirectory) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	s, err := scanStudent(d.pool.db.QueryRowContext(ctx, studentQuery+` WHERE s.lrn = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting student %s: %w", id, err)
	}
	return s, nil
}

// GetStudents returns the students found among ids, keyed by LRN.
func (d *StudentDirectory) GetStudents(ctx context.Context, ids []string) (map[string]database.Student, error) {
	result := make(map[string]database.Student, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := d.pool.db.QueryContext(ctx, studentQuery+` WHERE s.lrn IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning student: %w", err)
		}
		result[s.ID] = *s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating students: %w", err)
	}
	return result, nil
}

// ListActive returns every active student ordered by LRN.
func (d *StudentDirectory) ListActive(ctx context.Context) ([]database.Student, error) {
	rows, err := d.pool.db.QueryContext(ctx, studentQuery+` WHERE s.is_active = 1 ORDER BY s.lrn`)
	if err != nil {
		return nil, fmt.Errorf("listing active students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning student: %w", err)
		}
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating students: %w", err)
	}
	return students, nil
}
