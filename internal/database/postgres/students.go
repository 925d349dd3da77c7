package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/lib/pq"
)

// StudentRepository stores the minimal student records in PostgreSQL.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new student repository
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

const studentColumns = `id, first_name, middle_name, last_name, grade, section, guardian_name, guardian_email, active`

func scanStudent(row rowScanner) (*database.Student, error) {
	var s database.Student
	if err := row.Scan(&s.ID, &s.FirstName, &s.MiddleName, &s.LastName, &s.Grade, &s.Section,
		&s.GuardianName, &s.GuardianEmail, &s.Active); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetStudent returns a student or database.ErrNotFound.
func (r *StudentRepository) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	s, err := scanStudent(r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting student %s: %w", id, err)
	}
	return s, nil
}

// GetStudents returns the students found among ids, keyed by ID.
func (r *StudentRepository) GetStudents(ctx context.Context, ids []string) (map[string]database.Student, error) {
	result := make(map[string]database.Student, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+studentColumns+` FROM students WHERE id = ANY($1)`, pq.Array(ids))
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

// SaveStudent inserts or replaces a student.
func (r *StudentRepository) SaveStudent(ctx context.Context, s database.Student) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO students (`+studentColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			middle_name = EXCLUDED.middle_name,
			last_name = EXCLUDED.last_name,
			grade = EXCLUDED.grade,
			section = EXCLUDED.section,
			guardian_name = EXCLUDED.guardian_name,
			guardian_email = EXCLUDED.guardian_email,
			active = EXCLUDED.active,
			updated_at = NOW()`,
		s.ID, s.FirstName, s.MiddleName, s.LastName, s.Grade, s.Section, s.GuardianName, s.GuardianEmail, s.Active)
	if err != nil {
		return fmt.Errorf("saving student %s: %w", s.ID, err)
	}
	return nil
}
