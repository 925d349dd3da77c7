package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

// EncodingRepository caches computed face encodings as pgvector values.
type EncodingRepository struct {
	pool *Pool
}

// NewEncodingRepository creates a new encoding repository
func NewEncodingRepository(pool *Pool) *EncodingRepository {
	return &EncodingRepository{pool: pool}
}

// GetEncoding returns the cached encoding for a student, or nil.
func (r *EncodingRepository) GetEncoding(ctx context.Context, studentID string) (*database.StoredEncoding, error) {
	var enc database.StoredEncoding
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx,
		`SELECT student_id, checksum, embedding, created_at FROM face_encodings WHERE student_id = $1`,
		studentID,
	).Scan(&enc.StudentID, &enc.Checksum, &vec, &enc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting encoding for %s: %w", studentID, err)
	}
	enc.Vector = vec.Slice()
	return &enc, nil
}

// SaveEncoding replaces the cached encoding of a student.
func (r *EncodingRepository) SaveEncoding(ctx context.Context, enc database.StoredEncoding) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO face_encodings (student_id, checksum, embedding, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (student_id) DO UPDATE SET
			checksum = EXCLUDED.checksum,
			embedding = EXCLUDED.embedding,
			created_at = NOW()`,
		enc.StudentID, enc.Checksum, pgvector.NewVector(enc.Vector))
	if err != nil {
		return fmt.Errorf("saving encoding for %s: %w", enc.StudentID, err)
	}
	return nil
}

// DeleteEncoding removes a student's cached encoding.
func (r *EncodingRepository) DeleteEncoding(ctx context.Context, studentID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM face_encodings WHERE student_id = $1`, studentID); err != nil {
		return fmt.Errorf("deleting encoding for %s: %w", studentID, err)
	}
	return nil
}

// CountEncodings returns the number of cached encodings.
func (r *EncodingRepository) CountEncodings(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM face_encodings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting encodings: %w", err)
	}
	return n, nil
}
