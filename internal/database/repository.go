package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// AttendanceStore persists day records. Apply must be atomic per (student, date):
// two concurrent calls for the same key observe each other's writes.
type AttendanceStore interface {
	// Apply runs Transition against the stored record and persists the result.
	// Returns the resulting record and whether a field was set by this call.
	// When nothing changed and no record exists, the zero record and false are returned.
	Apply(ctx context.Context, studentID, date string, mode Mode, at time.Time, policy TransitionPolicy) (AttendanceRecord, bool, error)
	// Get returns the record for a student and day, or nil.
	Get(ctx context.Context, studentID, date string) (*AttendanceRecord, error)
	// ListByDate returns every record for a day ordered by student ID.
	ListByDate(ctx context.Context, date string) ([]AttendanceRecord, error)
}

// StudentDirectory resolves students by ID.
type StudentDirectory interface {
	// GetStudent returns the student or ErrNotFound.
	GetStudent(ctx context.Context, id string) (*Student, error)
	// GetStudents returns the students found for the given IDs, keyed by ID.
	GetStudents(ctx context.Context, ids []string) (map[string]Student, error)
}

// StudentWriter stores student records in a directory that owns them.
type StudentWriter interface {
	StudentDirectory
	SaveStudent(ctx context.Context, s Student) error
}

// EncodingCache stores computed face encodings so unchanged reference images
// are not re-embedded on every load.
type EncodingCache interface {
	// GetEncoding returns the cached encoding for a student, or nil.
	GetEncoding(ctx context.Context, studentID string) (*StoredEncoding, error)
	// SaveEncoding replaces the cached encoding for a student.
	SaveEncoding(ctx context.Context, enc StoredEncoding) error
	// DeleteEncoding removes a student's cached encoding.
	DeleteEncoding(ctx context.Context, studentID string) error
}
