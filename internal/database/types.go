package database

import (
	"fmt"
	"time"
)

// Mode is the direction of a recognition event.
type Mode string

const (
	ModeArrival   Mode = "arrival"
	ModeDeparture Mode = "departure"
)

// ParseMode accepts the API spellings of a mode, including the legacy "time-in"/"time-out".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "arrival", "time-in", "time_in", "in":
		return ModeArrival, nil
	case "departure", "time-out", "time_out", "out":
		return ModeDeparture, nil
	}
	return "", fmt.Errorf("unknown attendance mode %q", s)
}

// Student is the minimal student record needed for matching and notification.
type Student struct {
	ID            string `json:"id"` // learner reference number
	FirstName     string `json:"first_name"`
	MiddleName    string `json:"middle_name,omitempty"`
	LastName      string `json:"last_name"`
	Grade         int    `json:"grade,omitempty"`
	Section       string `json:"section,omitempty"`
	GuardianName  string `json:"guardian_name,omitempty"`
	GuardianEmail string `json:"-"`
	Active        bool   `json:"active"`
}

// GradeSection returns "7 - Rizal" style class info, or "" when unknown.
func (s Student) GradeSection() string {
	switch {
	case s.Grade > 0 && s.Section != "":
		return fmt.Sprintf("%d - %s", s.Grade, s.Section)
	case s.Grade > 0:
		return fmt.Sprintf("%d", s.Grade)
	default:
		return s.Section
	}
}

// StoredEncoding is a cached face encoding for one student reference image.
type StoredEncoding struct {
	StudentID string
	Checksum  string // sha256 of the reference image the vector was computed from
	Vector    []float32
	CreatedAt time.Time
}

// AttendanceRecord is one student's attendance for one day.
type AttendanceRecord struct {
	StudentID string     `json:"student_id"`
	Date      string     `json:"date"` // YYYY-MM-DD
	TimeIn    *time.Time `json:"time_in,omitempty"`
	TimeOut   *time.Time `json:"time_out,omitempty"`
}
