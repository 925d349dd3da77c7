// Package events fans recognition events out to live dashboards and optional sinks.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// RecognitionEvent is broadcast when a recognition changed a student's attendance.
type RecognitionEvent struct {
	ID            string        `json:"id"`
	Channel       string        `json:"channel"`
	StudentID     string        `json:"student_id"`
	DisplayName   string        `json:"display_name"`
	FirstName     string        `json:"first_name"`
	MiddleInitial string        `json:"middle_initial"`
	LastName      string        `json:"last_name"`
	GradeSection  string        `json:"grade_section"`
	Mode          database.Mode `json:"mode"`
	Timestamp     time.Time     `json:"timestamp"`
	ImageURL      string        `json:"image_url,omitempty"`
}

// NewRecognitionEvent builds the event for a student. imageURL may be empty.
func NewRecognitionEvent(s database.Student, mode database.Mode, at time.Time, imageURL string) RecognitionEvent {
	return RecognitionEvent{
		ID:            uuid.New().String(),
		Channel:       constants.AttendanceChannel,
		StudentID:     s.ID,
		DisplayName:   facematch.DisplayName(s.FirstName, s.MiddleName, s.LastName),
		FirstName:     s.FirstName,
		MiddleInitial: facematch.MiddleInitial(s.MiddleName),
		LastName:      s.LastName,
		GradeSection:  s.GradeSection(),
		Mode:          mode,
		Timestamp:     at,
		ImageURL:      imageURL,
	}
}
