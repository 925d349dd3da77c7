// Package notify emails guardians when a student arrives at or leaves school.
package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	timeLayout = "03:04 PM"
	dateLayout = "Monday, January 02, 2006"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Compose builds the guardian notification for a student. It returns false when the
// student has no guardian email on file.
func Compose(subjectPrefix string, s database.Student, mode database.Mode, at time.Time) (Message, bool) {
	if s.GuardianEmail == "" {
		return Message{}, false
	}

	subject, action := "Student Arrival Notification", "has arrived at school and checked in"
	if mode == database.ModeDeparture {
		subject, action = "Student Departure Notification", "has left school and checked out"
	}

	grade, section := "N/A", "N/A"
	if s.Grade > 0 {
		grade = strconv.Itoa(s.Grade)
	}
	if s.Section != "" {
		section = s.Section
	}

	body := fmt.Sprintf(`Dear Guardian of %s %s,

This is an automated notification to inform you that %s %s at %s on %s.

Grade: %s
Section: %s

This is an automated message. Please do not reply to this email.

Best regards,
School Attendance System
`, s.FirstName, s.LastName, s.FirstName, action, at.Format(timeLayout), at.Format(dateLayout), grade, section)

	return Message{To: s.GuardianEmail, Subject: subjectPrefix + subject, Body: body}, true
}
