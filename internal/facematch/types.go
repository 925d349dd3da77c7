// Package facematch provides the match result and face geometry shared by the gallery,
// the recognition engine and the stream overlay.
package facematch

import "github.com/kozaktomas/face-attendance/internal/constants"

// Match is the outcome of a gallery query: either a matched student or Unknown.
// The zero value is Unknown.
type Match struct {
	studentID string
	distance  float64
	matched   bool
}

// Matched returns a positive match for studentID at the given distance.
func Matched(studentID string, distance float64) Match {
	return Match{studentID: studentID, distance: distance, matched: true}
}

// Unknown returns a negative match. Distance is the nearest distance seen, if any.
func Unknown(distance float64) Match {
	return Match{distance: distance}
}

// IsMatched reports whether the face matched a student.
func (m Match) IsMatched() bool {
	return m.matched
}

// StudentID returns the matched student, or "" for Unknown.
func (m Match) StudentID() string {
	return m.studentID
}

// Distance returns the distance to the nearest gallery entry.
func (m Match) Distance() float64 {
	return m.distance
}

// Label returns the text drawn over the face.
func (m Match) Label() string {
	if !m.matched {
		return constants.UnknownLabel
	}
	return m.studentID
}
