package database

import "time"

// AttendanceState is the derived state of a day record.
type AttendanceState int

const (
	StateNoRecord AttendanceState = iota
	StateTimeInOnly
	StateTimeOutOnly
	StateComplete
)

func (s AttendanceState) String() string {
	switch s {
	case StateTimeInOnly:
		return "time_in_only"
	case StateTimeOutOnly:
		return "time_out_only"
	case StateComplete:
		return "complete"
	default:
		return "no_record"
	}
}

// TransitionPolicy holds the configurable parts of the attendance state machine.
type TransitionPolicy struct {
	// AllowDepartureOnly creates a time-out-only record for a departure with no arrival.
	AllowDepartureOnly bool
}

// State derives the state of rec. A nil record is StateNoRecord.
func State(rec *AttendanceRecord) AttendanceState {
	switch {
	case rec == nil || (rec.TimeIn == nil && rec.TimeOut == nil):
		return StateNoRecord
	case rec.TimeIn != nil && rec.TimeOut != nil:
		return StateComplete
	case rec.TimeIn != nil:
		return StateTimeInOnly
	default:
		return StateTimeOutOnly
	}
}

// Transition applies a recognition event to the current record and returns the next record
// and whether anything changed. Each timestamp is written at most once.
func Transition(cur *AttendanceRecord, studentID, date string, mode Mode, at time.Time, policy TransitionPolicy) (AttendanceRecord, bool) {
	next := AttendanceRecord{StudentID: studentID, Date: date}
	if cur != nil {
		next = *cur
	}

	switch mode {
	case ModeArrival:
		if next.TimeIn != nil {
			return next, false
		}
		next.TimeIn = &at
		return next, true
	case ModeDeparture:
		if next.TimeOut != nil {
			return next, false
		}
		if next.TimeIn == nil && !policy.AllowDepartureOnly {
			return next, false
		}
		next.TimeOut = &at
		return next, true
	}
	return next, false
}
