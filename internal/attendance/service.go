// Package attendance records arrivals and departures of recognized students and
// triggers the snapshot, notification and broadcast side effects.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

const recordTimeout = 10 * time.Second

// Notifier sends guardian notifications without blocking.
type Notifier interface {
	Notify(s database.Student, mode database.Mode, at time.Time) bool
}

// Publisher broadcasts recognition events.
type Publisher interface {
	Publish(event events.RecognitionEvent)
}

// Sighting is one recognition of a student handed off by the stream.
type Sighting struct {
	StudentID string
	Face      image.Image
	Mode      database.Mode
	At        time.Time
}

type cooldownKey struct {
	studentID string
	mode      database.Mode
}

// Options configures a Service. Snapshots, Notifier and Publisher may be nil.
type Options struct {
	Store     database.AttendanceStore
	Students  database.StudentDirectory
	Snapshots *SnapshotStore
	Notifier  Notifier
	Publisher Publisher
	// SnapshotURL maps a snapshot ref to the URL sent in events.
	SnapshotURL func(ref string) string
	Config      config.AttendanceConfig
}

// Service applies recognitions to attendance records.
type Service struct {
	store       database.AttendanceStore
	students    database.StudentDirectory
	snapshots   *SnapshotStore
	notifier    Notifier
	publisher   Publisher
	snapshotURL func(string) string
	policy      database.TransitionPolicy
	loc         *time.Location
	cooldown    time.Duration
	workers     int

	queue    chan Sighting
	wg       sync.WaitGroup
	queueMu  sync.RWMutex
	closed   bool
	lastMu   sync.Mutex
	lastSeen map[cooldownKey]time.Time
}

// NewService creates a service. Call Start before submitting sightings.
func NewService(opts Options) *Service {
	snapshotURL := opts.SnapshotURL
	if snapshotURL == nil {
		snapshotURL = func(ref string) string { return ref }
	}
	return &Service{
		store:       opts.Store,
		students:    opts.Students,
		snapshots:   opts.Snapshots,
		notifier:    opts.Notifier,
		publisher:   opts.Publisher,
		snapshotURL: snapshotURL,
		policy:      database.TransitionPolicy{AllowDepartureOnly: opts.Config.AllowDepartureOnly},
		loc:         opts.Config.Location(),
		cooldown:    opts.Config.Cooldown,
		workers:     max(opts.Config.Workers, 1),
		queue:       make(chan Sighting, max(opts.Config.QueueSize, 1)),
		lastSeen:    make(map[cooldownKey]time.Time),
	}
}

// Location returns the timezone that defines the attendance day.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Today returns the current attendance date, YYYY-MM-DD.
func (s *Service) Today() string {
	return time.Now().In(s.loc).Format(constants.DateLayout)
}

// Start launches the workers that drain submitted sightings.
func (s *Service) Start() {
	for range s.workers {
		s.wg.Add(1)
		go s.work()
	}
}

// Stop stops accepting sightings and waits for queued ones to be recorded.
func (s *Service) Stop() {
	s.queueMu.Lock()
	if s.closed {
		s.queueMu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.queueMu.Unlock()
	s.wg.Wait()
}

func (s *Service) work() {
	defer s.wg.Done()
	for sig := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if _, err := s.Record(ctx, sig); err != nil {
			log.Printf("attendance: %v", err)
		}
		cancel()
	}
}

// Submit hands a recognized student to the background workers without blocking.
// Repeated sightings of the same student and mode within the cooldown are absorbed.
// It returns false only when the queue is full or stopped.
func (s *Service) Submit(studentID string, face image.Image, mode database.Mode, at time.Time) bool {
	key := cooldownKey{studentID, mode}
	s.lastMu.Lock()
	if last, ok := s.lastSeen[key]; ok && s.cooldown > 0 && at.Sub(last) < s.cooldown && !at.Before(last) {
		s.lastMu.Unlock()
		return true
	}
	s.lastMu.Unlock()

	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- Sighting{StudentID: studentID, Face: face, Mode: mode, At: at}:
	default:
		return false
	}

	s.lastMu.Lock()
	s.lastSeen[key] = at
	if len(s.lastSeen) > 4096 {
		s.pruneLocked(at)
	}
	s.lastMu.Unlock()
	return true
}

func (s *Service) pruneLocked(now time.Time) {
	for k, t := range s.lastSeen {
		if now.Sub(t) >= s.cooldown {
			delete(s.lastSeen, k)
		}
	}
}

// Result is the outcome of recording one sighting.
type Result struct {
	Record      database.AttendanceRecord
	Changed     bool
	SnapshotRef string
}

// Record applies a sighting to the student's record for the sighting's day. Side
// effects run only when timeIn or timeOut was actually set; their failures are
// logged and never undo the record.
func (s *Service) Record(ctx context.Context, sig Sighting) (Result, error) {
	date := sig.At.In(s.loc).Format(constants.DateLayout)

	rec, changed, err := s.store.Apply(ctx, sig.StudentID, date, sig.Mode, sig.At, s.policy)
	if err != nil {
		return Result{}, fmt.Errorf("recording %s for %s: %w", sig.Mode, sig.StudentID, err)
	}
	res := Result{Record: rec, Changed: changed}
	if !changed {
		return res, nil
	}
	log.Printf("attendance: %s recorded for %s on %s", sig.Mode, sig.StudentID, date)

	if s.snapshots != nil && sig.Face != nil {
		if _, err := s.snapshots.Save(date, sig.StudentID, sig.Mode, sig.Face); err != nil {
			log.Printf("attendance: snapshot for %s: %v", sig.StudentID, err)
		} else {
			res.SnapshotRef = s.snapshots.Ref(date, sig.StudentID, sig.Mode)
		}
	}

	student := database.Student{ID: sig.StudentID}
	if s.students != nil {
		st, err := s.students.GetStudent(ctx, sig.StudentID)
		switch {
		case err == nil:
			student = *st
		case errors.Is(err, database.ErrNotFound):
			log.Printf("attendance: student %s not found in directory", sig.StudentID)
		default:
			log.Printf("attendance: looking up student %s: %v", sig.StudentID, err)
		}
	}

	if s.notifier != nil {
		s.notifier.Notify(student, sig.Mode, sig.At)
	}

	if s.publisher != nil {
		imageURL := ""
		if res.SnapshotRef != "" {
			imageURL = s.snapshotURL(res.SnapshotRef)
		}
		s.publisher.Publish(events.NewRecognitionEvent(student, sig.Mode, sig.At, imageURL))
	}
	return res, nil
}

// Entry is one row of the daily attendance view.
type Entry struct {
	StudentID    string     `json:"student_id"`
	Name         string     `json:"name"`
	GradeSection string     `json:"grade_section"`
	TimeIn       *time.Time `json:"time_in,omitempty"`
	TimeOut      *time.Time `json:"time_out,omitempty"`
	SnapshotURL  string     `json:"snapshot_url,omitempty"`
}

// TodayAttendance lists today's records relevant to mode: students with a timeIn for
// arrival, with a timeOut for departure. Entries are ordered by the mode's timestamp,
// most recent first.
func (s *Service) TodayAttendance(ctx context.Context, mode database.Mode) ([]Entry, error) {
	date := s.Today()
	records, err := s.store.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("listing attendance for %s: %w", date, err)
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.StudentID)
	}
	students := map[string]database.Student{}
	if s.students != nil && len(ids) > 0 {
		found, err := s.students.GetStudents(ctx, ids)
		if err != nil {
			log.Printf("attendance: loading students: %v", err)
		} else {
			students = found
		}
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		stamp := r.TimeIn
		if mode == database.ModeDeparture {
			stamp = r.TimeOut
		}
		if stamp == nil {
			continue
		}
		e := Entry{StudentID: r.StudentID, Name: r.StudentID, TimeIn: r.TimeIn, TimeOut: r.TimeOut}
		if st, ok := students[r.StudentID]; ok {
			e.Name = facematch.DisplayName(st.FirstName, st.MiddleName, st.LastName)
			e.GradeSection = st.GradeSection()
		}
		if s.snapshots != nil && s.snapshots.Exists(date, r.StudentID, mode) {
			e.SnapshotURL = s.snapshotURL(s.snapshots.Ref(date, r.StudentID, mode))
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].TimeIn, entries[j].TimeIn
		if mode == database.ModeDeparture {
			a, b = entries[i].TimeOut, entries[j].TimeOut
		}
		return a.After(*b)
	})
	return entries, nil
}

// PurgeSnapshots removes snapshots from previous days.
func (s *Service) PurgeSnapshots() (int, error) {
	if s.snapshots == nil {
		return 0, nil
	}
	return s.snapshots.Purge(s.Today())
}
