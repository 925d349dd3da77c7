// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

type recordKey struct {
	studentID string
	date      string
}

// MockAttendanceStore is an in-memory database.AttendanceStore.
// Apply is serialized per (student, date) with a dedicated lock.
type MockAttendanceStore struct {
	mu      sync.RWMutex
	records map[recordKey]database.AttendanceRecord
	locks   map[recordKey]*sync.Mutex

	// Error injection
	ApplyError error
	GetError   error
	ListError  error

	// ApplyHook runs inside the per-key critical section before the record is read.
	ApplyHook func()
}

// NewMockAttendanceStore creates a new mock attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{
		records: make(map[recordKey]database.AttendanceRecord),
		locks:   make(map[recordKey]*sync.Mutex),
	}
}

func (m *MockAttendanceStore) keyLock(k recordKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[k]
	if !ok {
		l = &sync.Mutex{}
		m.locks[k] = l
	}
	return l
}

// Apply runs the attendance transition under the key lock
func (m *MockAttendanceStore) Apply(ctx context.Context, studentID, date string, mode database.Mode, at time.Time, policy database.TransitionPolicy) (database.AttendanceRecord, bool, error) {
	if m.ApplyError != nil {
		return database.AttendanceRecord{}, false, m.ApplyError
	}
	k := recordKey{studentID, date}
	l := m.keyLock(k)
	l.Lock()
	defer l.Unlock()

	if m.ApplyHook != nil {
		m.ApplyHook()
	}

	m.mu.RLock()
	cur, exists := m.records[k]
	m.mu.RUnlock()

	var curPtr *database.AttendanceRecord
	if exists {
		curPtr = &cur
	}
	next, changed := database.Transition(curPtr, studentID, date, mode, at, policy)
	if !changed {
		if !exists {
			return database.AttendanceRecord{}, false, nil
		}
		return next, false, nil
	}

	m.mu.Lock()
	m.records[k] = next
	m.mu.Unlock()
	return next, true, nil
}

// Get returns a record or nil
func (m *MockAttendanceStore) Get(ctx context.Context, studentID, date string) (*database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordKey{studentID, date}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// ListByDate returns all records of a day sorted by student ID
func (m *MockAttendanceStore) ListByDate(ctx context.Context, date string) ([]database.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []database.AttendanceRecord
	for k, rec := range m.records {
		if k.date == date {
			results = append(results, rec)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].StudentID < results[j].StudentID })
	return results, nil
}

// Count returns the total number of stored records
func (m *MockAttendanceStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// MockStudentDirectory is a mock implementation of database.StudentWriter
type MockStudentDirectory struct {
	mu       sync.RWMutex
	students map[string]database.Student

	// Error injection
	GetError  error
	SaveError error
}

// NewMockStudentDirectory creates a directory holding the given students
func NewMockStudentDirectory(students ...database.Student) *MockStudentDirectory {
	m := &MockStudentDirectory{students: make(map[string]database.Student)}
	for _, s := range students {
		m.students[s.ID] = s
	}
	return m
}

// GetStudent returns a student or database.ErrNotFound
func (m *MockStudentDirectory) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &s, nil
}

// GetStudents returns the known students among ids
func (m *MockStudentDirectory) GetStudents(ctx context.Context, ids []string) (map[string]database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]database.Student, len(ids))
	for _, id := range ids {
		if s, ok := m.students[id]; ok {
			result[id] = s
		}
	}
	return result, nil
}

// SaveStudent stores a student
func (m *MockStudentDirectory) SaveStudent(ctx context.Context, s database.Student) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
	return nil
}

// MockEncodingCache is a mock implementation of database.EncodingCache
type MockEncodingCache struct {
	mu        sync.RWMutex
	encodings map[string]database.StoredEncoding

	// Error injection
	GetError  error
	SaveError error

	Saves int
}

// NewMockEncodingCache creates a new empty encoding cache
func NewMockEncodingCache() *MockEncodingCache {
	return &MockEncodingCache{encodings: make(map[string]database.StoredEncoding)}
}

// GetEncoding returns the cached encoding or nil
func (m *MockEncodingCache) GetEncoding(ctx context.Context, studentID string) (*database.StoredEncoding, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	enc, ok := m.encodings[studentID]
	if !ok {
		return nil, nil
	}
	return &enc, nil
}

// SaveEncoding stores an encoding
func (m *MockEncodingCache) SaveEncoding(ctx context.Context, enc database.StoredEncoding) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.encodings[enc.StudentID] = enc
	m.Saves++
	return nil
}

// DeleteEncoding removes an encoding
func (m *MockEncodingCache) DeleteEncoding(ctx context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.encodings, studentID)
	return nil
}
