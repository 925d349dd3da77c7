package camera

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Manager owns the capture loops of all configured cameras, keyed by index.
type Manager struct {
	mu         sync.Mutex
	cameras    map[int]*Camera
	configs    map[int]config.CameraConfig
	open       Opener
	frameDelay time.Duration
}

// NewManager creates a manager for the given cameras. No device is opened until Start.
func NewManager(cameras []config.CameraConfig, open Opener, frameDelay time.Duration) *Manager {
	configs := make(map[int]config.CameraConfig, len(cameras))
	for _, cam := range cameras {
		configs[cam.Index] = cam
	}
	return &Manager{
		cameras:    make(map[int]*Camera),
		configs:    configs,
		open:       open,
		frameDelay: frameDelay,
	}
}

// Start launches the capture loop for index. It is a no-op when the loop is already running.
func (m *Manager) Start(index int) (*Camera, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.cameras[index]; ok {
		return c, nil
	}
	cfg, ok := m.configs[index]
	if !ok {
		return nil, fmt.Errorf("camera %d: %w", index, ErrUnknownCamera)
	}

	c := newCamera(cfg, m.open, m.frameDelay)
	m.cameras[index] = c
	go c.run()
	log.Printf("camera %d (%s): capture started", index, cfg.Name)
	return c, nil
}

// Get returns the running camera for index, or nil.
func (m *Manager) Get(index int) *Camera {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cameras[index]
}

// Stop stops the capture loop for index and waits briefly for the device to be released.
// Stopping a camera that is not running, or not configured at all, is a no-op.
func (m *Manager) Stop(index int) error {
	m.mu.Lock()
	c, ok := m.cameras[index]
	delete(m.cameras, index)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	c.signalStop()
	select {
	case <-c.done:
		log.Printf("camera %d: capture stopped", index)
	case <-time.After(constants.CameraStopTimeout):
		log.Printf("camera %d: capture loop still busy after %s, device will be released when it exits", index, constants.CameraStopTimeout)
	}
	return nil
}

// StopAll stops every running camera.
func (m *Manager) StopAll() {
	m.mu.Lock()
	indexes := make([]int, 0, len(m.cameras))
	for i := range m.cameras {
		indexes = append(indexes, i)
	}
	m.mu.Unlock()

	for _, i := range indexes {
		_ = m.Stop(i)
	}
}

// Status describes one configured camera.
type Status struct {
	Index     int        `json:"index"`
	Name      string     `json:"name"`
	Mirror    bool       `json:"mirror"`
	State     string     `json:"state"`
	Frames    uint64     `json:"frames"`
	LastFrame *time.Time `json:"last_frame,omitempty"`
}

// Status returns the state of all configured cameras ordered by index.
func (m *Manager) Status() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Status, 0, len(m.configs))
	for index, cfg := range m.configs {
		s := Status{Index: index, Name: cfg.Name, Mirror: cfg.Mirror, State: StateStopped.String()}
		if c, ok := m.cameras[index]; ok {
			s.State = c.State().String()
			if f := c.Latest(); f != nil {
				at := f.CapturedAt
				s.Frames = f.Seq
				s.LastFrame = &at
			}
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Index < result[j].Index })
	return result
}
