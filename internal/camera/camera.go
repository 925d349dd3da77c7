// Package camera runs one capture loop per physical camera and publishes the latest frame.
package camera

import (
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"golang.org/x/time/rate"
)

// Device is an open video source.
type Device interface {
	Read() (image.Image, error)
	Close() error
}

// Mirroring is implemented by devices that flip frames themselves.
type Mirroring interface {
	Mirrors() bool
}

// mirroredByDevice reports whether dev already delivers mirrored frames.
func mirroredByDevice(dev Device) bool {
	m, ok := dev.(Mirroring)
	return ok && m.Mirrors()
}

// Opener opens the device behind a camera definition.
type Opener func(cfg config.CameraConfig) (Device, error)

// State is the lifecycle state of a capture loop.
type State int32

const (
	StateStopped State = iota
	StateInitializing
	StateRunning
	StateReinitializing
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateReinitializing:
		return "reinitializing"
	default:
		return "stopped"
	}
}

// Frame is one captured image. Frames are never modified after publication.
type Frame struct {
	Image      image.Image
	Seq        uint64
	CapturedAt time.Time
}

// Camera owns a single capture loop.
type Camera struct {
	cfg        config.CameraConfig
	open       Opener
	frameDelay time.Duration

	frame atomic.Pointer[Frame]
	state atomic.Int32
	seq   uint64 // written only by the loop

	errLog   rate.Sometimes
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newCamera(cfg config.CameraConfig, open Opener, frameDelay time.Duration) *Camera {
	c := &Camera{
		cfg:        cfg,
		open:       open,
		frameDelay: frameDelay,
		errLog:     rate.Sometimes{Interval: constants.CameraErrorLogInterval},
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.state.Store(int32(StateInitializing))
	return c
}

// Index returns the camera index.
func (c *Camera) Index() int {
	return c.cfg.Index
}

// State returns the current loop state.
func (c *Camera) State() State {
	return State(c.state.Load())
}

// Latest returns the most recently published frame, or nil before the first read.
func (c *Camera) Latest() *Frame {
	return c.frame.Load()
}

// Done is closed once the loop has exited and released its device.
func (c *Camera) Done() <-chan struct{} {
	return c.done
}

func (c *Camera) run() {
	defer close(c.done)

	var dev Device
	defer func() {
		if dev != nil {
			c.release(dev)
		}
		c.state.Store(int32(StateStopped))
	}()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		if dev == nil {
			d, err := c.open(c.cfg)
			if err != nil {
				c.logError("opening device", err)
				c.state.Store(int32(StateReinitializing))
				if !c.sleep(constants.CameraReinitDelay) {
					return
				}
				continue
			}
			dev = d
			c.state.Store(int32(StateRunning))
			log.Printf("camera %d (%s): device opened", c.cfg.Index, c.cfg.Name)
		}

		img, err := dev.Read()
		if err == nil && img == nil {
			err = errEmptyFrame
		}
		if err != nil {
			c.logError("reading frame", err)
			c.release(dev)
			dev = nil
			c.state.Store(int32(StateReinitializing))
			if !c.sleep(constants.CameraReinitDelay) {
				return
			}
			continue
		}

		if c.cfg.Mirror && !mirroredByDevice(dev) {
			img = Mirror(img)
		}
		c.seq++
		c.frame.Store(&Frame{Image: img, Seq: c.seq, CapturedAt: time.Now()})

		if !c.sleep(c.frameDelay) {
			return
		}
	}
}

func (c *Camera) release(dev Device) {
	if err := dev.Close(); err != nil {
		log.Printf("camera %d: closing device: %v", c.cfg.Index, err)
	}
}

func (c *Camera) logError(action string, err error) {
	c.errLog.Do(func() {
		log.Printf("camera %d (%s): %s: %v", c.cfg.Index, c.cfg.Name, action, err)
	})
}

// sleep waits for d and reports false when the camera was stopped meanwhile.
func (c *Camera) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-c.stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.stop:
		return false
	case <-t.C:
		return true
	}
}

// signalStop asks the loop to exit. Safe to call more than once.
func (c *Camera) signalStop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
