package camera

import (
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
)

type fakeDevice struct {
	img       image.Image
	failAfter int32 // reads after which Read fails, 0 = never
	reads     atomic.Int32
	closes    atomic.Int32
}

func (d *fakeDevice) Read() (image.Image, error) {
	n := d.reads.Add(1)
	if d.failAfter > 0 && n > d.failAfter {
		return nil, errors.New("device unplugged")
	}
	return d.img, nil
}

func (d *fakeDevice) Close() error {
	d.closes.Add(1)
	return nil
}

type fakeOpener struct {
	opens   atomic.Int32
	fail    bool
	devices chan *fakeDevice
	make    func() *fakeDevice
}

func (o *fakeOpener) open(cfg config.CameraConfig) (Device, error) {
	o.opens.Add(1)
	if o.fail {
		return nil, errors.New("no such device")
	}
	d := o.make()
	if o.devices != nil {
		o.devices <- d
	}
	return d, nil
}

func twoPixel() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{0, 0, 255, 255})
	return img
}

func testCameras() []config.CameraConfig {
	return []config.CameraConfig{
		{Index: 0, Name: "front", Mirror: true},
		{Index: 1, Name: "back"},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManager_StopNeverStarted(t *testing.T) {
	m := NewManager(testCameras(), (&fakeOpener{make: func() *fakeDevice { return &fakeDevice{} }}).open, time.Millisecond)

	if err := m.Stop(0); err != nil {
		t.Errorf("stopping a never-started camera should succeed, got %v", err)
	}
	if err := m.Stop(0); err != nil {
		t.Errorf("second stop should succeed, got %v", err)
	}
}

func TestManager_UnknownCamera(t *testing.T) {
	m := NewManager(testCameras(), (&fakeOpener{make: func() *fakeDevice { return &fakeDevice{} }}).open, time.Millisecond)

	if _, err := m.Start(9); !errors.Is(err, ErrUnknownCamera) {
		t.Errorf("expected ErrUnknownCamera, got %v", err)
	}
	// Stopping is always a no-op success, even for an index with no definition.
	if err := m.Stop(9); err != nil {
		t.Errorf("expected stop of unknown camera to succeed, got %v", err)
	}
}

func TestManager_StartPublishesFrames(t *testing.T) {
	opener := &fakeOpener{make: func() *fakeDevice { return &fakeDevice{img: twoPixel()} }}
	m := NewManager(testCameras(), opener.open, time.Millisecond)
	defer m.StopAll()

	c, err := m.Start(1)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	again, err := m.Start(1)
	if err != nil || again != c {
		t.Error("second Start should return the running camera")
	}

	waitFor(t, "frames", func() bool {
		f := c.Latest()
		return f != nil && f.Seq >= 3
	})
	if c.State() != StateRunning {
		t.Errorf("expected running, got %s", c.State())
	}
	if opener.opens.Load() != 1 {
		t.Errorf("expected device opened once, got %d", opener.opens.Load())
	}

	f := c.Latest()
	if got := color.RGBAModel.Convert(f.Image.At(0, 0)).(color.RGBA); got.R != 255 {
		t.Errorf("back camera must not be mirrored, got %v at (0,0)", got)
	}
}

func TestManager_MirrorsFrontCamera(t *testing.T) {
	opener := &fakeOpener{make: func() *fakeDevice { return &fakeDevice{img: twoPixel()} }}
	m := NewManager(testCameras(), opener.open, time.Millisecond)
	defer m.StopAll()

	c, _ := m.Start(0)
	waitFor(t, "first frame", func() bool { return c.Latest() != nil })

	got := color.RGBAModel.Convert(c.Latest().Image.At(0, 0)).(color.RGBA)
	if got.B != 255 || got.R != 0 {
		t.Errorf("expected mirrored frame to start with blue, got %v", got)
	}
}

func TestManager_StopReleasesDeviceOnce(t *testing.T) {
	devices := make(chan *fakeDevice, 4)
	opener := &fakeOpener{devices: devices, make: func() *fakeDevice { return &fakeDevice{img: twoPixel()} }}
	m := NewManager(testCameras(), opener.open, time.Millisecond)

	c, _ := m.Start(1)
	dev := <-devices
	waitFor(t, "first frame", func() bool { return c.Latest() != nil })

	if err := m.Stop(1); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("loop should have exited")
	}
	if dev.closes.Load() != 1 {
		t.Errorf("expected device closed exactly once, got %d", dev.closes.Load())
	}
	if c.State() != StateStopped {
		t.Errorf("expected stopped, got %s", c.State())
	}
	if m.Get(1) != nil {
		t.Error("stopped camera should be removed")
	}
	if err := m.Stop(1); err != nil {
		t.Errorf("repeated stop should succeed, got %v", err)
	}
	if dev.closes.Load() != 1 {
		t.Errorf("repeated stop must not close again, got %d", dev.closes.Load())
	}
}

func TestCamera_ReinitializesAfterReadFailure(t *testing.T) {
	devices := make(chan *fakeDevice, 8)
	opener := &fakeOpener{devices: devices, make: func() *fakeDevice {
		return &fakeDevice{img: twoPixel(), failAfter: 2}
	}}
	m := NewManager(testCameras(), opener.open, time.Millisecond)
	defer m.StopAll()

	m.Start(1)
	first := <-devices

	waitFor(t, "reopen", func() bool { return opener.opens.Load() >= 2 })
	if first.closes.Load() != 1 {
		t.Errorf("failed device should be closed once, got %d", first.closes.Load())
	}
}

func TestCamera_OpenFailureKeepsRetrying(t *testing.T) {
	opener := &fakeOpener{fail: true, make: func() *fakeDevice { return nil }}
	m := NewManager(testCameras(), opener.open, time.Millisecond)

	c, err := m.Start(1)
	if err != nil {
		t.Fatalf("open failures are retried in the loop, got %v", err)
	}
	waitFor(t, "reinitializing", func() bool { return c.State() == StateReinitializing })
	if c.Latest() != nil {
		t.Error("no frame expected without a device")
	}

	if err := m.Stop(1); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	<-c.Done()
}

func TestManager_Status(t *testing.T) {
	opener := &fakeOpener{make: func() *fakeDevice { return &fakeDevice{img: twoPixel()} }}
	m := NewManager(testCameras(), opener.open, time.Millisecond)
	defer m.StopAll()

	c, _ := m.Start(1)
	waitFor(t, "first frame", func() bool { return c.Latest() != nil })

	status := m.Status()
	if len(status) != 2 {
		t.Fatalf("expected 2 cameras, got %d", len(status))
	}
	if status[0].Index != 0 || status[0].State != "stopped" {
		t.Errorf("unexpected status for camera 0: %+v", status[0])
	}
	if status[1].State != "running" || status[1].LastFrame == nil {
		t.Errorf("unexpected status for camera 1: %+v", status[1])
	}
}

// selfMirroringDevice flips frames itself, like the OpenCV device.
type selfMirroringDevice struct {
	fakeDevice
}

func (d *selfMirroringDevice) Mirrors() bool { return true }

func TestManager_DeviceMirroringIsNotRepeated(t *testing.T) {
	opener := func(cfg config.CameraConfig) (Device, error) {
		return &selfMirroringDevice{fakeDevice{img: twoPixel()}}, nil
	}
	m := NewManager(testCameras(), opener, time.Millisecond)
	defer m.StopAll()

	c, _ := m.Start(0)
	waitFor(t, "first frame", func() bool { return c.Latest() != nil })

	// The device output is passed through as is.
	got := color.RGBAModel.Convert(c.Latest().Image.At(0, 0)).(color.RGBA)
	if got.R != 255 || got.B != 0 {
		t.Errorf("expected device frame unchanged, got %v", got)
	}
}

func TestMirror(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 5, 13, 6))
	src.Set(10, 5, color.RGBA{1, 0, 0, 255})
	src.Set(11, 5, color.RGBA{2, 0, 0, 255})
	src.Set(12, 5, color.RGBA{3, 0, 0, 255})

	dst := Mirror(src)

	if dst.Bounds() != src.Bounds() {
		t.Fatalf("bounds changed: %v", dst.Bounds())
	}
	for x, want := range []uint8{3, 2, 1} {
		if got := dst.RGBAAt(10+x, 5).R; got != want {
			t.Errorf("pixel %d: got %d, want %d", x, got, want)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateStopped:        "stopped",
		StateInitializing:   "initializing",
		StateRunning:        "running",
		StateReinitializing: "reinitializing",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
