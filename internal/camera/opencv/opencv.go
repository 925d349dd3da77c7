// Package opencv opens cameras through OpenCV.
package opencv

import (
	"errors"
	"fmt"
	"image"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/config"
	"gocv.io/x/gocv"
)

var errReadFailed = errors.New("video capture read failed")

type device struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	mirror  bool
}

// Open opens the device path or URL when set, otherwise the camera index.
func Open(cfg config.CameraConfig) (camera.Device, error) {
	var source any = cfg.Index
	if cfg.Device != "" {
		source = cfg.Device
	}
	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("opening camera %d: %w", cfg.Index, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("opening camera %d: device not available", cfg.Index)
	}
	// Keep only the newest frame in the driver buffer.
	capture.Set(gocv.VideoCaptureBufferSize, 1)
	return &device{capture: capture, mat: gocv.NewMat(), mirror: cfg.Mirror}, nil
}

func (d *device) Read() (image.Image, error) {
	if ok := d.capture.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, errReadFailed
	}
	if d.mirror {
		if err := gocv.Flip(d.mat, &d.mat, 1); err != nil {
			return nil, fmt.Errorf("mirroring frame: %w", err)
		}
	}
	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return img, nil
}

// Mirrors reports that frames are flipped on the OpenCV side.
func (d *device) Mirrors() bool {
	return d.mirror
}

func (d *device) Close() error {
	if err := d.mat.Close(); err != nil {
		_ = d.capture.Close()
		return err
	}
	return d.capture.Close()
}
