package stream

import (
	"context"
	"image"
	"log"
	"time"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"golang.org/x/time/rate"
)

// Source provides the latest captured frame.
type Source interface {
	Latest() *camera.Frame
}

// Processor returns the faces to draw on a frame.
type Processor interface {
	Process(ctx context.Context, img image.Image) []recognition.TrackedFace
}

// Pump reads frames from a camera, draws recognition results and writes them to a client.
type Pump struct {
	source    Source
	processor Processor
	quality   int
	interval  time.Duration
	errLog    rate.Sometimes
}

// NewPump creates a pump writing at most fps frames per second. processor may be nil.
func NewPump(source Source, processor Processor, quality, fps int) *Pump {
	return &Pump{
		source:    source,
		processor: processor,
		quality:   quality,
		interval:  time.Second / time.Duration(max(fps, 1)),
		errLog:    rate.Sometimes{Interval: constants.CameraErrorLogInterval},
	}
}

// Run streams frames until ctx is done or the client stops reading. flush, if non-nil,
// is called after every frame.
func (p *Pump) Run(ctx context.Context, w *Writer, flush func()) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return nil
		}

		frame := p.source.Latest()
		if frame == nil || frame.Seq == lastSeq {
			continue
		}
		lastSeq = frame.Seq

		data, err := p.render(ctx, frame.Image)
		if err != nil {
			p.errLog.Do(func() { log.Printf("stream: skipping frame %d: %v", frame.Seq, err) })
			continue
		}
		if err := w.WriteFrame(data); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
	}
}

func (p *Pump) render(ctx context.Context, img image.Image) ([]byte, error) {
	if p.processor != nil {
		img = Overlay(img, p.processor.Process(ctx, img))
	}
	return embedding.EncodeJPEG(img, p.quality)
}
