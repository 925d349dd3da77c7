package stream

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	return img
}

func TestOverlay_Colors(t *testing.T) {
	src := grayFrame(100, 100)
	faces := []recognition.TrackedFace{
		{Box: image.Rect(10, 30, 40, 60), Match: facematch.Matched("123456789012", 0.2)},
		{Box: image.Rect(60, 30, 90, 60), Match: facematch.Unknown(0.8)},
	}

	out := Overlay(src, faces)

	if got := color.RGBAModel.Convert(out.At(10, 45)).(color.RGBA); got != matchedColor {
		t.Errorf("expected green edge for matched face, got %v", got)
	}
	if got := color.RGBAModel.Convert(out.At(60, 45)).(color.RGBA); got != unknownColor {
		t.Errorf("expected red edge for unknown face, got %v", got)
	}
	if got := color.RGBAModel.Convert(out.At(25, 45)).(color.RGBA); got != (color.RGBA{128, 128, 128, 255}) {
		t.Errorf("box interior should be untouched, got %v", got)
	}
	if src.RGBAAt(10, 45) != (color.RGBA{128, 128, 128, 255}) {
		t.Error("overlay must not modify the shared frame")
	}
}

func TestOverlay_NoFacesReturnsFrame(t *testing.T) {
	src := grayFrame(10, 10)
	if out := Overlay(src, nil); out != image.Image(src) {
		t.Error("expected the frame itself when there is nothing to draw")
	}
}

func TestOverlay_BoxOutsideFrame(t *testing.T) {
	src := grayFrame(20, 20)
	out := Overlay(src, []recognition.TrackedFace{{Box: image.Rect(50, 50, 80, 80)}})
	if out.Bounds() != src.Bounds() {
		t.Errorf("unexpected bounds %v", out.Bounds())
	}
}

func TestWriter_Parts(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if w.ContentType() != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("unexpected content type %q", w.ContentType())
	}
	if err := w.WriteFrame([]byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFrame([]byte("two")); err != nil {
		t.Fatal(err)
	}
	w.Close()

	if !strings.HasPrefix(buf.String(), "--frame\r\n") {
		t.Errorf("stream should start with the boundary, got %q", buf.String()[:20])
	}

	r := multipart.NewReader(&buf, "frame")
	for _, want := range []string{"one", "two"} {
		part, err := r.NextPart()
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		if part.Header.Get("Content-Type") != "image/jpeg" {
			t.Errorf("unexpected part content type %q", part.Header.Get("Content-Type"))
		}
		if part.Header.Get("Content-Length") != "3" {
			t.Errorf("unexpected content length %q", part.Header.Get("Content-Length"))
		}
		body, _ := io.ReadAll(part)
		if string(body) != want {
			t.Errorf("got %q, want %q", body, want)
		}
	}
}

// countingSource returns a new frame on every call.
type countingSource struct {
	seq atomic.Uint64
	img image.Image
}

func (s *countingSource) Latest() *camera.Frame {
	return &camera.Frame{Image: s.img, Seq: s.seq.Add(1), CapturedAt: time.Now()}
}

type staticSource struct {
	frame *camera.Frame
}

func (s *staticSource) Latest() *camera.Frame { return s.frame }

type fixedProcessor struct {
	faces []recognition.TrackedFace
	calls int
}

func (p *fixedProcessor) Process(ctx context.Context, img image.Image) []recognition.TrackedFace {
	p.calls++
	return p.faces
}

func TestPump_StreamsFrames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	proc := &fixedProcessor{faces: []recognition.TrackedFace{{Box: image.Rect(2, 2, 20, 20), Match: facematch.Matched("1", 0)}}}
	p := NewPump(&countingSource{img: grayFrame(32, 32)}, proc, 70, 200)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	flushed := 0
	err := p.Run(ctx, w, func() {
		flushed++
		if flushed == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if proc.calls != 3 {
		t.Errorf("expected 3 processed frames, got %d", proc.calls)
	}

	r := multipart.NewReader(&buf, "frame")
	for i := range 3 {
		part, err := r.NextPart()
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if _, err := jpeg.Decode(part); err != nil {
			t.Errorf("part %d is not a JPEG: %v", i, err)
		}
	}
}

func TestPump_SkipsRepeatedFrames(t *testing.T) {
	var buf bytes.Buffer
	proc := &fixedProcessor{}
	src := &staticSource{frame: &camera.Frame{Image: grayFrame(8, 8), Seq: 1}}
	p := NewPump(src, proc, 70, 200)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx, NewWriter(&buf), nil); err != nil {
		t.Fatal(err)
	}
	if proc.calls != 1 {
		t.Errorf("expected the unchanged frame to be processed once, got %d", proc.calls)
	}
}

func TestPump_WaitsForFirstFrame(t *testing.T) {
	var buf bytes.Buffer
	p := NewPump(&staticSource{}, nil, 70, 200)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx, NewWriter(&buf), nil); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written before the camera delivers a frame")
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestPump_StopsWhenClientGone(t *testing.T) {
	p := NewPump(&countingSource{img: grayFrame(8, 8)}, nil, 70, 200)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), NewWriter(failingWriter{}), nil) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected write error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pump kept running after the client went away")
	}
}

// sequenceSource returns its frames in order, then repeats the last one.
type sequenceSource struct {
	frames []*camera.Frame
	calls  int
}

func (s *sequenceSource) Latest() *camera.Frame {
	f := s.frames[min(s.calls, len(s.frames)-1)]
	s.calls++
	return f
}

func TestPump_SkipsFrameThatFailsToEncode(t *testing.T) {
	// JPEG cannot encode images 65536 pixels wide.
	tooWide := image.NewRGBA(image.Rect(0, 0, 1<<16, 1))
	src := &sequenceSource{frames: []*camera.Frame{
		{Image: tooWide, Seq: 1},
		{Image: grayFrame(8, 8), Seq: 2},
	}}
	p := NewPump(src, nil, 70, 200)

	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	flushed := 0
	err := p.Run(ctx, NewWriter(&buf), func() {
		flushed++
		cancel()
	})
	if err != nil {
		t.Fatalf("an unencodable frame must not end the stream: %v", err)
	}
	if flushed != 1 {
		t.Fatalf("expected the next frame to be written, got %d frames", flushed)
	}
	if src.calls < 2 {
		t.Errorf("expected the pump to read past the bad frame, read %d frames", src.calls)
	}

	part, err := multipart.NewReader(&buf, "frame").NextPart()
	if err != nil {
		t.Fatalf("reading part: %v", err)
	}
	img, err := jpeg.Decode(part)
	if err != nil {
		t.Fatalf("part is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("expected the 8px frame, got width %d", img.Bounds().Dx())
	}
}
