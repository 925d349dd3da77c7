package stream

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Writer writes JPEG frames as parts of a multipart/x-mixed-replace response.
type Writer struct {
	mw *multipart.Writer
}

// NewWriter creates a writer using the fixed frame boundary.
func NewWriter(w io.Writer) *Writer {
	mw := multipart.NewWriter(w)
	// The boundary is a constant token, always valid.
	_ = mw.SetBoundary(constants.MJPEGBoundary)
	return &Writer{mw: mw}
}

// ContentType returns the response content type.
func (w *Writer) ContentType() string {
	return "multipart/x-mixed-replace; boundary=" + w.mw.Boundary()
}

// WriteFrame writes one JPEG image as a part.
func (w *Writer) WriteFrame(jpeg []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Length", strconv.Itoa(len(jpeg)))
	part, err := w.mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close writes the closing boundary.
func (w *Writer) Close() error {
	return w.mw.Close()
}
