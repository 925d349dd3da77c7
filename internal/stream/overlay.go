// Package stream renders recognition overlays and serves camera frames as MJPEG.
package stream

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const boxThickness = 2

var (
	unknownColor = color.RGBA{R: 255, A: 255}
	matchedColor = color.RGBA{G: 255, A: 255}
)

// Overlay draws a box and label for each face onto a copy of img.
// Unknown faces are red, matched faces green.
func Overlay(img image.Image, faces []recognition.TrackedFace) image.Image {
	if len(faces) == 0 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	for _, f := range faces {
		col := unknownColor
		if f.Match.IsMatched() {
			col = matchedColor
		}
		box := facematch.ClampBox(f.Box, b)
		if box.Empty() {
			continue
		}
		drawRect(dst, box, col)
		drawLabel(dst, box, facematch.ASCIILabel(f.Match.Label()), col)
	}
	return dst
}

func drawRect(dst *image.RGBA, r image.Rectangle, col color.Color) {
	src := image.NewUniform(col)
	t := min(boxThickness, r.Dx(), r.Dy())
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text above the box, or inside it when there is no room above.
func drawLabel(dst *image.RGBA, box image.Rectangle, text string, col color.Color) {
	face := basicfont.Face7x13
	y := box.Min.Y - 4
	if y-face.Ascent < dst.Bounds().Min.Y {
		y = box.Min.Y + face.Ascent + boxThickness
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(box.Min.X, y),
	}
	d.DrawString(text)
}
