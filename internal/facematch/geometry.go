package facematch

import (
	"image"
	"math"
)

// ScaleBox converts a detector bbox [x1, y1, x2, y2] found on a downscaled frame
// back to original frame coordinates and clamps it to bounds.
// factor is the downscale factor that was applied (e.g. 0.2).
func ScaleBox(bbox []float64, factor float64, bounds image.Rectangle) image.Rectangle {
	if len(bbox) != 4 || factor <= 0 {
		return image.Rectangle{}
	}
	inv := 1 / factor
	r := image.Rect(
		int(math.Floor(bbox[0]*inv)),
		int(math.Floor(bbox[1]*inv)),
		int(math.Ceil(bbox[2]*inv)),
		int(math.Ceil(bbox[3]*inv)),
	)
	return ClampBox(r.Add(bounds.Min), bounds)
}

// ClampBox restricts r to bounds. Returns the empty rectangle when they don't overlap.
func ClampBox(r, bounds image.Rectangle) image.Rectangle {
	return r.Canon().Intersect(bounds)
}

// ComputeIoU calculates Intersection over Union between two rectangles.
func ComputeIoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	area := func(r image.Rectangle) float64 { return float64(r.Dx()) * float64(r.Dy()) }
	union := area(a) + area(b) - area(inter)
	if union <= 0 {
		return 0
	}
	return area(inter) / union
}
