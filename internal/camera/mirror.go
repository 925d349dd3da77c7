package camera

import (
	"image"
	"image/draw"
)

// Mirror returns a horizontally flipped copy of img, for devices that do not flip
// frames themselves.
func Mirror(img image.Image) *image.RGBA {
	b := img.Bounds()
	src, ok := img.(*image.RGBA)
	if !ok {
		src = image.NewRGBA(b)
		draw.Draw(src, b, img, b.Min, draw.Src)
	}

	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			si := src.PixOffset(x, y)
			di := dst.PixOffset(b.Max.X-1-(x-b.Min.X), y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
