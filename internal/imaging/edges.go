package imaging

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	edgeBlurSigma = 1.2
	// EdgeThreshold is the Sobel gradient magnitude above which a pixel counts as an edge
	EdgeThreshold = 110.0
)

// DetectEdges returns a mask that is 255 on edge pixels and 0 elsewhere.
// The image is converted to grayscale and smoothed before the Sobel operator is applied.
func DetectEdges(img image.Image) *image.Gray {
	gray := imaging.Blur(imaging.Grayscale(img), edgeBlurSigma)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	mask := image.NewGray(image.Rect(0, 0, w, h))

	// luminance at (x, y) with edge clamping; Grayscale leaves R=G=B
	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		} else if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		} else if y >= h {
			y = h - 1
		}
		return float64(gray.Pix[y*gray.Stride+x*4])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if math.Hypot(gx, gy) > EdgeThreshold {
				mask.Pix[y*mask.Stride+x] = 255
			}
		}
	}
	return mask
}
