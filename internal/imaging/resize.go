// Package imaging holds the image-space steps around the diffusion call: the fixed-size resize
// before pose detection and the flat-shaded post-processing of the diffusion output.
package imaging

import (
	"image"

	"github.com/disintegration/imaging"
)

// Resize scales img to exactly size x size pixels, ignoring the aspect ratio
func Resize(img image.Image, size int) *image.NRGBA {
	return imaging.Resize(img, size, size, imaging.Lanczos)
}
