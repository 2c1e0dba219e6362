package imaging

import (
	"image"
)

// ApplyEdgeMask keeps the colour of every non-edge pixel and paints edge pixels black,
// the equivalent of AND-ing the image with the inverted edge mask.
func ApplyEdgeMask(img *image.NRGBA, edges *image.Gray) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			si := y*img.Stride + x*4
			di := y*out.Stride + x*4
			copy(out.Pix[di:di+4], img.Pix[si:si+4])
			if edges.Pix[y*edges.Stride+x] != 0 {
				out.Pix[di], out.Pix[di+1], out.Pix[di+2] = 0, 0, 0
			}
		}
	}
	return out
}

// Stylize flattens img into a small palette and outlines its edges, approximating a
// flat-shaded illustration.
func Stylize(img image.Image) *image.NRGBA {
	quantized, _ := Quantize(img, PaletteSize)
	return ApplyEdgeMask(quantized, DetectEdges(img))
}
