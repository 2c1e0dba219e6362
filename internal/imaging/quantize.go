package imaging

import (
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
)

// PaletteSize is the number of colours the post-processing reduces an image to
const PaletteSize = 8

const kmeansIterations = 12

// Quantize reduces img to at most k colours with k-means clustering in RGB space.
// Centroids are seeded from luminance quantiles, so the result is deterministic.
func Quantize(img image.Image, k int) (*image.NRGBA, []color.NRGBA) {
	src := imaging.Clone(img)
	n := len(src.Pix) / 4
	if n == 0 || k <= 0 {
		return src, nil
	}
	if k > n {
		k = n
	}

	pixels := make([][3]float64, n)
	for i := 0; i < n; i++ {
		p := src.Pix[i*4 : i*4+3]
		pixels[i] = [3]float64{float64(p[0]), float64(p[1]), float64(p[2])}
	}

	centroids := seedCentroids(pixels, k)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	sums := make([][3]float64, k)
	counts := make([]int, k)

	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, px := range pixels {
			if best := nearest(centroids, px); best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		for c := range sums {
			sums[c] = [3]float64{}
			counts[c] = 0
		}
		for i, px := range pixels {
			c := labels[i]
			sums[c][0] += px[0]
			sums[c][1] += px[1]
			sums[c][2] += px[2]
			counts[c]++
		}
		for c := range centroids {
			// an empty cluster keeps its previous centroid
			if counts[c] == 0 {
				continue
			}
			cnt := float64(counts[c])
			centroids[c] = [3]float64{sums[c][0] / cnt, sums[c][1] / cnt, sums[c][2] / cnt}
		}
	}

	palette := make([]color.NRGBA, k)
	for c, ct := range centroids {
		palette[c] = color.NRGBA{R: clamp8(ct[0]), G: clamp8(ct[1]), B: clamp8(ct[2]), A: 255}
	}

	out := image.NewNRGBA(src.Bounds())
	for i := 0; i < n; i++ {
		col := palette[nearest(centroids, pixels[i])]
		o := out.Pix[i*4 : i*4+4]
		o[0], o[1], o[2], o[3] = col.R, col.G, col.B, src.Pix[i*4+3]
	}
	return out, palette
}

func seedCentroids(pixels [][3]float64, k int) [][3]float64 {
	order := make([]int, len(pixels))
	for i := range order {
		order[i] = i
	}
	luma := func(p [3]float64) float64 { return 0.299*p[0] + 0.587*p[1] + 0.114*p[2] }
	sort.SliceStable(order, func(a, b int) bool {
		return luma(pixels[order[a]]) < luma(pixels[order[b]])
	})

	centroids := make([][3]float64, k)
	for c := 0; c < k; c++ {
		idx := (2*c + 1) * len(order) / (2 * k)
		centroids[c] = pixels[order[idx]]
	}
	return centroids
}

func nearest(centroids [][3]float64, px [3]float64) int {
	best, bestDist := 0, -1.0
	for c, ct := range centroids {
		dr, dg, db := px[0]-ct[0], px[1]-ct[1], px[2]-ct[2]
		d := dr*dr + dg*dg + db*db
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
