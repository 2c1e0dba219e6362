package codec

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	return img
}

func TestImageRoundTripPreservesDimensions(t *testing.T) {
	sizes := [][2]int{{1, 1}, {17, 9}, {64, 64}, {3, 120}}
	for _, sz := range sizes {
		src := gradient(sz[0], sz[1])

		encoded, err := EncodeImage(src)
		require.NoError(t, err)

		decoded, err := DecodeImage(encoded)
		require.NoError(t, err)
		assert.Equal(t, src.Bounds().Dx(), decoded.Bounds().Dx())
		assert.Equal(t, src.Bounds().Dy(), decoded.Bounds().Dy())

		// and through a data URL
		decoded, err = DecodeImage(DataURL(MimePNG, encoded))
		require.NoError(t, err)
		assert.Equal(t, src.Bounds().Size(), decoded.Bounds().Size())
	}
}

func TestRoundTripPreservesPixels(t *testing.T) {
	src := gradient(8, 8)
	encoded, err := EncodeImage(src)
	require.NoError(t, err)

	decoded, err := DecodeImage(encoded)
	require.NoError(t, err)

	r1, g1, b1, _ := src.At(5, 3).RGBA()
	r2, g2, b2, _ := decoded.At(5, 3).RGBA()
	assert.Equal(t, []uint32{r1, g1, b1}, []uint32{r2, g2, b2})
}

func TestSplitDataURL(t *testing.T) {
	mime, payload := SplitDataURL("data:image/jpeg;base64,QUJD")
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, "QUJD", payload)

	mime, payload = SplitDataURL("  QUJD\n")
	assert.Empty(t, mime)
	assert.Equal(t, "QUJD", payload)
}

func TestDecodeBytes_ToleratesMissingPaddingAndNewlines(t *testing.T) {
	raw, err := DecodeBytes("QUJDRA")
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCD"), raw)

	raw, err = DecodeBytes("QUJD\nRA==")
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCD"), raw)
}

func TestDecodeImage_RejectsMalformedInput(t *testing.T) {
	_, err := DecodeImage("")
	assert.Error(t, err)

	_, err = DecodeImage("!!!not-base64!!!")
	assert.Error(t, err)

	_, err = DecodeImage(EncodeBytes([]byte("plain text, not an image")))
	assert.Error(t, err)
}
