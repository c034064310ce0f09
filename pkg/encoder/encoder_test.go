package encoder_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/pkg/encoder"
)

func sourcePNG(t *testing.T, width, height int) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf
}

func TestGetPhotoDimensionsReadsPNGHeader(t *testing.T) {
	dims, err := encoder.GetPhotoDimensions(sourcePNG(t, 800, 400))
	require.NoError(t, err)
	require.Equal(t, 800, dims.Width)
	require.Equal(t, 400, dims.Height)
}

func TestScaleToWidthPreservesAspectRatio(t *testing.T) {
	dims := encoder.PhotoDimensions{Width: 800, Height: 400}

	scaled := dims.ScaleToWidth(400)
	require.Equal(t, 400, scaled.Width)
	require.Equal(t, 200, scaled.Height)
}

func TestScaleToWidthNeverUpscales(t *testing.T) {
	dims := encoder.PhotoDimensions{Width: 300, Height: 200}

	scaled := dims.ScaleToWidth(1000)
	require.Equal(t, dims, scaled)
}

func TestEncodeRenditionProducesResizedPNG(t *testing.T) {
	out, err := encoder.EncodeRendition(sourcePNG(t, 640, 320), 320)
	require.NoError(t, err)

	decoded, err := png.Decode(out)
	require.NoError(t, err)
	require.Equal(t, 320, decoded.Bounds().Dx())
	require.Equal(t, 160, decoded.Bounds().Dy())
}
