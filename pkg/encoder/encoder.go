package encoder

import (
	"bytes"
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
)

// EncodeRendition decodes inputPhoto, resizes it to the given target width
// preserving aspect ratio, and encodes the result as PNG.
func EncodeRendition(inputPhoto io.Reader, targetWidth int) (io.Reader, error) {
	inputImage, err := imaging.Decode(inputPhoto, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	dims := PhotoDimensionsFromRect(inputImage.Bounds())
	scaled := dims.ScaleToWidth(targetWidth)

	resized := imaging.Resize(inputImage, scaled.Width, scaled.Height, imaging.Lanczos)

	buff := new(bytes.Buffer)
	if err := encodeImagePNG(resized, buff); err != nil {
		return nil, err
	}

	return buff, nil
}

func encodeImagePNG(img image.Image, w io.Writer) error {
	return png.Encode(w, img)
}
