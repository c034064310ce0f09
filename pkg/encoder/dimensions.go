package encoder

import (
	"image"
	"io"
)

type PhotoDimensions struct {
	Width  int
	Height int
}

func GetPhotoDimensions(photo io.Reader) (*PhotoDimensions, error) {
	config, _, err := image.DecodeConfig(photo)
	if err != nil {
		return nil, err
	}

	return &PhotoDimensions{
		Width:  config.Width,
		Height: config.Height,
	}, nil
}

func PhotoDimensionsFromRect(rect image.Rectangle) PhotoDimensions {
	return PhotoDimensions{
		Width:  rect.Bounds().Max.X,
		Height: rect.Bounds().Max.Y,
	}
}

// ScaleToWidth returns dimensions scaled to targetWidth, preserving aspect
// ratio, never upscaling past the original size.
func (dimensions *PhotoDimensions) ScaleToWidth(targetWidth int) PhotoDimensions {
	if targetWidth >= dimensions.Width {
		return *dimensions
	}

	aspect := float64(dimensions.Width) / float64(dimensions.Height)
	height := int(float64(targetWidth) / aspect)

	return PhotoDimensions{
		Width:  targetWidth,
		Height: height,
	}
}
