package rimage

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	// register decoders for ReadImageFromFile.
	_ "image/jpeg"
)

// ReadImageFromFile decodes the image at path.
func ReadImageFromFile(path string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %s", path)
	}
	return img, nil
}

// ReadDepthMapFromFile reads a 16-bit grayscale PNG as a depth map.
func ReadDepthMapFromFile(path string) (*DepthMap, error) {
	img, err := ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	dm, err := ConvertImageToDepthMap(img)
	if err != nil {
		return nil, errors.Wrapf(err, "depth file %s", path)
	}
	return dm, nil
}

// ReadColorImageFromFile reads an image file and packs it in the given channel order.
func ReadColorImageFromFile(path string, order ChannelOrder) (*ColorImage, error) {
	img, err := ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	return NewColorImageFromImage(img, order), nil
}

// WriteImageToFile writes an image to a PNG file. Depth maps are written as 16-bit grayscale.
func WriteImageToFile(path string, img image.Image) (err error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".png" {
		return errors.Errorf("unsupported image extension %q", ext)
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	return png.Encode(f, img)
}
