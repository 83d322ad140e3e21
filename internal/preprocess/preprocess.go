package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/Brownie44l1/classify-api/internal/model"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const (
	Width    = 250
	Height   = 250
	Channels = 3
)

var ErrTooManyPixels = errors.New("image exceeds pixel limit")

// Shape is the NHWC shape of every tensor produced by Preprocess.
func Shape() []int64 {
	return []int64{1, Height, Width, Channels}
}

// Decode reads an encoded image (JPEG, PNG, GIF, BMP, TIFF or WebP). The header
// is checked first so images above maxPixels are rejected before their pixel
// data is allocated. A maxPixels of 0 disables the check.
func Decode(data []byte, maxPixels int64) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	pixels := int64(cfg.Width) * int64(cfg.Height)
	if pixels == 0 {
		return nil, fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}
	if maxPixels > 0 && pixels > maxPixels {
		return nil, fmt.Errorf("%w: %d pixels (%dx%d) > %d", ErrTooManyPixels, pixels, cfg.Width, cfg.Height, maxPixels)
	}

	return imaging.Decode(bytes.NewReader(data))
}

// Preprocess converts img to RGB, resizes it to Width x Height without keeping
// the aspect ratio, and scales every channel to [0, 1]. The result has shape
// (1, Height, Width, 3) in RGB order.
func Preprocess(img image.Image) model.Tensor {
	rgb := toRGB(img)
	resized := imaging.Clone(resize.Resize(Width, Height, rgb, resize.Bicubic))

	data := make([]float32, Width*Height*Channels)
	for y := 0; y < Height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < Width; x++ {
			src := row[x*4:]
			dst := data[(y*Width+x)*Channels:]
			dst[0] = float32(src[0]) / 255.0
			dst[1] = float32(src[1]) / 255.0
			dst[2] = float32(src[2]) / 255.0
		}
	}

	return model.Tensor{Shape: Shape(), Data: data}
}

// toRGB expands gray and palette images to three channels and drops alpha
// without blending, leaving every pixel fully opaque.
func toRGB(img image.Image) *image.NRGBA {
	rgb := imaging.Clone(img)
	for i := 3; i < len(rgb.Pix); i += 4 {
		rgb.Pix[i] = 0xff
	}
	return rgb
}
