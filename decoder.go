package imagelink

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/blutspende/go-imagelink/protocol"
)

// ImageDecoder turns received buffers into images. Validate runs on the
// network goroutine when the data arrives and has to be cheap, Decode runs
// when the consumer wants the pixels.
type ImageDecoder interface {
	Validate(buffer protocol.ImageBuffer) error
	Decode(buffer protocol.ImageBuffer) (image.Image, error)
}

// StandardDecoder handles raw RGBA rows and every file format registered
// with the image package (png and jpeg are).
type StandardDecoder struct{}

func (StandardDecoder) Validate(buffer protocol.ImageBuffer) error {
	if buffer.IsEmpty() {
		return ErrEmptyImageBuffer
	}
	if err := buffer.Validate(); err != nil {
		return err
	}
	if buffer.Format == protocol.FormatEncodedFile {
		config, format, err := image.DecodeConfig(bytes.NewReader(buffer.Data))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrImageDecode, buffer.FilePath, err)
		}
		if (buffer.Width != 0 && int(buffer.Width) != config.Width) ||
			(buffer.Height != 0 && int(buffer.Height) != config.Height) {
			return fmt.Errorf("%w: %s announces %dx%d, %s file is %dx%d", ErrImageDecode,
				buffer.FilePath, buffer.Width, buffer.Height, format, config.Width, config.Height)
		}
	}
	return nil
}

func (d StandardDecoder) Decode(buffer protocol.ImageBuffer) (image.Image, error) {
	if err := d.Validate(buffer); err != nil {
		return nil, err
	}
	switch buffer.Format {
	case protocol.FormatRawRGBA32:
		img := image.NewRGBA(image.Rect(0, 0, int(buffer.Width), int(buffer.Height)))
		rowBytes := uint64(buffer.Width) * 4
		for y := uint64(0); y < uint64(buffer.Height); y++ {
			start := y * uint64(buffer.BytesPerRow)
			if start+rowBytes > uint64(len(buffer.Data)) {
				return nil, fmt.Errorf("%w: row %d ends past %d data bytes", protocol.ErrMalformedPayload, y, len(buffer.Data))
			}
			copy(img.Pix[int(y)*img.Stride:], buffer.Data[start:start+rowBytes])
		}
		return img, nil
	default:
		img, _, err := image.Decode(bytes.NewReader(buffer.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrImageDecode, buffer.FilePath, err)
		}
		return img, nil
	}
}

// RGBA32FromImage converts any image into tightly packed RGBA rows.
func RGBA32FromImage(img image.Image) protocol.ImageBuffer {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				rgba.Set(x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
	}
	return protocol.RGBA32Buffer(rgba.Pix, uint32(bounds.Dx()), uint32(bounds.Dy()), 0)
}
