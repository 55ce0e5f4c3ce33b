package imagelink

import (
	"bytes"
	"image"
	"os"
	"path/filepath"

	"github.com/blutspende/go-imagelink/protocol"
	"github.com/rs/zerolog/log"
)

// LoadImageFile reads the whole file as an encoded image. Width and height
// are filled in if the format is known, the consumer decodes the content.
func LoadImageFile(path string) (protocol.ImageBuffer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return protocol.ImageBuffer{}, err
	}
	buffer := protocol.EncodedFileBuffer(path, content)
	if config, _, err := image.DecodeConfig(bytes.NewReader(content)); err == nil {
		buffer.Width = uint32(config.Width)
		buffer.Height = uint32(config.Height)
	}
	return buffer, nil
}

// FileProvider reads path when the data is requested, not when the image is
// published.
func FileProvider(path string) ImageDataProvider {
	return ImageDataProviderFunc(func(imageID uint64) (protocol.ImageBuffer, bool) {
		buffer, err := LoadImageFile(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Uint64("imageId", imageID).Msg("LoadImageFile")
			return protocol.EmptyImageBuffer(path), false
		}
		return buffer, buffer.BytesPerRow > 0
	})
}

// PublishFile announces a file lazily under a fresh image id, named after
// the file.
func (c *ClientSession) PublishFile(path, viewerName string, replaceExisting bool) (uint64, error) {
	imageID := c.NextImageID()
	err := c.publishLazy(imageID, filepath.Base(path), viewerName, path, FileProvider(path), replaceExisting)
	if err != nil {
		return 0, err
	}
	return imageID, nil
}

// PublishImage converts img and announces it eagerly under a fresh image id.
func (c *ClientSession) PublishImage(img image.Image, name, viewerName string, replaceExisting bool) (uint64, error) {
	imageID := c.NextImageID()
	if err := c.PublishEager(imageID, name, viewerName, RGBA32FromImage(img), replaceExisting); err != nil {
		return 0, err
	}
	return imageID, nil
}
