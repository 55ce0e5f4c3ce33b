package imagelink

import (
	"fmt"
	"image"
	"sync"

	"github.com/blutspende/go-imagelink/protocol"
)

// ImageList is the consumer side list of received images, fed by
// ImageServer.DrainAll. Decoded pixels are kept in an ImageDataCache.
type ImageList struct {
	mtx     sync.Mutex
	entries []ReceivedImage
	decoder ImageDecoder
	cache   *ImageDataCache[CacheKey, image.Image]
}

func NewImageList(decoder ImageDecoder, cacheCapacity int) *ImageList {
	if decoder == nil {
		decoder = StandardDecoder{}
	}
	list := &ImageList{
		entries: make([]ReceivedImage, 0),
		decoder: decoder,
	}
	list.cache = NewImageDataCache[CacheKey, image.Image](cacheCapacity, list.load)
	return list
}

// Add has the signature DrainAll wants.
func (l *ImageList) Add(img ReceivedImage, flags uint32) {
	l.Insert(img, flags)
}

// Insert appends the image or, with the replace flag, takes the place of an
// existing image of the same viewer with the same file path (or name when
// either has no path). Returns the position.
func (l *ImageList) Insert(img ReceivedImage, flags uint32) int {
	l.mtx.Lock()
	position := len(l.entries)
	var replaced *ReceivedImage
	if flags&protocol.FlagReplaceExisting != 0 {
		for i, existing := range l.entries {
			if sameImage(existing, img) {
				position = i
				old := l.entries[i]
				replaced = &old
				l.entries = append(l.entries[:i], l.entries[i+1:]...)
				break
			}
		}
	}
	l.entries = append(l.entries, ReceivedImage{})
	copy(l.entries[position+1:], l.entries[position:])
	l.entries[position] = img
	l.mtx.Unlock()

	if replaced != nil {
		l.cache.Remove(replaced.Handle.Key())
	}
	return position
}

func sameImage(a, b ReceivedImage) bool {
	if a.ViewerName != b.ViewerName {
		return false
	}
	if a.FilePath != "" && b.FilePath != "" {
		return a.FilePath == b.FilePath
	}
	return a.Name == b.Name
}

func (l *ImageList) Len() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.entries)
}

func (l *ImageList) At(index int) (ReceivedImage, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if index < 0 || index >= len(l.entries) {
		return ReceivedImage{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(l.entries))
	}
	return l.entries[index], nil
}

// Find returns the position of the first image with that name shown in
// viewerName, -1 if there is none.
func (l *ImageList) Find(name, viewerName string) int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	for i, entry := range l.entries {
		if entry.Name == name && entry.ViewerName == viewerName {
			return i
		}
	}
	return -1
}

// Remove drops the image and its cached pixels, image ids may be reused by
// the producer.
func (l *ImageList) Remove(index int) error {
	l.mtx.Lock()
	if index < 0 || index >= len(l.entries) {
		l.mtx.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(l.entries))
	}
	removed := l.entries[index]
	l.entries = append(l.entries[:index], l.entries[index+1:]...)
	l.mtx.Unlock()

	l.cache.Remove(removed.Handle.Key())
	return nil
}

// Data returns the decoded image. While the handle is loading the data is
// requested (once) and ErrImageLoading is returned, poll again later.
func (l *ImageList) Data(index int) (image.Image, error) {
	entry, err := l.At(index)
	if err != nil {
		return nil, err
	}

	state := entry.Handle.State()
	switch state.Status {
	case Ready:
		return l.cache.Get(entry.Handle.Key())
	case Loading:
		entry.Handle.RequestData()
		return nil, ErrImageLoading
	case FailedToLoad:
		return nil, fmt.Errorf("%w: %v", ErrImageLoadFailed, state.Err)
	default:
		return nil, ErrImageLoading
	}
}

func (l *ImageList) load(key CacheKey) (image.Image, error) {
	l.mtx.Lock()
	var handle *NetworkImageHandle
	for _, entry := range l.entries {
		if entry.Handle.Key() == key {
			handle = entry.Handle
			break
		}
	}
	l.mtx.Unlock()

	if handle == nil {
		return nil, fmt.Errorf("%w: image %d of %s", ErrIndexOutOfRange, key.ImageID, key.ConnectionID)
	}
	state := handle.State()
	if state.Status != Ready {
		return nil, ErrImageLoading
	}
	return l.decoder.Decode(state.Buffer)
}
