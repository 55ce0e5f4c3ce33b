package protocol

import "fmt"

type ImageFormat uint32

const (
	// No data. The receiver has to ask for it with KindRequestImageBuffer.
	FormatEmpty ImageFormat = 0
	// Pre-decoded RGBA rows, len(Data) == Height*BytesPerRow.
	FormatRawRGBA32 ImageFormat = 1
	// Whole encoded file (png, jpeg ...), len(Data) == BytesPerRow.
	// Width and Height are optional, the decoder finds out.
	FormatEncodedFile ImageFormat = 2
)

func (f ImageFormat) String() string {
	switch f {
	case FormatEmpty:
		return "Empty"
	case FormatRawRGBA32:
		return "RawRGBA32"
	case FormatEncodedFile:
		return "EncodedFile"
	default:
		return fmt.Sprintf("ImageFormat(%d)", uint32(f))
	}
}

// ImageBuffer is either inline data or empty. An empty buffer may still carry
// the file path of the image so the receiver can display a name.
//
//	format:uint32 path:StringUTF8 width:uint32 height:uint32 bytesPerRow:uint32 data:Blob?
//
// data is only on the wire if bytesPerRow > 0.
type ImageBuffer struct {
	Format      ImageFormat
	FilePath    string
	Width       uint32
	Height      uint32
	BytesPerRow uint32
	Data        []byte
}

func EmptyImageBuffer(filePath string) ImageBuffer {
	return ImageBuffer{Format: FormatEmpty, FilePath: filePath}
}

// RGBA32Buffer wraps pixel rows. bytesPerRow 0 means tightly packed.
func RGBA32Buffer(pixels []byte, width, height, bytesPerRow uint32) ImageBuffer {
	if bytesPerRow == 0 {
		bytesPerRow = width * 4
	}
	return ImageBuffer{
		Format:      FormatRawRGBA32,
		Width:       width,
		Height:      height,
		BytesPerRow: bytesPerRow,
		Data:        pixels,
	}
}

func EncodedFileBuffer(filePath string, content []byte) ImageBuffer {
	return ImageBuffer{
		Format:      FormatEncodedFile,
		FilePath:    filePath,
		BytesPerRow: uint32(len(content)),
		Data:        content,
	}
}

// IsEmpty reports whether the buffer carries no data on the wire.
func (b ImageBuffer) IsEmpty() bool {
	return b.BytesPerRow == 0
}

// ContentSize is the number of data bytes implied by the header fields.
func (b ImageBuffer) ContentSize() uint64 {
	switch b.Format {
	case FormatEncodedFile:
		return uint64(b.BytesPerRow)
	default:
		return uint64(b.Height) * uint64(b.BytesPerRow)
	}
}

// Validate checks that the header fields and the data agree.
func (b ImageBuffer) Validate() error {
	if b.IsEmpty() {
		if len(b.Data) != 0 {
			return fmt.Errorf("%w: empty image buffer carries %d data bytes", ErrMalformedPayload, len(b.Data))
		}
		return nil
	}
	switch b.Format {
	case FormatRawRGBA32:
		if uint64(b.BytesPerRow) < uint64(b.Width)*4 {
			return fmt.Errorf("%w: %d bytes per row for %d RGBA pixels", ErrMalformedPayload, b.BytesPerRow, b.Width)
		}
	case FormatEncodedFile:
	default:
		return fmt.Errorf("%w: format %s with data", ErrMalformedPayload, b.Format)
	}
	if uint64(len(b.Data)) != b.ContentSize() {
		return fmt.Errorf("%w: %s buffer expects %d data bytes, has %d", ErrMalformedPayload, b.Format, b.ContentSize(), len(b.Data))
	}
	return nil
}

// EncodedSize is the number of payload bytes AppendImageBuffer will write.
func (b ImageBuffer) EncodedSize() int {
	size := 4 + 8 + len(b.FilePath) + 4*3
	if !b.IsEmpty() {
		size += 8 + len(b.Data)
	}
	return size
}

func (w *PayloadWriter) AppendImageBuffer(b ImageBuffer) {
	w.AppendUInt32(uint32(b.Format))
	w.AppendStringUTF8(b.FilePath)
	w.AppendUInt32(b.Width)
	w.AppendUInt32(b.Height)
	w.AppendUInt32(b.BytesPerRow)
	if !b.IsEmpty() {
		w.AppendBlob(b.Data)
	}
}

func (r *PayloadReader) ReadImageBuffer() (ImageBuffer, error) {
	var b ImageBuffer
	format, err := r.ReadUInt32()
	if err != nil {
		return b, err
	}
	b.Format = ImageFormat(format)
	if b.FilePath, err = r.ReadStringUTF8(); err != nil {
		return b, err
	}
	if b.Width, err = r.ReadUInt32(); err != nil {
		return b, err
	}
	if b.Height, err = r.ReadUInt32(); err != nil {
		return b, err
	}
	if b.BytesPerRow, err = r.ReadUInt32(); err != nil {
		return b, err
	}
	if !b.IsEmpty() {
		if b.Data, err = r.ReadBlob(); err != nil {
			return b, err
		}
	}
	return b, b.Validate()
}
