package protocol

import (
	"encoding/binary"
	"fmt"
)

type PayloadWriter struct {
	buf []byte
}

func NewPayloadWriter(sizeHint int) *PayloadWriter {
	return &PayloadWriter{buf: make([]byte, 0, sizeHint)}
}

func (w *PayloadWriter) AppendInt32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

func (w *PayloadWriter) AppendUInt32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *PayloadWriter) AppendUInt64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *PayloadWriter) AppendBytes(data []byte) {
	w.buf = append(w.buf, data...)
}

func (w *PayloadWriter) AppendStringUTF8(s string) {
	w.AppendUInt64(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *PayloadWriter) AppendBlob(data []byte) {
	w.AppendUInt64(uint64(len(data)))
	w.buf = append(w.buf, data...)
}

func (w *PayloadWriter) Len() int {
	return len(w.buf)
}

func (w *PayloadWriter) Bytes() []byte {
	return w.buf
}

// PayloadReader never reads behind the end of its buffer, every read that
// would do so fails with ErrTruncatedPayload.
type PayloadReader struct {
	data   []byte
	offset int
}

func NewPayloadReader(data []byte) *PayloadReader {
	return &PayloadReader{data: data}
}

func (r *PayloadReader) Remaining() int {
	return len(r.data) - r.offset
}

func (r *PayloadReader) take(n uint64, what string) ([]byte, error) {
	if n > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: %s needs %d bytes at offset %d, %d left", ErrTruncatedPayload, what, n, r.offset, r.Remaining())
	}
	chunk := r.data[r.offset : r.offset+int(n)]
	r.offset += int(n)
	return chunk, nil
}

func (r *PayloadReader) ReadInt32() (int32, error) {
	raw, err := r.take(4, "int32")
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(raw)), nil
}

func (r *PayloadReader) ReadUInt32() (uint32, error) {
	raw, err := r.take(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

func (r *PayloadReader) ReadUInt64() (uint64, error) {
	raw, err := r.take(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

func (r *PayloadReader) ReadStringUTF8() (string, error) {
	length, err := r.ReadUInt64()
	if err != nil {
		return "", err
	}
	raw, err := r.take(length, "string")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ReadBlob returns a copy, the payload buffer may be reused by the caller.
func (r *PayloadReader) ReadBlob() ([]byte, error) {
	length, err := r.ReadUInt64()
	if err != nil {
		return nil, err
	}
	raw, err := r.take(length, "blob")
	if err != nil {
		return nil, err
	}
	blob := make([]byte, len(raw))
	copy(blob, raw)
	return blob, nil
}

// ExpectEnd fails if unread bytes are left.
func (r *PayloadReader) ExpectEnd() error {
	if r.Remaining() != 0 {
		return fmt.Errorf("%w: %d unexpected trailing bytes", ErrMalformedPayload, r.Remaining())
	}
	return nil
}
