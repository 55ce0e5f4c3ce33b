package protocol

import "fmt"

const FlagReplaceExisting uint32 = 1

func CloseMessage() Message {
	return Message{Kind: KindClose, Payload: []byte{}}
}

func VersionMessage(version int32) Message {
	w := NewPayloadWriter(4)
	w.AppendInt32(version)
	return Message{Kind: KindVersion, Payload: w.Bytes()}
}

func DecodeVersion(msg Message) (int32, error) {
	if err := expectKind(msg, KindVersion); err != nil {
		return 0, err
	}
	r := NewPayloadReader(msg.Payload)
	version, err := r.ReadInt32()
	if err != nil {
		return 0, err
	}
	return version, r.ExpectEnd()
}

// ImageAnnouncement announces a new image. With an empty Buffer the data is
// promised and will be requested later by ImageID.
type ImageAnnouncement struct {
	ImageID    uint64
	Name       string
	ViewerName string
	Flags      uint32
	Buffer     ImageBuffer
}

func (a ImageAnnouncement) ReplaceExisting() bool {
	return a.Flags&FlagReplaceExisting != 0
}

func (a ImageAnnouncement) Message() Message {
	w := NewPayloadWriter(8 + 8 + len(a.Name) + 8 + len(a.ViewerName) + 4 + a.Buffer.EncodedSize())
	w.AppendUInt64(a.ImageID)
	w.AppendStringUTF8(a.Name)
	w.AppendStringUTF8(a.ViewerName)
	w.AppendUInt32(a.Flags)
	w.AppendImageBuffer(a.Buffer)
	return Message{Kind: KindImage, Payload: w.Bytes()}
}

func DecodeImageAnnouncement(msg Message) (ImageAnnouncement, error) {
	var a ImageAnnouncement
	if err := expectKind(msg, KindImage); err != nil {
		return a, err
	}
	r := NewPayloadReader(msg.Payload)
	var err error
	if a.ImageID, err = r.ReadUInt64(); err != nil {
		return a, err
	}
	if a.Name, err = r.ReadStringUTF8(); err != nil {
		return a, err
	}
	if a.ViewerName, err = r.ReadStringUTF8(); err != nil {
		return a, err
	}
	if a.Flags, err = r.ReadUInt32(); err != nil {
		return a, err
	}
	if a.Buffer, err = r.ReadImageBuffer(); err != nil {
		return a, err
	}
	return a, r.ExpectEnd()
}

func RequestImageBufferMessage(imageID uint64) Message {
	w := NewPayloadWriter(8)
	w.AppendUInt64(imageID)
	return Message{Kind: KindRequestImageBuffer, Payload: w.Bytes()}
}

func DecodeRequestImageBuffer(msg Message) (uint64, error) {
	if err := expectKind(msg, KindRequestImageBuffer); err != nil {
		return 0, err
	}
	r := NewPayloadReader(msg.Payload)
	imageID, err := r.ReadUInt64()
	if err != nil {
		return 0, err
	}
	return imageID, r.ExpectEnd()
}

// ImageBufferReply answers a RequestImageBuffer. An empty Buffer means the
// producer could not supply the data.
type ImageBufferReply struct {
	ImageID uint64
	Buffer  ImageBuffer
}

func (rep ImageBufferReply) Message() Message {
	w := NewPayloadWriter(8 + rep.Buffer.EncodedSize())
	w.AppendUInt64(rep.ImageID)
	w.AppendImageBuffer(rep.Buffer)
	return Message{Kind: KindImageBuffer, Payload: w.Bytes()}
}

func DecodeImageBufferReply(msg Message) (ImageBufferReply, error) {
	var rep ImageBufferReply
	if err := expectKind(msg, KindImageBuffer); err != nil {
		return rep, err
	}
	r := NewPayloadReader(msg.Payload)
	var err error
	if rep.ImageID, err = r.ReadUInt64(); err != nil {
		return rep, err
	}
	if rep.Buffer, err = r.ReadImageBuffer(); err != nil {
		return rep, err
	}
	return rep, r.ExpectEnd()
}

func expectKind(msg Message, kind MessageKind) error {
	if msg.Kind != kind {
		return fmt.Errorf("%w: expected %s, got %s", ErrMalformedPayload, kind, msg.Kind)
	}
	return nil
}
