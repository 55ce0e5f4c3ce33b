package imagelink

import "errors"

var (
	ErrNotConnected          = errors.New("not connected")
	ErrConnectFailed         = errors.New("connect failed")
	ErrSessionUsed           = errors.New("session can only be connected once")
	ErrDuplicateImageID      = errors.New("image id already pending")
	ErrUnknownImageID        = errors.New("unknown image id")
	ErrUnexpectedMessage     = errors.New("unexpected message")
	ErrNoProvider            = errors.New("no image data provider")
	ErrEmptyImageBuffer      = errors.New("image buffer carries no data")
	ErrMaxConnectionsReached = errors.New("max connections reached")
	ErrServerRunning         = errors.New("server already started")
	ErrImageLoading          = errors.New("image data still loading")
	ErrImageLoadFailed       = errors.New("image data failed to load")
	ErrImageSuperseded       = errors.New("image announced again before its data arrived")
	ErrImageDecode           = errors.New("image decode failed")
	ErrIndexOutOfRange       = errors.New("image index out of range")
)
