package protocol

import "errors"

var (
	// Decode errors. The stream can not be trusted to be frame aligned anymore
	// after one of these, the connection has to be closed.
	ErrTruncatedPayload = errors.New("truncated payload")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownKind      = errors.New("unknown message kind")
	ErrPayloadTooLarge  = errors.New("payload too large")

	ErrReceiveInProgress = errors.New("receive already in progress")
	ErrQueueAborted      = errors.New("sender queue aborted")
)

// IsDecodeError tells apart malformed input from transport failures.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrTruncatedPayload) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrPayloadTooLarge)
}
