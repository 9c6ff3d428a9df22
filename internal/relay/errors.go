package relay

import "errors"

var (
	// ErrMissingImage is returned when an ingest carries no image_b64.
	ErrMissingImage = errors.New("missing image_b64")
	// ErrMalformedBody is returned when an ingest body cannot be parsed.
	ErrMalformedBody = errors.New("malformed request body")
	// ErrDecode wraps base64 decode failures of the binary frame.
	ErrDecode = errors.New("frame decode failed")
	// ErrInternal marks an unexpected failure while processing an ingest.
	ErrInternal = errors.New("internal ingest failure")
	// ErrStreamLimit is returned when the MJPEG stream limit is reached.
	ErrStreamLimit = errors.New("mjpeg stream limit reached")
)
