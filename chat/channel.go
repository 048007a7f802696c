package chat

// Channel is one live, bidirectional, frame-oriented connection to the
// backend. ReadFrame is called from a single goroutine; WriteFrame and Close
// may be called from any goroutine. After Close, ReadFrame returns an error.
type Channel interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}
