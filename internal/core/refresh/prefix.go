package refresh

import (
	"errors"
	"io"
	"sync"
)

// DefaultPrefixLimit is the number of body bytes inspected for a meta refresh.
const DefaultPrefixLimit = 1024

// Prefix holds at most limit bytes from the start of a stream.
type Prefix struct {
	Bytes []byte
	// Complete is true when the stream ended before the limit was reached.
	Complete bool
}

// ReadPrefix reads up to limit bytes from rc and closes it. It never reads past
// the limit. A short stream is not an error; a failed read returns the bytes
// collected so far along with the error.
func ReadPrefix(rc io.ReadCloser, limit int) (*Prefix, error) {
	if limit <= 0 {
		limit = DefaultPrefixLimit
	}
	body := releaseOnce(rc)
	defer body.Close() // nolint:errcheck

	buf := make([]byte, limit)
	n, err := io.ReadFull(body, buf)
	prefix := &Prefix{Bytes: buf[:n]}

	switch {
	case err == nil:
		// Filled to the limit; the stream may or may not have ended here.
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		prefix.Complete = true
	default:
		return prefix, err
	}
	return prefix, nil
}

type onceCloser struct {
	io.Reader
	once   sync.Once
	closer io.Closer
	err    error
}

// releaseOnce wraps rc so that Close reaches the underlying stream exactly once,
// however many owners defer it. Wrapping an already wrapped stream returns it as is.
func releaseOnce(rc io.ReadCloser) *onceCloser {
	if oc, ok := rc.(*onceCloser); ok {
		return oc
	}
	return &onceCloser{Reader: rc, closer: rc}
}

func (c *onceCloser) Close() error {
	c.once.Do(func() {
		c.err = c.closer.Close()
	})
	return c.err
}
