package transport

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
)

var (
	ErrClosed      = errors.New("transport closed")
	ErrReadTimeout = errors.New("timed out waiting for response line")
)

// lineCodec frames writes and reads as '\n' terminated lines.
type lineCodec struct {
	r *bufio.Reader
	w *bufio.Writer

	mu     sync.Mutex
	closed bool
}

func newLineCodec(r io.Reader, w io.Writer) *lineCodec {
	return &lineCodec{r: bufio.NewReader(r), w: bufio.NewWriter(w)}
}

func (c *lineCodec) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// markClosed reports whether this call was the one that closed the codec.
func (c *lineCodec) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

func (c *lineCodec) writeLine(line string) error {
	if c.isClosed() {
		return ErrClosed
	}
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

// readLine returns one line without its terminator. A final unterminated
// line is returned as is; only a read that yields nothing reports io.EOF.
func (c *lineCodec) readLine() (string, error) {
	if c.isClosed() {
		return "", ErrClosed
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
