// Package lineconn wraps a stream connection with newline framing: blocking
// ReadLine on the receive side and a buffered, mutex-guarded writer on the
// send side.
package lineconn

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrConnectionClosed is returned (possibly wrapped around the transport
// error) when the peer went away, the transport failed, or Close was called.
var ErrConnectionClosed = errors.New("connection closed")

// Options controls framing limits and write deadlines.
type Options struct {
	// MaxLineBytes is the longest accepted inbound line, terminator included.
	MaxLineBytes int
	// WriteTimeout bounds every Flush; 0 disables the deadline.
	WriteTimeout time.Duration
}

// DefaultOptions returns 4 KiB lines and a 10 second write timeout.
func DefaultOptions() Options {
	return Options{
		MaxLineBytes: 4096,
		WriteTimeout: 10 * time.Second,
	}
}

// Conn is a line-framed connection. ReadLine must be called from a single
// goroutine; Write, WriteLine, Flush, Send and Close may be called from any.
type Conn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	opts    Options

	mu     sync.Mutex
	writer *bufio.Writer
	closed bool
}

// New wraps conn. Zero option fields fall back to DefaultOptions.
//
// Parameters:
//   - conn: The accepted or dialed stream connection; owned by the returned Conn
//   - opts: Framing and deadline settings
//
// Returns:
//   - A new *Conn
func New(conn net.Conn, opts Options) *Conn {
	defaults := DefaultOptions()
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = defaults.MaxLineBytes
	}

	if opts.WriteTimeout < 0 {
		opts.WriteTimeout = 0
	}

	scanner := bufio.NewScanner(conn)
	initial := min(opts.MaxLineBytes, 4096)
	scanner.Buffer(make([]byte, 0, initial), opts.MaxLineBytes)

	return &Conn{
		conn:    conn,
		scanner: scanner,
		opts:    opts,
		writer:  bufio.NewWriter(conn),
	}
}

// ReadLine blocks until the next line arrives and returns it without the
// trailing "\n" or "\r\n". A final unterminated line before EOF is returned
// as a line. EOF, oversize lines and transport failures return
// ErrConnectionClosed.
//
// Returns:
//   - The line content
//   - An error wrapping ErrConnectionClosed when no more lines can be read
func (c *Conn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return c.scanner.Text(), nil
	}

	if err := c.scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}

	return "", ErrConnectionClosed
}

// Write buffers p for the next Flush.
func (c *Conn) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(p)
}

// WriteLine buffers line followed by "\n".
func (c *Conn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeLocked([]byte(line)); err != nil {
		return err
	}

	return c.writeLocked([]byte{'\n'})
}

// Flush writes out everything buffered, bounded by Options.WriteTimeout.
func (c *Conn) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// Send writes p and flushes it as one unit, so concurrent senders never
// interleave partial messages.
//
// Parameters:
//   - p: The bytes to deliver, usually a complete "\n"-terminated line
//
// Returns:
//   - An error wrapping ErrConnectionClosed if the write failed
func (c *Conn) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeLocked(p); err != nil {
		return err
	}

	return c.flushLocked()
}

// Close flushes pending output best effort and closes the underlying
// connection. Only the first call has any effect.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	_ = c.flushLocked()
	c.closed = true
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) writeLocked(p []byte) error {
	if c.closed {
		return ErrConnectionClosed
	}

	// bufio may flush to the socket mid-write when p exceeds the free space.
	if len(p) > c.writer.Available() {
		c.armDeadline()
	}

	if _, err := c.writer.Write(p); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}

	return nil
}

func (c *Conn) flushLocked() error {
	if c.closed {
		return ErrConnectionClosed
	}

	if c.writer.Buffered() == 0 {
		return nil
	}

	c.armDeadline()
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}

	return nil
}

func (c *Conn) armDeadline() {
	if c.opts.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
}
