// Package chatclient provides an event-driven line client for the chat relay.
// Callers register handlers for received lines, connection state changes and
// errors, then Connect and SendLine.
package chatclient

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/chat-relay/lineconn"
)

// QuitLine is the line the relay sends right before it closes a connection.
const QuitLine = "quit"

var (
	// ErrClientClosed is returned by Connect and SendLine after Close.
	ErrClientClosed = errors.New("client is closed")
	// ErrNotConnected is returned by SendLine before Connect succeeds.
	ErrNotConnected = errors.New("not connected")
)

// ConnectionState represents the current state of the connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected
	Connecting                          // Dial in progress
	Connected                           // Connected and reading
	Closed                              // Closed for good
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is passed to the OnConnectionState handler.
type ConnectionStateEvent struct {
	State     ConnectionState // The new connection state
	Address   string          // The relay address
	Timestamp time.Time       // When the change happened
	Error     error           // Non-nil if the change was caused by an error
}

// LineEvent is passed to the OnLine handler for every line from the relay.
type LineEvent struct {
	Line      string    // The line without its terminator
	Timestamp time.Time // When the line was read
}

// ErrorEvent is passed to the OnError handler.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

// ConnectionStateHandler is called when the connection state changes.
type ConnectionStateHandler func(event ConnectionStateEvent)

// LineHandler is called for each received line on the read goroutine, in
// arrival order. A slow handler delays the next line.
type LineHandler func(event LineEvent)

// ErrorHandler is called when reading, writing or dialing fails.
type ErrorHandler func(event ErrorEvent)

// Config holds client settings.
type Config struct {
	// Address is the relay "host:port".
	Address string
	// ConnectionTimeout bounds the dial.
	ConnectionTimeout time.Duration
	// WriteTimeout bounds each SendLine; 0 means no timeout.
	WriteTimeout time.Duration
	// MaxLineBytes is the longest line accepted from the relay.
	MaxLineBytes int
}

// DefaultConfig returns a Config for address with a 10s dial timeout, a 10s
// write timeout and 4 KiB lines.
//
// Parameters:
//   - address: The relay "host:port"
//
// Returns:
//   - A Config ready to pass to NewClient
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ConnectionTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxLineBytes:      4096,
	}
}

// Client is a relay connection driven by events. It is safe for concurrent
// use.
type Client struct {
	config Config

	mu     sync.RWMutex
	conn   *lineconn.Conn
	state  ConnectionState
	closed bool

	onConnectionState ConnectionStateHandler
	onLine            LineHandler
	onError           ErrorHandler

	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient creates a client in the Disconnected state.
//
// Parameters:
//   - config: Connection settings (e.g. from DefaultConfig)
//
// Returns:
//   - A new *Client; call Close when done
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		state:  Disconnected,
		done:   make(chan struct{}),
	}
}

// OnConnectionState registers the state change handler, replacing any
// previous one.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnLine registers the line handler, replacing any previous one.
func (c *Client) OnLine(handler LineHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLine = handler
}

// OnError registers the error handler, replacing any previous one.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the relay and starts the read goroutine. A client connects
// at most once.
//
// Returns:
//   - nil on success; ErrClientClosed, an "already connected" error or the
//     dial error otherwise
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}

	if c.state != Disconnected || c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.mu.Unlock()

	c.setState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	raw, err := dialer.Dial("tcp", c.config.Address)
	if err != nil {
		c.setState(Disconnected, err)
		c.emitError(err)
		return err
	}

	conn := lineconn.New(raw, lineconn.Options{
		MaxLineBytes: c.config.MaxLineBytes,
		WriteTimeout: c.config.WriteTimeout,
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)

	return nil
}

// SendLine writes line followed by "\n" and flushes it.
//
// Parameters:
//   - line: The text to send, without a terminator
//
// Returns:
//   - nil on success; ErrClientClosed, ErrNotConnected or the write error
func (c *Client) SendLine(line string) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClientClosed
	}

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	if err := conn.Send([]byte(line + "\n")); err != nil {
		c.emitError(err)
		return err
	}

	return nil
}

// Done is closed when the read goroutine ends: after the relay sent the quit
// line, the connection dropped or Close was called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// GetState returns the current connection state.
func (c *Client) GetState() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is in the Connected state.
func (c *Client) IsConnected() bool {
	return c.GetState() == Connected
}

// Close closes the connection and waits for the read goroutine. Idempotent.
//
// Returns:
//   - nil
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	} else {
		close(c.done)
	}

	c.wg.Wait()
	c.setState(Closed, nil)

	return nil
}

func (c *Client) readLoop(conn *lineconn.Conn) {
	defer c.wg.Done()
	defer close(c.done)

	for {
		line, err := conn.ReadLine()
		if err != nil {
			if !c.isClosed() {
				c.emitError(err)
				c.setState(Disconnected, err)
			}
			return
		}

		c.emitLine(line)
		if line == QuitLine {
			_ = conn.Close()
			if !c.isClosed() {
				c.setState(Disconnected, nil)
			}
			return
		}
	}
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	handler := c.onConnectionState
	c.mu.Unlock()

	if handler != nil {
		handler(ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (c *Client) emitLine(line string) {
	c.mu.RLock()
	handler := c.onLine
	c.mu.RUnlock()

	if handler != nil {
		handler(LineEvent{Line: line, Timestamp: time.Now()})
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
