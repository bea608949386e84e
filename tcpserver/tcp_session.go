package tcpserver

// TCPServerSession is the interface implemented by each connection session.
// The server creates a session per accepted connection, registers it, and runs
// Handle in its own goroutine. When Handle returns the server unregisters the
// session and calls Close.
type TCPServerSession interface {
	// ID returns the session's unique identifier assigned by the server.
	ID() uint32

	// Handle runs the session's receive loop until the peer leaves, the
	// connection fails or the session decides to exit.
	Handle()

	// Close releases the connection. It must be safe to call more than once
	// and from a goroutine other than the one running Handle; a concurrent
	// Close must make a blocked Handle return.
	//
	// Returns:
	//   - An error if closing failed
	Close() error

	// Send writes data to the connection. It must be safe for concurrent use.
	//
	// Parameters:
	//   - data: The bytes to send
	//
	// Returns:
	//   - An error if the write failed or the session no longer accepts data
	Send(data []byte) error
}
