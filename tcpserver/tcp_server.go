// Package tcpserver accepts TCP connections, keeps the registry of live
// sessions and fans messages out to them.
package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/chat-relay/idgenerator"
	"github.com/cyberinferno/chat-relay/logger"
	"github.com/cyberinferno/chat-relay/perfmonitor"
	"github.com/cyberinferno/chat-relay/safemap"
)

// ErrSessionClosed is returned by TCPServerSession.Send once a session has
// started terminating. Broadcast treats it as an expected skip.
var ErrSessionClosed = errors.New("session closed")

// NewSessionFunc creates a TCPServerSession for an accepted connection. It
// receives the assigned session ID and the connection, which the session owns
// from then on.
type NewSessionFunc func(id uint32, conn net.Conn) TCPServerSession

// SessionHook is called at a session lifecycle transition.
type SessionHook func(session TCPServerSession)

// TCPServer accepts connections and delegates each one to a session created
// by NewSession. Sessions are registered by ID for the whole time their
// Handle goroutine runs.
//
// Per session the server guarantees, in order: AddSession, OnSessionStart,
// Handle, then exactly once OnSessionEnd, RemoveSession, Close.
type TCPServer struct {
	Logger      logger.Logger
	Name        string
	Addr        string
	Listener    net.Listener
	Sessions    *safemap.SafeMap[uint32, TCPServerSession]
	Running     atomic.Bool
	NewSession  NewSessionFunc
	IdGenerator *idgenerator.IdGenerator

	// OnSessionStart runs in the accept goroutine right after registration.
	OnSessionStart SessionHook
	// OnSessionEnd runs in the session goroutine after Handle returns, while
	// the session is still registered.
	OnSessionEnd SessionHook

	// lifecycle orders registration against Stop so no session is added
	// after Stop has taken its snapshot. It also guards drainOnce and
	// drained, so wg.Add never runs while wg.Wait is pending.
	lifecycle sync.Mutex
	wg        sync.WaitGroup
	drainOnce sync.Once
	drained   chan struct{}
}

// NewTCPServer returns a server with an empty registry and an id generator
// starting at 1.
//
// Parameters:
//   - name: Name used in log messages
//   - addr: The "host:port" to listen on
//   - log: Logger for lifecycle events
//   - newSession: Factory for per-connection sessions
//
// Returns:
//   - A new *TCPServer; call Start, or Listen followed by AcceptLoop
func NewTCPServer(name, addr string, log logger.Logger, newSession NewSessionFunc) *TCPServer {
	return &TCPServer{
		Logger:      log,
		Name:        name,
		Addr:        addr,
		Sessions:    safemap.NewSafeMap[uint32, TCPServerSession](),
		NewSession:  newSession,
		IdGenerator: idgenerator.NewIdGenerator(0),
	}
}

// Listen binds to Addr and marks the server running. It does not accept.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *TCPServer) Listen() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.Running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	if s.drained != nil {
		select {
		case <-s.drained:
			s.drainOnce = sync.Once{}
			s.drained = nil
		default:
			return fmt.Errorf("server %s still closing sessions", s.Name)
		}
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.Listener = ln
	s.Running.Store(true)
	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})

	return nil
}

// Start binds to Addr and runs AcceptLoop in a goroutine.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *TCPServer) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	go func() {
		_ = s.AcceptLoop()
	}()

	return nil
}

// ListenAddr returns the bound address, or nil before Listen.
func (s *TCPServer) ListenAddr() net.Addr {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.Listener == nil {
		return nil
	}

	return s.Listener.Addr()
}

// Stop stops accepting and closes every registered session. It does not wait
// for session goroutines; use Wait for that. Safe to call when the server is
// not running.
func (s *TCPServer) Stop() {
	s.lifecycle.Lock()
	if !s.Running.Load() {
		s.lifecycle.Unlock()
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	s.Running.Store(false)
	if s.Listener != nil {
		_ = s.Listener.Close()
	}
	s.lifecycle.Unlock()

	for _, session := range s.Sessions.Values() {
		if err := session.Close(); err != nil {
			s.Logger.Debug("session close failed", logger.Field{Key: "session_id", Value: session.ID()}, logger.Field{Key: "error", Value: err})
		}
	}

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// Wait blocks until every session goroutine has finished its cleanup or the
// timeout elapses. It only waits after Stop; while the server is running it
// returns false at once. Repeated calls share one drain goroutine.
//
// Parameters:
//   - timeout: Maximum time to wait
//
// Returns:
//   - true if all sessions finished, false on timeout or while running
func (s *TCPServer) Wait(timeout time.Duration) bool {
	s.lifecycle.Lock()
	if s.Running.Load() {
		s.lifecycle.Unlock()
		return false
	}

	s.drainOnce.Do(func() {
		s.drained = make(chan struct{})
		go func(done chan struct{}) {
			s.wg.Wait()
			close(done)
		}(s.drained)
	})
	drained := s.drained
	s.lifecycle.Unlock()

	select {
	case <-drained:
		return true
	case <-time.After(timeout):
		return false
	}
}

// AddSession stores a session under the given id.
func (s *TCPServer) AddSession(id uint32, session TCPServerSession) {
	s.Sessions.Store(id, session)
}

// RemoveSession removes the session with the given id.
func (s *TCPServer) RemoveSession(id uint32) {
	s.Sessions.Delete(id)
}

// GetSession returns the session for the given id, if present.
func (s *TCPServer) GetSession(id uint32) (TCPServerSession, bool) {
	return s.Sessions.Load(id)
}

// SessionCount returns the number of registered sessions.
func (s *TCPServer) SessionCount() int {
	return s.Sessions.Len()
}

// Broadcast sends data to every registered session whose id is not in
// exclude. It works on a snapshot of the registry, so registration is never
// blocked by a slow recipient. A failed send is logged and skipped.
//
// Parameters:
//   - data: The bytes to deliver
//   - exclude: Session ids that must not receive data
//
// Returns:
//   - The number of sessions the data was delivered to
func (s *TCPServer) Broadcast(data []byte, exclude ...uint32) int {
	delivered := 0
	for _, session := range s.Sessions.Values() {
		if slices.Contains(exclude, session.ID()) {
			continue
		}

		if err := session.Send(data); err != nil {
			fields := []logger.Field{
				{Key: "session_id", Value: session.ID()},
				{Key: "error", Value: err},
			}
			if errors.Is(err, ErrSessionClosed) {
				s.Logger.Debug("broadcast skipped closing session", fields...)
			} else {
				s.Logger.Warn("broadcast delivery failed", fields...)
			}

			continue
		}

		delivered++
	}

	return delivered
}

// AcceptLoop accepts connections until Stop is called. For each connection
// it assigns an ID, creates a session with NewSession, registers it and runs
// it in a new goroutine.
//
// Returns:
//   - nil after Stop, or the accept error that ended the loop
func (s *TCPServer) AcceptLoop() error {
	for s.Running.Load() {
		conn, err := s.Listener.Accept()
		if err != nil {
			if !s.Running.Load() {
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.Logger.Warn(fmt.Sprintf("%s server accept timeout", s.Name), logger.Field{Key: "error", Value: err})
				continue
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Field{Key: "error", Value: err})
			return fmt.Errorf("server %s accept failed: %w", s.Name, err)
		}

		s.admit(conn)
	}

	return nil
}

func (s *TCPServer) admit(conn net.Conn) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.Running.Load() {
		_ = conn.Close()
		return
	}

	monitor := perfmonitor.NewPerformanceMonitor()
	monitor.Start()

	id := s.IdGenerator.Id()
	session := s.NewSession(id, conn)
	s.wg.Add(1)
	s.AddSession(id, session)
	if s.OnSessionStart != nil {
		s.OnSessionStart(session)
	}

	s.Logger.Info("new connection",
		logger.Field{Key: "session_id", Value: id},
		logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()},
	)

	go s.run(session, monitor)
}

func (s *TCPServer) run(session TCPServerSession, monitor *perfmonitor.PerformanceMonitor) {
	defer s.wg.Done()
	defer s.finish(session, monitor)
	session.Handle()
}

func (s *TCPServer) finish(session TCPServerSession, monitor *perfmonitor.PerformanceMonitor) {
	if s.OnSessionEnd != nil {
		s.OnSessionEnd(session)
	}

	s.RemoveSession(session.ID())
	if err := session.Close(); err != nil {
		s.Logger.Debug("session close failed", logger.Field{Key: "session_id", Value: session.ID()}, logger.Field{Key: "error", Value: err})
	}

	monitor.Stop()
	s.Logger.Info("end connection",
		logger.Field{Key: "session_id", Value: session.ID()},
		logger.Field{Key: "duration_ms", Value: monitor.ElapsedMilliseconds()},
	)
}
