package chat

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/chat-relay/idgenerator"
	"github.com/cyberinferno/chat-relay/lineconn"
	"github.com/cyberinferno/chat-relay/logger"
	"github.com/cyberinferno/chat-relay/nickstore"
	"github.com/cyberinferno/chat-relay/tcpserver"
)

// State is a session's position in its lifecycle.
type State int32

const (
	Accepted    State = iota // Created for an accepted connection
	Registered               // Present in the registry, loop not yet started
	Running                  // Receive loop active
	Terminating              // Loop ended, cleanup in progress
	Closed                   // Quit marker sent, connection closed
)

// String returns a human-readable name for the state.
func (st State) String() string {
	switch st {
	case Accepted:
		return "Accepted"
	case Registered:
		return "Registered"
	case Running:
		return "Running"
	case Terminating:
		return "Terminating"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Broadcaster delivers data to every registered session except the excluded
// ids. *tcpserver.TCPServer implements it.
type Broadcaster interface {
	Broadcast(data []byte, exclude ...uint32) int
}

// SessionOptions carries a session's collaborators.
type SessionOptions struct {
	Broadcaster Broadcaster
	Interpreter *Interpreter
	// Nicknames defaults to nickstore.NewNopStore.
	Nicknames nickstore.Store
	// Logger defaults to logger.NewNopLogger.
	Logger logger.Logger
	// StoreTimeout bounds each nickname store call; defaults to 2s.
	StoreTimeout time.Duration
	// Claim adopts a recalled nickname for session and reports whether it
	// did. Defaults to adopting it unconditionally.
	Claim func(session *Session, nickname string) bool
}

// Session is the server side of one connected client. It owns the
// connection: only the session reads from it and only Close closes it.
type Session struct {
	id          uint32
	conn        *lineconn.Conn
	host        string
	broadcaster Broadcaster
	interpreter *Interpreter
	nicks       nickstore.Store
	storeTO     time.Duration
	claim       func(session *Session, nickname string) bool
	log         logger.Logger
	guest       string

	mu       sync.RWMutex
	nickname string

	state      atomic.Int32
	departOnce sync.Once
	closeOnce  sync.Once
	closeErr   error
}

// NewSession creates a session in the Accepted state with the nickname
// "guest-<id>".
//
// Parameters:
//   - id: The registry id assigned by the server
//   - conn: The client's line connection; owned by the session from now on
//   - opts: Collaborators; Broadcaster and Interpreter are required
//
// Returns:
//   - A new *Session
func NewSession(id uint32, conn *lineconn.Conn, opts SessionOptions) *Session {
	if opts.Nicknames == nil {
		opts.Nicknames = nickstore.NewNopStore()
	}

	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}

	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 2 * time.Second
	}

	if opts.Claim == nil {
		opts.Claim = func(session *Session, nickname string) bool {
			session.SetNickname(nickname)
			return true
		}
	}

	remote := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}

	guest := idgenerator.Label(GuestPrefix, id)
	return &Session{
		id:          id,
		conn:        conn,
		host:        host,
		broadcaster: opts.Broadcaster,
		interpreter: opts.Interpreter,
		nicks:       opts.Nicknames,
		storeTO:     opts.StoreTimeout,
		claim:       opts.Claim,
		log: opts.Logger.With(
			logger.Field{Key: "session_id", Value: id},
			logger.Field{Key: "remote_addr", Value: remote},
		),
		guest:    guest,
		nickname: guest,
	}
}

// ID implements tcpserver.TCPServerSession.
func (s *Session) ID() uint32 {
	return s.id
}

// Nickname returns the current nickname.
func (s *Session) Nickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname
}

// SetNickname implements Target. Empty names are ignored.
func (s *Session) SetNickname(name string) {
	if name == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nickname = name
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// MarkRegistered moves an Accepted session to Registered.
func (s *Session) MarkRegistered() {
	s.state.CompareAndSwap(int32(Accepted), int32(Registered))
}

// Handle implements tcpserver.TCPServerSession. It runs the receive loop
// until EOF, a quit line or a transport failure, and leaves the session in
// the Terminating state.
func (s *Session) Handle() {
	if !s.state.CompareAndSwap(int32(Registered), int32(Running)) &&
		!s.state.CompareAndSwap(int32(Accepted), int32(Running)) {
		return
	}
	defer s.state.CompareAndSwap(int32(Running), int32(Terminating))

	s.recallNickname()

	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			s.log.Info("client disconnected", logger.Field{Key: "reason", Value: err.Error()})
			return
		}

		nickname := s.Nickname()
		s.log.Info("line received", logger.Field{Key: "nickname", Value: nickname}, logger.Field{Key: "line", Value: line})

		switch {
		case IsQuit(line):
			s.log.Info("client quit", logger.Field{Key: "nickname", Value: nickname})
			return
		case strings.HasPrefix(line, CommandPrefix):
			s.execute(line)
		default:
			s.broadcaster.Broadcast(frame(ChatLine(nickname, line)), s.id)
		}

		if err := s.conn.Flush(); err != nil {
			s.log.Info("client disconnected", logger.Field{Key: "reason", Value: err.Error()})
			return
		}
	}
}

// Send implements tcpserver.TCPServerSession. Once the receive loop has
// ended it returns tcpserver.ErrSessionClosed without writing.
func (s *Session) Send(data []byte) error {
	if s.State() >= Terminating {
		return tcpserver.ErrSessionClosed
	}

	return s.conn.Send(data)
}

// Close implements tcpserver.TCPServerSession. The first call writes the
// quit marker and closes the connection; later calls return the same result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closed))
		_ = s.conn.WriteLine(QuitToken)
		s.closeErr = s.conn.Close()
		if errors.Is(s.closeErr, net.ErrClosed) {
			s.closeErr = nil
		}
	})

	return s.closeErr
}

// depart broadcasts the departure notice to everyone else and remembers the
// final nickname unless it is still the guest name. Only the first call has
// any effect.
func (s *Session) depart() {
	s.departOnce.Do(func() {
		nickname := s.Nickname()
		s.broadcaster.Broadcast(frame(DepartureLine(nickname)), s.id)
		if nickname != s.guest {
			s.rememberNickname(nickname)
		}
		s.log.Info("client left", logger.Field{Key: "nickname", Value: nickname})
	})
}

func (s *Session) execute(line string) {
	cmd, err := s.interpreter.Interpret(line)
	if err != nil {
		_ = s.conn.WriteLine(InvalidCommandLine)
		return
	}

	before := s.Nickname()
	_ = s.conn.WriteLine(cmd.Apply(s))
	if after := s.Nickname(); after != before {
		s.rememberNickname(after)
	}
}

func (s *Session) recallNickname() {
	ctx, cancel := context.WithTimeout(context.Background(), s.storeTO)
	defer cancel()

	nickname, err := s.nicks.Recall(ctx, s.host, func() string { return s.guest })
	if err != nil {
		s.log.Warn("nickname recall failed", logger.Field{Key: "error", Value: err})
	}

	if nickname == "" || nickname == s.guest {
		return
	}

	if !s.claim(s, nickname) {
		s.log.Debug("recalled nickname in use", logger.Field{Key: "nickname", Value: nickname})
	}
}

func (s *Session) rememberNickname(nickname string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.storeTO)
	defer cancel()

	if err := s.nicks.Remember(ctx, s.host, nickname); err != nil {
		s.log.Warn("nickname remember failed", logger.Field{Key: "error", Value: err})
	}
}
