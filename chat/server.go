package chat

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/chat-relay/config"
	"github.com/cyberinferno/chat-relay/lineconn"
	"github.com/cyberinferno/chat-relay/logger"
	"github.com/cyberinferno/chat-relay/nickstore"
	"github.com/cyberinferno/chat-relay/tcpserver"
)

// Server is the chat relay. It accepts clients through a tcpserver.TCPServer,
// which also serves as the session registry and broadcaster.
type Server struct {
	cfg         *config.Config
	log         logger.Logger
	nicks       nickstore.Store
	interpreter *Interpreter
	tcp         *tcpserver.TCPServer

	// claimMu serializes adoption of recalled nicknames.
	claimMu sync.Mutex
}

// NewServer wires a relay from cfg. The config is used as given; callers
// validate it first. nicks may be nil to disable nickname memory.
//
// Parameters:
//   - cfg: Listen address, framing limits and shutdown grace
//   - log: Root logger
//   - nicks: Nickname memory, or nil
//
// Returns:
//   - A new *Server; call Run
func NewServer(cfg *config.Config, log logger.Logger, nicks nickstore.Store) *Server {
	if nicks == nil {
		nicks = nickstore.NewNopStore()
	}

	s := &Server{
		cfg:         cfg,
		log:         log,
		nicks:       nicks,
		interpreter: NewInterpreter(),
	}

	s.tcp = tcpserver.NewTCPServer(cfg.Server.Name, cfg.Addr(), log, s.newSession)
	s.tcp.OnSessionStart = s.sessionStarted
	s.tcp.OnSessionEnd = s.sessionEnded
	return s
}

// Interpreter exposes the command table so extra commands can be registered
// before Run.
func (s *Server) Interpreter() *Interpreter {
	return s.interpreter
}

// Listen binds the listening socket. Run calls it when needed; calling it
// first lets the caller learn the bound address.
func (s *Server) Listen() error {
	return s.tcp.Listen()
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	return s.tcp.ListenAddr()
}

// SessionCount returns the number of registered sessions.
func (s *Server) SessionCount() int {
	return s.tcp.SessionCount()
}

// Run serves until ctx is cancelled or accepting fails, then shuts down and
// waits up to connection.shutdown_grace for sessions to finish cleaning up.
//
// Returns:
//   - The bind error, the fatal accept error, or nil after a requested stop
func (s *Server) Run(ctx context.Context) error {
	if !s.tcp.Running.Load() {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.tcp.AcceptLoop()
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Shutdown()
		return nil
	})

	err := g.Wait()
	if !s.tcp.Wait(s.cfg.Connection.ShutdownGrace) {
		s.log.Warn("sessions still closing after shutdown grace",
			logger.Field{Key: "sessions", Value: s.tcp.SessionCount()},
		)
	}

	return err
}

// Shutdown stops accepting and sends the quit marker to every registered
// session before closing it. It does not wait for session cleanup.
func (s *Server) Shutdown() {
	if !s.tcp.Running.Load() {
		return
	}

	s.log.Info("shutting down server", logger.Field{Key: "sessions", Value: s.tcp.SessionCount()})
	s.tcp.Stop()
}

func (s *Server) newSession(id uint32, conn net.Conn) tcpserver.TCPServerSession {
	lc := lineconn.New(conn, lineconn.Options{
		MaxLineBytes: s.cfg.Connection.MaxLineBytes,
		WriteTimeout: s.cfg.Connection.WriteTimeout,
	})

	return NewSession(id, lc, SessionOptions{
		Broadcaster: s.tcp,
		Interpreter: s.interpreter,
		Nicknames:   s.nicks,
		Logger:      s.log,
		Claim:       s.claimNickname,
	})
}

// claimNickname gives nickname to session unless another registered session
// already uses it.
func (s *Server) claimNickname(session *Session, nickname string) bool {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	for _, ts := range s.tcp.Sessions.Values() {
		other, ok := ts.(*Session)
		if ok && other.ID() != session.ID() && other.Nickname() == nickname {
			return false
		}
	}

	session.SetNickname(nickname)
	return true
}

func (s *Server) sessionStarted(ts tcpserver.TCPServerSession) {
	if session, ok := ts.(*Session); ok {
		session.MarkRegistered()
	}
}

func (s *Server) sessionEnded(ts tcpserver.TCPServerSession) {
	if session, ok := ts.(*Session); ok {
		session.depart()
	}
}
