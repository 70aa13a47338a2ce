// Package relay implements the chat relay core: the connection registry,
// the per-connection command router, and the synchronous file relay that
// streams a file from sender to recipient without ever holding more than
// one chunk in memory.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/chat-it/internal/transport"
)

type Server struct {
	config    Config
	logger    *slog.Logger
	events    EventSink
	registry  *Registry
	transport *transport.Transport

	wg sync.WaitGroup

	sessMu   sync.Mutex
	sessions map[*Session]struct{}
}

func NewServer(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()

	tr, err := transport.NewTransport(cfg.Addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		config:    cfg,
		logger:    cfg.Logger,
		events:    cfg.Events,
		registry:  NewRegistry(),
		transport: tr,
		sessions:  make(map[*Session]struct{}),
	}, nil
}

func (s *Server) Addr() string {
	return s.transport.LocalAddr().String()
}

func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Relay server started", "addr", s.Addr())
	s.recordEvent("server", "Server started on "+s.Addr())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			peer, err := s.transport.Accept(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				s.logger.Error("Failed to accept connection", "error", err)
				continue
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handlePeer(ctx, peer)
			}()
		}
	}
}

// Shutdown stops accepting, closes idle sessions, and gives in-flight
// transfers until ShutdownTimeout to reach a terminal state before
// force-closing what remains.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down relay server")
	s.recordEvent("server", "Server stopped")
	_ = s.transport.Close()

	for _, sess := range s.sessionSnapshot() {
		if !sess.isBusy() {
			_ = sess.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(s.config.ShutdownTimeout):
	}

	for _, sess := range s.sessionSnapshot() {
		_ = sess.Close()
	}

	select {
	case <-done:
		return nil
	case <-time.After(2 * time.Second):
		s.logger.Warn("Shutdown timeout reached, some handlers may still be running")
		return context.DeadlineExceeded
	}
}

func (s *Server) handlePeer(ctx context.Context, peer *transport.Peer) {
	remoteAddr := peer.RemoteAddr()
	s.logger.Info("Client connected", "addr", remoteAddr)
	s.recordEvent("connect", "New connection from "+remoteAddr)

	sess := newSession(peer)
	s.trackSession(sess)
	defer func() {
		s.untrackSession(sess)
		_ = peer.Close()
		s.logger.Info("Client disconnected", "addr", remoteAddr)
	}()

	if !s.authenticate(sess) {
		return
	}
	s.serveSession(ctx, sess)
}

func (s *Server) trackSession(sess *Session) {
	s.sessMu.Lock()
	s.sessions[sess] = struct{}{}
	s.sessMu.Unlock()
}

func (s *Server) untrackSession(sess *Session) {
	s.sessMu.Lock()
	delete(s.sessions, sess)
	s.sessMu.Unlock()
}

func (s *Server) sessionSnapshot() []*Session {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

func (s *Server) recordEvent(kind, detail string) {
	if err := s.events.Record(time.Now(), kind, detail); err != nil {
		s.logger.Debug("Failed to record event", "kind", kind, "error", err)
	}
}
