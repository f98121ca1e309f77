package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/net/netutil"

	"github.com/relaychat/relaychat/config"
	"github.com/relaychat/relaychat/state"
)

// Server listens on one TCP address and spawns one Session per accepted
// connection, using an accept-loop/graceful-shutdown split:
// a listener goroutine tracks live connections in a set so Shutdown can close
// each of them, WaitGroups let Shutdown wait for the accept loop and every
// session goroutine, and a shared context handed to every session is
// canceled on Shutdown.
type Server struct {
	cfg    config.Config
	reg    *Registry
	router Router
	logger *slog.Logger

	listener net.Listener

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	connWg   sync.WaitGroup
	listenWg sync.WaitGroup

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	shutdownOnce   sync.Once
	closed         chan struct{}
}

// NewServer builds a Server bound to cfg's listen address. If cfg.MaxUsers
// is positive, the listener is wrapped in netutil.LimitListener allowing
// cfg.MaxUsers+1 open connections, so the in-flight connection count itself
// is bounded in addition to the registry's own admission check in
// handleHandshake -- defense in depth against raw socket exhaustion, while
// the extra slot lets an over-cap client still receive SERVER_FULL.
func NewServer(cfg config.Config, reg *Registry, router Router, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:            cfg,
		reg:            reg,
		router:         router,
		logger:         logger,
		conns:          make(map[net.Conn]struct{}),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
		closed:         make(chan struct{}),
	}
}

// ListenAndServe binds the configured address and accepts connections until
// Shutdown is called. It blocks until shutdown completes.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.shutdownCancel()
		return fmt.Errorf("chat: failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	if s.cfg.MaxUsers > 0 {
		// one slot above the registry cap, so a connection arriving while the
		// registry is full is still accepted and answered with SERVER_FULL.
		ln = netutil.LimitListener(ln, s.cfg.MaxUsers+1)
	}
	s.listener = ln

	s.logger.Info("listening", "address", s.cfg.ListenAddress, "max_users", s.cfg.MaxUsers)

	s.listenWg.Add(1)
	go s.acceptLoop(ln)

	<-s.closed
	return nil
}

// Shutdown stops accepting new connections, closes every tracked connection
// so their sessions unblock from their read, and waits (up to ctx's
// deadline) for all session goroutines to finish. Safe to call more than
// once -- only the first call does any work -- since both the admin
// console's "quit" command and the top-level signal handler may invoke it.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownCancel()
		if s.listener != nil {
			_ = s.listener.Close()
		}

		s.connMu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.connMu.Unlock()

		done := make(chan struct{})
		go func() {
			s.connWg.Wait()
			s.listenWg.Wait()
			close(done)
		}()

		select {
		case <-done:
			s.logger.Info("shutdown complete")
		case <-ctx.Done():
			s.logger.Warn("shutdown deadline exceeded, connections may not have closed cleanly")
		}

		close(s.closed)
	})
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.listenWg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept error", "err", err)
			continue
		}

		s.connMu.Lock()
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		s.connWg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
		s.connWg.Done()
	}()

	sess := state.NewSession(conn)
	Run(s.shutdownCtx, sess, s.router, s.reg, s.logger)
}
