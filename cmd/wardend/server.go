package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"

	"github.com/nixpig/wardensh/internal/auth"
	"github.com/nixpig/wardensh/internal/protocol"
	"go.uber.org/zap"
)

// handler executes a single request. *warden.Registry implements it.
type handler interface {
	Handle(ctx context.Context, tokens []string) (any, error)
}

type server struct {
	handler handler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
	mu       sync.Mutex
}

func newServer(handler handler, logger *zap.Logger) *server {
	ctx, cancel := context.WithCancel(context.Background())

	return &server{
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
}

// serve accepts connections until shutdown is called. Each connection is
// served on its own goroutine, one request at a time.
func (s *server) serve(listener net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()

			if closing {
				s.wg.Wait()
				return nil
			}

			return err
		}

		if !s.track(conn) {
			conn.Close()
			continue
		}

		s.wg.Go(func() {
			defer s.untrack(conn)
			s.handleConn(conn)
		})
	}
}

// shutdown stops accepting connections, cancels blocked requests and closes
// open connections.
func (s *server) shutdown() {
	s.mu.Lock()
	s.closing = true
	listener := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.cancel()

	if listener != nil {
		listener.Close()
	}
}

func (s *server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}

	s.conns[conn] = struct{}{}

	return true
}

func (s *server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	conn.Close()
}

func (s *server) handleConn(conn net.Conn) {
	logger := s.logger.With(zap.String("remote", remoteAddr(conn)))

	var state *tls.ConnectionState

	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.HandshakeContext(s.ctx); err != nil {
			logger.Warn("tls handshake", zap.Error(err))
			return
		}

		cs := tlsConn.ConnectionState()
		state = &cs
	}

	logger.Debug("connection opened")
	defer logger.Debug("connection closed")

	r := bufio.NewReader(conn)

	for {
		tokens, err := protocol.ReadRequest(r)
		if err != nil {
			if !errors.Is(err, protocol.ErrMalformedRequest) &&
				!errors.Is(err, protocol.ErrEmptyRequest) {
				return
			}

			if err := protocol.WriteReply(conn, protocol.ErrorReply(err.Error())); err != nil {
				return
			}

			continue
		}

		reply := s.handle(logger, state, tokens)

		if err := protocol.WriteReply(conn, reply); err != nil {
			logger.Warn("write reply", zap.Error(err))
			return
		}
	}
}

func (s *server) handle(
	logger *zap.Logger,
	state *tls.ConnectionState,
	tokens []string,
) protocol.Reply {
	verb := tokens[0]

	logger.Debug("request", zap.String("verb", verb), zap.Strings("args", tokens[1:]))

	// Unknown verbs fall through so the handler reports them.
	if _, known := auth.VerbPermissions[verb]; known && state != nil {
		if err := auth.Authorise(state, verb); err != nil {
			logger.Warn("unauthorised", zap.String("verb", verb), zap.Error(err))
			return protocol.ErrorReply(auth.ErrPermissionDenied.Error())
		}
	}

	result, err := s.handler.Handle(s.ctx, tokens)
	if err != nil {
		logger.Debug("request failed", zap.String("verb", verb), zap.Error(err))
		return protocol.ErrorReply(err.Error())
	}

	return protocol.ObjectReply(result)
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}

	return "local"
}
