package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"newsdist/internal/protocol"
	"newsdist/internal/session"
)

const DefaultHandshakeTimeout = 5 * time.Second

var (
	ErrServerClosed      = errors.New("tcp: server closed")
	ErrNotListening      = errors.New("tcp: server is not listening")
	errPeerUnsubscribed  = errors.New("peer unsubscribed")
	errUnexpectedPacket  = errors.New("unexpected packet before handshake")
	errHandshakeRejected = errors.New("handshake rejected")
)

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) { s.handshakeTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.sessionCfg.WriteTimeout = d }
}

func WithMaxPayload(n uint32) Option {
	return func(s *Server) { s.sessionCfg.MaxPayload = n }
}

// WithRateLimit bounds inbound News packets per client; limit 0 disables it.
func WithRateLimit(limit float64, burst int) Option {
	return func(s *Server) {
		s.sessionCfg.RateLimit = rate.Limit(limit)
		s.sessionCfg.RateBurst = burst
	}
}

// WithMetricsRegisterer registers the server metrics with reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) { s.metricsReg = reg }
}

// Server accepts subscriber connections and broadcasts news to them.
type Server struct {
	Addr string

	registry *Registry
	logger   *slog.Logger
	metrics  *Metrics

	metricsReg       prometheus.Registerer
	handshakeTimeout time.Duration
	sessionCfg       session.Config

	listeners []EventListener

	mu       sync.Mutex
	listener net.Listener
	closed   bool // set by Shutdown; no handler is tracked afterwards

	ctx    context.Context // cancelled on shutdown, closes pending sessions
	cancel context.CancelFunc

	quitChan     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a server that will listen on addr.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		Addr:             addr,
		registry:         NewRegistry(),
		logger:           slog.Default(),
		handshakeTimeout: DefaultHandshakeTimeout,
		quitChan:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessionCfg.Logger = s.logger
	s.metrics = NewMetrics(s.metricsReg)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// OnEvent adds a lifecycle listener. Call before Start.
func (s *Server) OnEvent(l EventListener) {
	s.listeners = append(s.listeners, l)
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.quitChan:
		return ErrServerClosed
	default:
	}
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.listener = ln
	return nil
}

// ListenAddr returns the bound address, or nil before Listen.
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve runs the accept loop. It returns nil after Shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	s.logger.Info("tcp_server_started", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quitChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			// transient accept failure (e.g. EMFILE); back off and retry
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, time.Second)
			}
			s.logger.Warn("accept_failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.track() {
			conn.Close()
			return nil
		}
		go func(conn net.Conn) {
			defer s.wg.Done()
			s.handleConnection(conn)
		}(conn)
	}
}

// track adds a connection handler to the wait group unless Shutdown has
// already started waiting on it.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// handleConnection runs the lifecycle of a single client connection.
func (s *Server) handleConnection(conn net.Conn) {
	sess := session.New(conn, s.sessionCfg)
	s.metrics.Connections.Inc()
	defer s.metrics.Connections.Dec()

	// shutdown closes sessions that never subscribed
	stop := context.AfterFunc(s.ctx, func() { sess.Close() })
	defer stop()

	s.logger.Info("client_connected",
		"client_id", sess.ID(),
		"remote_addr", sess.RemoteAddr(),
	)

	if s.handshakeTimeout > 0 {
		if err := sess.SetReadDeadline(time.Now().Add(s.handshakeTimeout)); err != nil {
			s.logger.Warn("handshake_deadline_failed", "client_id", sess.ID(), "error", err)
			s.dropSession(sess, ReasonReadError)
			return
		}
	}

	err := sess.ReadLoop(func(p protocol.Packet) error {
		return s.handlePacket(sess, p)
	})
	s.dropSession(sess, s.classify(sess, err))
}

func (s *Server) handlePacket(sess *session.Session, p protocol.Packet) error {
	switch sess.State() {
	case session.StateConnected:
		if p.Type != protocol.PacketSubscribe {
			return fmt.Errorf("%w: %s", errUnexpectedPacket, p.Type)
		}
		return s.subscribe(sess, p)

	case session.StateSubscribed:
		switch p.Type {
		case protocol.PacketUnsubscribe:
			return errPeerUnsubscribed
		case protocol.PacketNews:
			s.logger.Debug("ignoring_news_from_client", "client_id", sess.ID(), "name", sess.Name())
		default:
			s.logger.Warn("ignoring_repeated_subscribe", "client_id", sess.ID(), "name", sess.Name())
		}
		return nil

	default:
		return session.ErrClosed
	}
}

// subscribe runs the server side of the handshake.
func (s *Server) subscribe(sess *session.Session, p protocol.Packet) error {
	raw, err := p.SubscribeName()
	if err != nil {
		s.metrics.Handshakes.WithLabelValues("rejected").Inc()
		if rerr := sess.Reject(); rerr != nil {
			s.logger.Debug("reject_response_failed", "client_id", sess.ID(), "error", rerr)
		}
		return err
	}

	// lift the handshake timeout before the session can become registered
	if err := sess.SetReadDeadline(time.Time{}); err != nil {
		s.logger.Warn("handshake_deadline_failed", "client_id", sess.ID(), "error", err)
		return fmt.Errorf("clear handshake deadline: %w", err)
	}

	name := SanitizeName(raw)
	err = sess.Accept(name, func() error {
		return s.registry.Add(name, sess)
	})
	if err != nil {
		s.metrics.Handshakes.WithLabelValues("rejected").Inc()
		if errors.Is(err, ErrNameTaken) || errors.Is(err, ErrEmptyName) {
			s.logger.Info("subscription_rejected",
				"client_id", sess.ID(),
				"name", name,
				"reason", err.Error(),
			)
			return fmt.Errorf("%w: %w", errHandshakeRejected, err)
		}
		// registered, but the accept response could not be written
		s.registry.Remove(name, sess)
		return err
	}

	s.metrics.Handshakes.WithLabelValues("accepted").Inc()
	s.metrics.Subscribers.Inc()
	s.logger.Info("client_subscribed",
		"client_id", sess.ID(),
		"name", name,
		"remote_addr", sess.RemoteAddr(),
	)
	s.emit(Event{
		Type:       EventSubscribed,
		Name:       name,
		SessionID:  sess.ID(),
		RemoteAddr: sess.RemoteAddr(),
		At:         time.Now(),
	})
	return nil
}

// classify maps the read loop result to an unsubscribe reason.
func (s *Server) classify(sess *session.Session, err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return ReasonDisconnected
	case errors.Is(err, errPeerUnsubscribed):
		return ReasonUnsubscribe
	case errors.Is(err, errHandshakeRejected):
		return ""
	case protocol.IsProtocolError(err):
		kind := "decode"
		var fe *protocol.FramingError
		if errors.As(err, &fe) {
			kind = "framing"
		}
		s.metrics.ProtocolErrors.WithLabelValues(kind).Inc()
		s.logger.Warn("protocol_violation", "client_id", sess.ID(), "kind", kind, "error", err)
		return ReasonProtocolError
	case errors.Is(err, errUnexpectedPacket):
		s.metrics.ProtocolErrors.WithLabelValues("unexpected_packet").Inc()
		s.logger.Warn("protocol_violation", "client_id", sess.ID(), "kind", "unexpected_packet", "error", err)
		return ReasonProtocolError
	case errors.As(err, &netErr) && netErr.Timeout() && sess.State() == session.StateConnected:
		s.logger.Warn("handshake_timeout", "client_id", sess.ID())
		return ReasonReadError
	case session.IsClosedError(err):
		return ReasonDisconnected
	default:
		s.logger.Error("client_read_error", "client_id", sess.ID(), "error", err)
		return ReasonReadError
	}
}

// dropSession closes sess and, if it is still registered, removes it and emits
// the unsubscribed event. Safe to call any number of times from any goroutine;
// the removal and the event happen exactly once.
func (s *Server) dropSession(sess *session.Session, reason string) {
	sess.Close()

	name := sess.Name()
	if name == "" || !s.registry.Remove(name, sess) {
		return
	}

	s.metrics.Subscribers.Dec()
	s.logger.Info("client_unsubscribed",
		"client_id", sess.ID(),
		"name", name,
		"reason", reason,
	)
	s.emit(Event{
		Type:       EventUnsubscribed,
		Name:       name,
		SessionID:  sess.ID(),
		RemoteAddr: sess.RemoteAddr(),
		Reason:     reason,
		At:         time.Now(),
	})
}

func (s *Server) emit(e Event) {
	for _, l := range s.listeners {
		l(e)
	}
}

// RemoveClient force-disconnects the subscriber registered as name.
// It reports whether such a subscriber existed.
func (s *Server) RemoveClient(name string) bool {
	sess, ok := s.registry.Get(name)
	if !ok {
		return false
	}
	if err := sess.Send(protocol.NewUnsubscribe()); err != nil {
		s.logger.Debug("unsubscribe_notice_failed", "client_id", sess.ID(), "error", err)
	}
	s.dropSession(sess, ReasonRemoved)
	return true
}

// Subscribers returns the registered names, sorted.
func (s *Server) Subscribers() []string {
	return s.registry.Names()
}

func (s *Server) SubscriberCount() int {
	return s.registry.Count()
}

// Shutdown notifies every subscriber with an Unsubscribe packet, closes the
// listener and every remaining connection, then waits for connection handlers
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.quitChan)

		sessions := s.registry.Snapshot()
		var wg sync.WaitGroup
		for _, sess := range sessions {
			wg.Add(1)
			go func(sess *session.Session) {
				defer wg.Done()
				// the peer may already be mid-disconnect
				if err := sess.Send(protocol.NewUnsubscribe()); err != nil {
					s.logger.Debug("unsubscribe_notice_failed", "client_id", sess.ID(), "error", err)
				}
				s.dropSession(sess, ReasonServerShutdown)
			}(sess)
		}
		wg.Wait()

		s.mu.Lock()
		s.closed = true
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()

		s.cancel()
		s.logger.Info("tcp_server_stopping", "notified", len(sessions))
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("tcp_server_stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown interrupted: %w", ctx.Err())
	}
}
