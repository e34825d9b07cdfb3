// Package session holds the per-connection state shared by the news server and
// the news client: the socket, the framing state machine and the subscription status.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"newsdist/internal/protocol"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnected State = iota
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	DefaultWriteTimeout   = 5 * time.Second
	DefaultReadBufferSize = 4096
)

var ErrClosed = errors.New("session closed")

// Config tunes a session. Zero values select the defaults.
type Config struct {
	WriteTimeout   time.Duration
	ReadBufferSize int
	MaxPayload     uint32
	RateLimit      rate.Limit // inbound packets per second, 0 disables
	RateBurst      int
	Logger         *slog.Logger
}

// Session owns one TCP connection exclusively.
type Session struct {
	id     string
	conn   net.Conn
	framer *protocol.Framer
	cfg    Config
	logger *slog.Logger

	limiter *rate.Limiter

	state atomic.Int32
	name  atomic.Pointer[string]

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps conn in a session in StateConnected.
func New(conn net.Conn, cfg Config) *Session {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{
		id:     uuid.NewString(),
		conn:   conn,
		framer: protocol.NewFramer(cfg.MaxPayload),
		cfg:    cfg,
		done:   make(chan struct{}),
	}
	s.logger = cfg.Logger.With("client_id", s.id)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	s.state.Store(int32(StateConnected))
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Name returns the subscribed name, or "" before the handshake completed.
func (s *Session) Name() string {
	if n := s.name.Load(); n != nil {
		return *n
	}
	return ""
}

func (s *Session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// SetReadDeadline bounds the next reads; the zero time removes the bound.
func (s *Session) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// Send encodes and writes one packet.
func (s *Session) Send(p protocol.Packet) error {
	frame, err := p.Encode()
	if err != nil {
		return err
	}
	return s.SendFrame(frame)
}

// SendFrame writes an already encoded frame. Writes are serialized so frames
// from concurrent senders never interleave.
func (s *Session) SendFrame(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeLocked(frame)
}

func (s *Session) writeLocked(frame []byte) error {
	if s.State() == StateClosed {
		return ErrClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Accept commits a server-side handshake. register runs under the write lock,
// then the Subscribe response is written before any other frame can be.
// A register error is answered with a rejection and returned.
func (s *Session) Accept(name string, register func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.State() != StateConnected {
		return fmt.Errorf("cannot accept subscription in state %s", s.State())
	}

	if err := register(); err != nil {
		if werr := s.writeResponseLocked(false); werr != nil {
			return errors.Join(err, werr)
		}
		return err
	}

	s.name.Store(&name)
	s.state.Store(int32(StateSubscribed))
	return s.writeResponseLocked(true)
}

// Reject answers a handshake with a rejection.
func (s *Session) Reject() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeResponseLocked(false)
}

func (s *Session) writeResponseLocked(accepted bool) error {
	frame, err := protocol.NewSubscribeResponse(accepted).Encode()
	if err != nil {
		return err
	}
	return s.writeLocked(frame)
}

// MarkSubscribed records an accepted client-side handshake.
func (s *Session) MarkSubscribed(name string) bool {
	s.name.Store(&name)
	return s.state.CompareAndSwap(int32(StateConnected), int32(StateSubscribed))
}

// ReadLoop reads the connection until it fails or handle returns an error,
// dispatching packets strictly in arrival order. It returns nil when the peer
// closed the connection cleanly or the session was closed locally.
func (s *Session) ReadLoop(handle func(protocol.Packet) error) error {
	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			packets, ferr := s.framer.Feed(buf[:n])
			for _, p := range packets {
				if !s.admit(p) {
					s.logger.Warn("rate_limit_exceeded",
						"packet_type", p.Type.String(),
					)
					continue
				}
				if herr := handle(p); herr != nil {
					return herr
				}
			}
			if ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if IsClosedError(err) || s.State() == StateClosed {
				return nil
			}
			return err
		}
	}
}

// admit applies the inbound rate limit. Only News is throttled; control
// packets always reach the handler so state transitions are never lost.
func (s *Session) admit(p protocol.Packet) bool {
	if s.limiter == nil || p.Type != protocol.PacketNews {
		return true
	}
	return s.limiter.Allow()
}

// Close closes the connection once; later calls are no-ops.
// Pending reads and writes on the connection are unblocked.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		err = s.conn.Close()
		close(s.done)
	})
	return err
}

// IsClosedError reports whether err only means the connection is gone:
// EOF, reset by peer, or closed locally.
func IsClosedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// On Windows: "wsarecv: An existing connection was forcibly closed by the remote host."
	// On Linux: "connection reset by peer", "broken pipe"
	msg := err.Error()
	return strings.Contains(msg, "closed network connection") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection was aborted") ||
		strings.Contains(msg, "forcibly closed")
}
