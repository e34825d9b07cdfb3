// Package newsclient subscribes to a news server and delivers received news
// to a callback.
package newsclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"newsdist/internal/protocol"
	"newsdist/internal/session"
)

const (
	DefaultPort             = 8910
	DefaultDialTimeout      = 10 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
)

// Status is the outcome of a subscribe attempt.
type Status int

const (
	StatusSuccess Status = iota
	StatusRejected
	StatusUnableToConnect
	StatusAlreadyConnected
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRejected:
		return "rejected"
	case StatusUnableToConnect:
		return "unable_to_connect"
	case StatusAlreadyConnected:
		return "already_connected"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidName       = errors.New("newsclient: invalid name")
	ErrAlreadyConnected  = errors.New("newsclient: already connected")
	errHandshakeTimeout  = errors.New("handshake timed out")
	errHandshakeRejected = errors.New("subscription rejected")
	errServerUnsubscribe = errors.New("server sent unsubscribe")
)

// ConnectionError reports a failed connect or handshake.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("newsclient: unable to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type (
	NewsHandler       func(protocol.News)
	StatusHandler     func(Status)
	DisconnectHandler func(name string)
)

type Option func(*Client)

func WithNewsHandler(h NewsHandler) Option {
	return func(c *Client) { c.onNews = h }
}

func WithStatusHandler(h StatusHandler) Option {
	return func(c *Client) { c.onStatus = h }
}

// WithDisconnectHandler is called once each time a subscribed session ends,
// whoever ended it.
func WithDisconnectHandler(h DisconnectHandler) Option {
	return func(c *Client) { c.onDisconnect = h }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.handshakeTimeout = d }
}

type clientState int

const (
	stateIdle clientState = iota
	stateConnecting
	stateSubscribed
)

// Client holds at most one subscription at a time. It can subscribe again
// after the previous session ended.
type Client struct {
	onNews       NewsHandler
	onStatus     StatusHandler
	onDisconnect DisconnectHandler
	logger       *slog.Logger

	dialTimeout      time.Duration
	handshakeTimeout time.Duration

	mu    sync.Mutex
	state clientState
	sess  *session.Session
	name  string
}

func New(opts ...Option) *Client {
	c := &Client{
		logger:           slog.Default(),
		dialTimeout:      DefaultDialTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateName checks a name before it is sent to the server.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case len(name) > protocol.MaxNameLength:
		return fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidName, protocol.MaxNameLength)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: name is not valid UTF-8", ErrInvalidName)
	}
	return nil
}

// Subscribe connects to address:port and performs the handshake with name.
// The returned status is also passed to the status handler. A rejection by
// the server is reported as StatusRejected with a nil error.
func (c *Client) Subscribe(ctx context.Context, address string, port int, name string) (Status, error) {
	if err := ValidateName(name); err != nil {
		return c.report(StatusRejected), err
	}

	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return c.report(StatusAlreadyConnected), ErrAlreadyConnected
	}
	c.state = stateConnecting
	c.mu.Unlock()

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.mu.Lock()
		c.state = stateIdle
		c.mu.Unlock()
		c.logger.Warn("connect_failed", "addr", addr, "error", err)
		return c.report(StatusUnableToConnect), &ConnectionError{Addr: addr, Err: err}
	}

	sess := session.New(conn, session.Config{Logger: c.logger})
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	handshake := make(chan bool, 1)
	ready := make(chan struct{})
	defer close(ready)

	go c.readLoop(sess, name, handshake, ready)

	req, err := protocol.NewSubscribeRequest(name)
	if err == nil {
		err = sess.Send(req)
	}
	if err != nil {
		c.finish(sess, err)
		return c.report(StatusUnableToConnect), &ConnectionError{Addr: addr, Err: err}
	}

	timer := time.NewTimer(c.handshakeTimeout)
	defer timer.Stop()

	var accepted bool
	select {
	case accepted = <-handshake:
	case <-sess.Done():
		select {
		case accepted = <-handshake:
		default:
			c.finish(sess, nil)
			return c.report(StatusUnableToConnect), &ConnectionError{Addr: addr, Err: errors.New("connection closed during handshake")}
		}
	case <-timer.C:
		c.finish(sess, errHandshakeTimeout)
		return c.report(StatusUnableToConnect), &ConnectionError{Addr: addr, Err: errHandshakeTimeout}
	case <-ctx.Done():
		c.finish(sess, ctx.Err())
		return c.report(StatusUnableToConnect), &ConnectionError{Addr: addr, Err: ctx.Err()}
	}

	if !accepted {
		c.finish(sess, errHandshakeRejected)
		c.logger.Info("subscription_rejected", "addr", addr, "name", name)
		return c.report(StatusRejected), nil
	}

	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return c.report(StatusUnableToConnect), &ConnectionError{Addr: addr, Err: session.ErrClosed}
	}
	c.state = stateSubscribed
	c.name = name
	c.mu.Unlock()

	c.logger.Info("subscribed", "addr", addr, "name", name, "client_id", sess.ID())
	return c.report(StatusSuccess), nil
}

// readLoop owns the session's reads. News is dispatched only after Subscribe
// has reported the handshake outcome (ready closed).
func (c *Client) readLoop(sess *session.Session, name string, handshake chan<- bool, ready <-chan struct{}) {
	err := sess.ReadLoop(func(p protocol.Packet) error {
		switch sess.State() {
		case session.StateConnected:
			if p.Type != protocol.PacketSubscribe {
				return fmt.Errorf("unexpected %s packet before handshake", p.Type)
			}
			accepted, err := p.SubscribeAccepted()
			if err != nil {
				return err
			}
			if !accepted {
				handshake <- false
				return errHandshakeRejected
			}
			sess.MarkSubscribed(name)
			handshake <- true
			<-ready
			return nil

		case session.StateSubscribed:
			switch p.Type {
			case protocol.PacketNews:
				news, err := p.News()
				if err != nil {
					return err
				}
				if c.onNews != nil {
					c.onNews(news)
				}
			case protocol.PacketUnsubscribe:
				return errServerUnsubscribe
			default:
				c.logger.Debug("ignoring_packet", "packet_type", p.Type.String())
			}
			return nil

		default:
			return session.ErrClosed
		}
	})
	c.finish(sess, err)
}

// Unsubscribe ends the current subscription, first telling the server when
// sendPacket is set. It is a no-op when not subscribed.
func (c *Client) Unsubscribe(sendPacket bool) {
	c.mu.Lock()
	if c.state != stateSubscribed {
		c.mu.Unlock()
		return
	}
	sess := c.sess
	c.mu.Unlock()

	if sendPacket {
		if err := sess.Send(protocol.NewUnsubscribe()); err != nil {
			c.logger.Debug("unsubscribe_send_failed", "error", err)
		}
	}
	c.finish(sess, nil)
}

// finish tears down sess once. The disconnect handler runs only if sess had
// completed its handshake.
func (c *Client) finish(sess *session.Session, reason error) {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		sess.Close()
		return
	}
	wasSubscribed := c.state == stateSubscribed
	name := c.name
	c.sess = nil
	c.name = ""
	c.state = stateIdle
	c.mu.Unlock()

	sess.Close()
	if !wasSubscribed {
		return
	}

	attrs := []any{"name", name, "client_id", sess.ID()}
	if reason != nil {
		attrs = append(attrs, "reason", reason.Error())
	}
	c.logger.Info("disconnected", attrs...)
	if c.onDisconnect != nil {
		c.onDisconnect(name)
	}
}

func (c *Client) report(s Status) Status {
	if c.onStatus != nil {
		c.onStatus(s)
	}
	return s
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateSubscribed
}

// Name returns the subscribed name, or "" when not subscribed.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Done is closed when the current session ends. It is already closed when
// there is no session.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.sess.Done()
}
