package newsclient

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdist/internal/microservices/tcp"
	"newsdist/internal/protocol"
)

func startServer(t *testing.T) (*tcp.Server, string, int) {
	t.Helper()
	srv := tcp.NewServer("127.0.0.1:0", tcp.WithMetricsRegisterer(prometheus.NewRegistry()))
	require.NoError(t, srv.Listen())
	go srv.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	host, portStr, err := net.SplitHostPort(srv.ListenAddr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return srv, host, port
}

// recorder collects everything a client reports.
type recorder struct {
	mu          sync.Mutex
	news        []protocol.News
	statuses    []Status
	disconnects []string
}

func (r *recorder) options() []Option {
	return []Option{
		WithNewsHandler(func(n protocol.News) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.news = append(r.news, n)
		}),
		WithStatusHandler(func(s Status) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.statuses = append(r.statuses, s)
		}),
		WithDisconnectHandler(func(name string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.disconnects = append(r.disconnects, name)
		}),
	}
}

func (r *recorder) newsCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.news)
}

func (r *recorder) disconnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.disconnects)
}

func TestClient_SubscribeReceiveUnsubscribe(t *testing.T) {
	srv, host, port := startServer(t)
	rec := &recorder{}
	c := New(rec.options()...)

	status, err := c.Subscribe(context.Background(), host, port, "alice")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)
	assert.True(t, c.Connected())
	assert.Equal(t, "alice", c.Name())
	assert.Equal(t, []string{"alice"}, srv.Subscribers())

	news := protocol.News{Title: "T", Description: "D", Content: "C"}
	_, err = srv.Broadcast(news)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.newsCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, news, rec.news[0])

	c.Unsubscribe(true)
	c.Unsubscribe(true)
	assert.False(t, c.Connected())
	assert.Equal(t, 1, rec.disconnectCount())

	require.Eventually(t, func() bool { return srv.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []Status{StatusSuccess}, rec.statuses)
}

func TestClient_NewsOrderPreserved(t *testing.T) {
	srv, host, port := startServer(t)
	rec := &recorder{}
	c := New(rec.options()...)

	_, err := c.Subscribe(context.Background(), host, port, "reader")
	require.NoError(t, err)
	defer c.Unsubscribe(true)

	const count = 50
	for i := 0; i < count; i++ {
		_, err := srv.Broadcast(protocol.News{Title: strconv.Itoa(i)})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return rec.newsCount() == count }, 3*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, n := range rec.news {
		assert.Equal(t, strconv.Itoa(i), n.Title)
	}
}

func TestClient_DuplicateNameRejected(t *testing.T) {
	_, host, port := startServer(t)

	first := New()
	status, err := first.Subscribe(context.Background(), host, port, "alice")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)
	defer first.Unsubscribe(true)

	rec := &recorder{}
	second := New(rec.options()...)
	status, err = second.Subscribe(context.Background(), host, port, "alice")
	assert.NoError(t, err)
	assert.Equal(t, StatusRejected, status)
	assert.False(t, second.Connected())
	assert.Equal(t, []Status{StatusRejected}, rec.statuses)
	assert.Equal(t, 0, rec.disconnectCount(), "a rejected client never subscribed")

	// the client is reusable after a rejection
	status, err = second.Subscribe(context.Background(), host, port, "bob")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	second.Unsubscribe(true)
}

func TestClient_AlreadyConnected(t *testing.T) {
	_, host, port := startServer(t)
	c := New()

	_, err := c.Subscribe(context.Background(), host, port, "alice")
	require.NoError(t, err)
	defer c.Unsubscribe(true)

	status, err := c.Subscribe(context.Background(), host, port, "alice2")
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, StatusAlreadyConnected, status)
	assert.Equal(t, "alice", c.Name())
}

func TestClient_UnableToConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	rec := &recorder{}
	c := New(append(rec.options(), WithDialTimeout(time.Second))...)
	status, err := c.Subscribe(context.Background(), "127.0.0.1", port, "alice")

	assert.Equal(t, StatusUnableToConnect, status)
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(port), connErr.Addr)
	assert.False(t, c.Connected())
	assert.Equal(t, []Status{StatusUnableToConnect}, rec.statuses)
}

func TestClient_InvalidNameNotSent(t *testing.T) {
	tests := []string{"", "   ", strings.Repeat("n", protocol.MaxNameLength+1), "bad\xff"}
	for _, name := range tests {
		c := New()
		status, err := c.Subscribe(context.Background(), "127.0.0.1", 1, name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
		assert.Equal(t, StatusRejected, status)
	}
}

func TestClient_HandshakeTimeout(t *testing.T) {
	// a listener that accepts and never answers
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	c := New(WithHandshakeTimeout(200 * time.Millisecond))
	status, err := c.Subscribe(context.Background(), "127.0.0.1", ln.Addr().(*net.TCPAddr).Port, "alice")
	assert.Equal(t, StatusUnableToConnect, status)
	assert.ErrorIs(t, err, errHandshakeTimeout)
	assert.False(t, c.Connected())
}

func TestClient_ServerRemovalEndsSession(t *testing.T) {
	srv, host, port := startServer(t)
	rec := &recorder{}
	c := New(rec.options()...)

	_, err := c.Subscribe(context.Background(), host, port, "alice")
	require.NoError(t, err)
	done := c.Done()

	require.True(t, srv.RemoveClient("alice"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after server removal")
	}
	require.Eventually(t, func() bool { return rec.disconnectCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.Connected())

	// local unsubscribe after the server closed is a no-op
	c.Unsubscribe(true)
	assert.Equal(t, 1, rec.disconnectCount())
}

func TestClient_ServerShutdownEndsSession(t *testing.T) {
	srv, host, port := startServer(t)
	rec := &recorder{}
	c := New(rec.options()...)

	_, err := c.Subscribe(context.Background(), host, port, "alice")
	require.NoError(t, err)

	require.NoError(t, srv.Shutdown(context.Background()))

	require.Eventually(t, func() bool { return rec.disconnectCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"alice"}, rec.disconnects)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "already_connected", StatusAlreadyConnected.String())
	assert.Equal(t, "unknown", Status(42).String())
}
