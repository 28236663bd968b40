package queryhttp

import (
	"net"
	"sync"
)

// connListener is a net.Listener that yields exactly one connection.
//
// It lets a net/http.Server drive a connection accepted elsewhere. After the
// connection has been handed out, Accept blocks until the connection (or the
// listener) is closed and then returns net.ErrClosed, which ends
// http.Server.Serve.
type connListener struct {
	conn      net.Conn
	pending   chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func newConnListener(conn net.Conn) *connListener {
	l := &connListener{
		pending: make(chan net.Conn, 1),
		closed:  make(chan struct{}),
	}
	l.conn = &notifyingConn{Conn: conn, onClose: l.release}
	l.pending <- l.conn
	return l
}

func (l *connListener) Accept() (net.Conn, error) {
	select {
	case <-l.closed:
		return nil, net.ErrClosed
	default:
	}

	select {
	case c := <-l.pending:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *connListener) Close() error {
	l.release()
	return nil
}

func (l *connListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *connListener) release() {
	l.closeOnce.Do(func() { close(l.closed) })
}

// notifyingConn calls onClose after the underlying connection is closed.
type notifyingConn struct {
	net.Conn
	once    sync.Once
	onClose func()
}

func (c *notifyingConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.onClose)
	return err
}
