// Package streamsock adapts a net.Conn (unix or tcp) to zlink.Socket,
// split into independently driven read and write halves.
package streamsock

import (
	"context"
	"net"
	"time"

	"git.sr.ht/~varlinkrt/zlink-go"
)

// Socket wraps a net.Conn.
type Socket struct {
	conn net.Conn
}

// New wraps conn as a zlink.Socket.
func New(conn net.Conn) *Socket {
	return &Socket{conn: conn}
}

// Split implements zlink.Socket.
func (s *Socket) Split() (zlink.ReadHalf, zlink.WriteHalf) {
	return &readHalf{conn: s.conn}, &writeHalf{conn: s.conn}
}

// Close closes the underlying connection.
func (s *Socket) Close() error { return s.conn.Close() }

type readHalf struct {
	conn net.Conn
}

func (r *readHalf) Read(ctx context.Context, p []byte) (int, error) {
	if deadline, ok := ctx.Deadline(); ok {
		r.conn.SetReadDeadline(deadline)
	} else {
		r.conn.SetReadDeadline(time.Time{})
	}
	n, err := r.conn.Read(p)
	if err != nil && n == 0 && ctx.Err() != nil {
		return 0, ctx.Err()
	}
	return n, err
}

type writeHalf struct {
	conn net.Conn
}

func (w *writeHalf) WriteAll(ctx context.Context, p []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		w.conn.SetWriteDeadline(deadline)
	} else {
		w.conn.SetWriteDeadline(time.Time{})
	}
	for len(p) > 0 {
		n, err := w.conn.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Flush is a no-op: net.Conn has no internal buffering to flush.
func (w *writeHalf) Flush(ctx context.Context) error { return nil }

// Listener adapts a net.Listener to zlink.Listener.
type Listener struct {
	ln net.Listener
}

// NewListener wraps ln.
func NewListener(ln net.Listener) *Listener {
	return &Listener{ln: ln}
}

// Accept implements zlink.Listener.
func (l *Listener) Accept(ctx context.Context) (zlink.Socket, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return New(r.conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
