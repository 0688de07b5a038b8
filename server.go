package zlink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"git.sr.ht/~varlinkrt/zlink-go/internal/zlinkcfg"
	"git.sr.ht/~varlinkrt/zlink-go/internal/zlog"
	"golang.org/x/time/rate"
)

// acceptBackoffUnit bounds how often a non-fatal Accept error is retried;
// grounded on net/http.Server's temporary-accept-error backoff, replacing
// its hand-rolled sleep-and-double with a token-bucket limiter already in
// the dependency graph.
const acceptBackoffUnit = 5 * time.Millisecond

func defaultLogger() *slog.Logger { return zlog.Default() }

// Server accepts connections from a Listener and dispatches their calls to
// a Service, one call at a time per connection but fairly across
// connections: no single busy connection can starve the others.
//
// The dispatch loop runs on a single goroutine (the one that calls Serve),
// mirroring the teacher's accept-loop shape but replacing "one goroutine
// per connection runs the whole request/reply cycle" with "one reader
// goroutine per connection feeds a single fan-in loop". Each connection
// still gets its own goroutine (for receiveFrame's blocking Read), but the
// handler call and reply write happen on Serve's goroutine, so handler
// ordering across connections is the rotated-round-robin fairness the
// original select-based scheduler provided.
type Server struct {
	listener Listener
	service  Service
	cfg      zlinkcfg.Config
	logger   *slog.Logger
	limiter  *rate.Limiter

	mu       sync.Mutex
	conns    map[uint64]*serverConn
	order    []uint64
	rotate   int
	wake     chan struct{}
	newConns chan *serverConn
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewServer builds a Server dispatching ln's connections to svc.
func NewServer(ln Listener, svc Service, cfg zlinkcfg.Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = defaultLogger()
	}
	return &Server{
		listener: ln,
		service:  svc,
		cfg:      cfg,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(acceptBackoffUnit), 1),
		conns:    make(map[uint64]*serverConn),
		wake:     make(chan struct{}, 1),
		newConns: make(chan *serverConn, 8),
		done:     make(chan struct{}),
	}
}

type callResult struct {
	call       Call
	methodCall MethodCall
	err        error
}

type serverConn struct {
	conn  *Connection
	ready chan callResult
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		sock, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			s.logger.Warn("accept failed, retrying", "error", err)
			continue
		}

		conn := NewConnection(sock, profileFromConfig(s.cfg.Profile), classFromConfig(s.cfg.BufferClass))
		sc := &serverConn{conn: conn, ready: make(chan callResult, 1)}
		s.logger.Info("connection accepted", "conn", conn.ID())

		s.wg.Add(1)
		go s.readLoop(ctx, sc)

		select {
		case s.newConns <- sc:
		case <-ctx.Done():
			return
		}
	}
}

// readLoop repeatedly decodes the next call from sc's connection and hands
// it to the dispatch loop via sc.ready, applying backpressure: it blocks on
// the send, so at most one decoded-but-not-yet-handled call exists per
// connection at a time, which is what keeps per-connection ordering exact.
func (s *Server) readLoop(ctx context.Context, sc *serverConn) {
	defer s.wg.Done()
	for {
		mc := s.service.NewMethodCall()
		call, err := sc.conn.Read.ReceiveCall(ctx, mc)
		result := callResult{call: call, methodCall: mc, err: err}
		select {
		case sc.ready <- result:
		case <-ctx.Done():
			return
		}
		s.nudge()
		if err != nil {
			return
		}
	}
}

func (s *Server) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Serve runs the dispatch loop until ctx is cancelled or Shutdown is
// called. It accepts connections on its own goroutine and otherwise does
// all handler invocation and reply writing on the calling goroutine.
func (s *Server) Serve(ctx context.Context) error {
	acceptCtx, cancelAccept := context.WithCancel(ctx)
	defer cancelAccept()
	go s.acceptLoop(acceptCtx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		if s.dispatchOneReady(ctx) {
			continue
		}

		select {
		case sc := <-s.newConns:
			s.addConn(sc)
		case <-s.wake:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		}
	}
}

func (s *Server) addConn(sc *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[sc.conn.ID()] = sc
	s.order = append(s.order, sc.conn.ID())
}

func (s *Server) removeConn(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.rotate >= len(s.order) {
		s.rotate = 0
	}
}

// dispatchOneReady scans connections in rotated order (starting just past
// the last-served connection) and handles the first one with a decoded
// call or error waiting. This is the Go stand-in for the original
// poll-in-rotated-order "last-winner suppression" scheduler: a connection
// that was just served moves to the back of the rotation so a single busy
// connection cannot starve the others.
func (s *Server) dispatchOneReady(ctx context.Context) bool {
	s.mu.Lock()
	// drain any connections the accept loop queued up without blocking
	for {
		select {
		case sc := <-s.newConns:
			s.conns[sc.conn.ID()] = sc
			s.order = append(s.order, sc.conn.ID())
			continue
		default:
		}
		break
	}
	order := append([]uint64(nil), s.order...)
	start := s.rotate
	s.mu.Unlock()

	for i := 0; i < len(order); i++ {
		idx := (start + i) % len(order)
		id := order[idx]

		s.mu.Lock()
		sc, ok := s.conns[id]
		s.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case result := <-sc.ready:
			s.mu.Lock()
			s.rotate = idx + 1
			s.mu.Unlock()
			s.handleResult(ctx, sc, result)
			return true
		default:
		}
	}
	return false
}

func (s *Server) handleResult(ctx context.Context, sc *serverConn, result callResult) {
	if result.err != nil {
		s.dropConn(sc, result.err)
		return
	}

	call := result.call
	if call.Oneway && (call.More || call.Upgrade) {
		// Oneway combined with another flag is itself the error being
		// reported; unlike an ordinary service-level error, oneway does not
		// suppress this reply, since oneway's own validity is what's in
		// question.
		name, body := InvalidParameter("oneway")
		if err := sc.conn.Write.SendError(ctx, name, body); err != nil {
			s.dropConn(sc, err)
		}
		return
	}

	if call.Upgrade {
		s.dropConn(sc, &Error{Kind: ProtocolViolation, Detail: "connection upgrades not supported"})
		return
	}

	reply := s.service.Handle(ctx, call, result.methodCall)

	switch reply.kind {
	case replyMulti:
		if call.Oneway {
			return
		}
		if !call.More {
			s.replyExpectedMore(ctx, sc)
			return
		}
		s.pumpStream(ctx, sc, reply.stream)
	case replyError:
		if call.Oneway {
			return
		}
		if err := sc.conn.Write.SendError(ctx, reply.errName, reply.errBody); err != nil {
			s.dropConn(sc, err)
		}
	default:
		if call.Oneway {
			return
		}
		out, err := NewReply(reply.single)
		if err != nil {
			s.dropConn(sc, err)
			return
		}
		if err := sc.conn.Write.SendReply(ctx, out); err != nil {
			s.dropConn(sc, err)
		}
	}
}

func (s *Server) replyExpectedMore(ctx context.Context, sc *serverConn) {
	name, body := ExpectedMore()
	if err := sc.conn.Write.SendError(ctx, name, body); err != nil {
		s.dropConn(sc, err)
	}
}

// pumpStream drains a Multi reply's stream to completion, interleaving
// continues=true replies with the terminating continues=false reply. It
// runs synchronously on the dispatch goroutine: a slow producer delays
// fairness for other connections exactly as a slow handler would, which
// matches spec's cooperative-scheduling model (a Service is expected to
// suspend at await points, not spin).
func (s *Server) pumpStream(ctx context.Context, sc *serverConn, stream ReplyStream) {
	for {
		params, ok, err := stream.Next(ctx)
		if err != nil {
			s.dropConn(sc, wrapErr(IoFailure, err))
			return
		}
		if !ok {
			reply, _ := NewReply(nil)
			if err := sc.conn.Write.SendReply(ctx, reply); err != nil {
				s.dropConn(sc, err)
			}
			return
		}
		reply, err := NewReply(params)
		if err != nil {
			s.dropConn(sc, err)
			return
		}
		reply.Continues = true
		if err := sc.conn.Write.SendReply(ctx, reply); err != nil {
			s.dropConn(sc, err)
			return
		}
	}
}

func (s *Server) dropConn(sc *serverConn, cause error) {
	id := sc.conn.ID()
	s.removeConn(id)
	var disconnected *Error
	if errors.As(cause, &disconnected) && disconnected.Kind == Disconnected {
		s.logger.Info("connection closed", "conn", id)
		return
	}
	s.logger.Warn("connection dropped", "conn", id, "error", cause)
}

// Shutdown makes Serve return, which stops the accept loop and cancels the
// context the per-connection reader goroutines run under, and then waits,
// bounded by ctx, for those reader goroutines to exit. A Multi stream being
// pumped when Shutdown is called runs to completion first, since pumping
// happens on Serve's goroutine. Connections are not closed. Modeled on
// net/http.Server.Shutdown: it signals, then waits, rather than severing
// connections immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.done)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

