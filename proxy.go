package zlink

import (
	"context"
	"sync"

	"git.sr.ht/~varlinkrt/zlink-go/internal/zlinkcfg"
)

// Proxy is a client-side, pipelining-capable handle to one Connection: it
// owns a background read loop (grounded on the teacher's Client.readLoop)
// that matches incoming replies to outstanding calls in FIFO order,
// allowing a caller to issue several calls before any reply arrives.
type Proxy struct {
	conn       *Connection
	pipelining bool

	mu      sync.Mutex
	pending []chan<- Outcome
	err     error
	closed  chan struct{}
}

// NewProxy wraps conn, starting its background read loop, with pipelining
// enabled (spec §6's pipelining knob defaults to enabled for a bare Proxy).
func NewProxy(conn *Connection) *Proxy {
	return newProxy(conn, true)
}

// NewProxyWithConfig wraps conn like NewProxy, but honors cfg.Pipelining:
// when disabled, Chain.Flush fails when more than one call is staged,
// matching spec §6's build-time pipelining ∈ {enabled, disabled} surface.
func NewProxyWithConfig(conn *Connection, cfg zlinkcfg.Config) *Proxy {
	return newProxy(conn, cfg.Pipelining)
}

func newProxy(conn *Connection, pipelining bool) *Proxy {
	p := &Proxy{conn: conn, pipelining: pipelining, closed: make(chan struct{})}
	go p.readLoop()
	return p
}

func (p *Proxy) readLoop() {
	var failure error
	defer func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if failure != nil {
			p.err = failure
		}
		for _, ch := range p.pending {
			close(ch)
		}
		p.pending = nil
		close(p.closed)
	}()

	ctx := context.Background()
	for {
		outcome, err := p.conn.Read.ReceiveReply(ctx)
		if err != nil {
			failure = err
			return
		}

		p.mu.Lock()
		var ch chan<- Outcome
		if len(p.pending) > 0 {
			ch = p.pending[0]
			if !outcome.Continues {
				p.pending = p.pending[1:]
			}
		}
		p.mu.Unlock()

		if ch == nil {
			failure = &Error{Kind: ProtocolViolation, Detail: "received a reply without an outstanding call"}
			return
		}
		ch <- outcome
	}
}

// enqueue registers ch to receive the next unclaimed reply and writes call,
// returning any write-time error immediately (and never registering ch in
// that case).
func (p *Proxy) enqueue(ctx context.Context, call Call, ch chan<- Outcome) error {
	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return err
	}
	p.pending = append(p.pending, ch)
	p.mu.Unlock()

	if err := p.conn.Write.SendCall(ctx, call); err != nil {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		return err
	}
	return nil
}

// Do makes a single immediate call and waits for its one reply. It is the
// raw, untyped escape hatch beneath the typed Chain API, used by generated
// code and by interfaces without a generator-produced wrapper.
func (p *Proxy) Do(ctx context.Context, method string, params interface{}) (Outcome, error) {
	call, err := NewCall(method, params)
	if err != nil {
		return Outcome{}, err
	}
	ch := make(chan Outcome, 1)
	if err := p.enqueue(ctx, call, ch); err != nil {
		return Outcome{}, err
	}
	select {
	case outcome, ok := <-ch:
		if !ok {
			return Outcome{}, p.lastError()
		}
		return outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// DoOneway makes a call expecting no reply. The send completing is the only
// confirmation available.
func (p *Proxy) DoOneway(ctx context.Context, method string, params interface{}) error {
	call, err := NewCall(method, params)
	if err != nil {
		return err
	}
	call.Oneway = true
	return p.conn.Write.SendCall(ctx, call)
}

// DoMore makes a call with More set and returns a MultiCall for reading the
// resulting stream of continuation replies.
func (p *Proxy) DoMore(ctx context.Context, method string, params interface{}) (*MultiCall, error) {
	call, err := NewCall(method, params)
	if err != nil {
		return nil, err
	}
	call.More = true
	ch := make(chan Outcome, 1)
	if err := p.enqueue(ctx, call, ch); err != nil {
		return nil, err
	}
	return &MultiCall{proxy: p, ch: ch}, nil
}

func (p *Proxy) lastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	return &Error{Kind: Disconnected, Detail: "proxy closed"}
}

// MultiCall reads the continuation replies of an in-flight More call.
type MultiCall struct {
	proxy *Proxy
	ch    chan Outcome
	done  bool
}

// Next blocks for the next continuation reply, reporting ok=false once the
// continues=false terminator has been consumed.
func (m *MultiCall) Next(ctx context.Context) (Outcome, bool, error) {
	if m.done {
		return Outcome{}, false, nil
	}
	select {
	case outcome, ok := <-m.ch:
		if !ok {
			return Outcome{}, false, m.proxy.lastError()
		}
		if !outcome.Continues {
			m.done = true
		}
		return outcome, true, nil
	case <-ctx.Done():
		return Outcome{}, false, ctx.Err()
	}
}

// Chain accumulates calls to be flushed together in a single write,
// preserving FIFO reply order; oneway calls consume no reply slot.
type Chain struct {
	proxy *Proxy
	calls []Call
	chs   []chan Outcome
}

// Chain begins a pipelined batch of calls on p.
func (p *Proxy) Chain() *Chain {
	return &Chain{proxy: p}
}

// Call stages method/params for the next Flush, returning a future-like
// handle resolved once Flush is sent and the reply arrives.
func (c *Chain) Call(method string, params interface{}) (*ChainReply, error) {
	call, err := NewCall(method, params)
	if err != nil {
		return nil, err
	}
	ch := make(chan Outcome, 1)
	c.calls = append(c.calls, call)
	c.chs = append(c.chs, ch)
	return &ChainReply{ch: ch}, nil
}

// CallOneway stages a oneway call; it has no corresponding ChainReply.
func (c *Chain) CallOneway(method string, params interface{}) error {
	call, err := NewCall(method, params)
	if err != nil {
		return err
	}
	call.Oneway = true
	c.calls = append(c.calls, call)
	c.chs = append(c.chs, nil)
	return nil
}

// Flush writes every staged call as one batch and registers each non-oneway
// call's reply channel with the proxy's read loop in the same order,
// matching the FIFO contract of ReceiveReply.
func (c *Chain) Flush(ctx context.Context) error {
	p := c.proxy
	if !p.pipelining && len(c.calls) > 1 {
		return &Error{Kind: ProtocolViolation, Detail: "pipelining disabled for this proxy"}
	}
	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return err
	}
	for i, call := range c.calls {
		if call.Oneway {
			continue
		}
		p.pending = append(p.pending, c.chs[i])
	}
	p.mu.Unlock()

	for _, call := range c.calls {
		if err := p.conn.Write.EnqueueCall(call); err != nil {
			return err
		}
	}
	if err := p.conn.Write.FlushEnqueued(ctx); err != nil {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		return err
	}
	return nil
}

// ChainReply is resolved once its call's reply has been read back.
type ChainReply struct {
	ch chan Outcome
}

// Wait blocks for the reply.
func (r *ChainReply) Wait(ctx context.Context) (Outcome, error) {
	select {
	case outcome, ok := <-r.ch:
		if !ok {
			return Outcome{}, &Error{Kind: Disconnected, Detail: "proxy closed before reply arrived"}
		}
		return outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
