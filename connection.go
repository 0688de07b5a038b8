package zlink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
)

// nextConnID is the sole process-wide mutable value in this package: a
// monotonic counter handing out Connection identities. Its values carry no
// correctness weight, only observability (logging, fairness accounting).
var nextConnID uint64

func newConnID() uint64 {
	return atomic.AddUint64(&nextConnID, 1)
}

// ReadConnection parses incoming JSON frames from a socket's read half,
// deserializing them into caller-chosen types. At most one outstanding
// frame-borrow is live at a time: the []byte returned by an internal
// receiveFrame (and the json.RawMessage fields it hands to a MethodCall's
// UnmarshalVarlinkMethod) alias the Buffer's backing array and are only
// valid until the next receive call.
type ReadConnection struct {
	read ReadHalf
	buf  *Buffer
	id   uint64
}

func newReadConnection(r ReadHalf, buf *Buffer, id uint64) *ReadConnection {
	return &ReadConnection{read: r, buf: buf, id: id}
}

// ID returns the connection's unique identifier.
func (rc *ReadConnection) ID() uint64 { return rc.id }

// receiveFrame fills the buffer from the socket until it contains at least
// one complete frame, then returns a borrow of it (excluding the NUL
// terminator). It fails with Disconnected on EOF mid-frame.
func (rc *ReadConnection) receiveFrame(ctx context.Context) ([]byte, error) {
	for {
		if frame, ok := rc.buf.FindFrame(); ok {
			return frame, nil
		}

		rc.buf.Compact()
		if rc.buf.Full() {
			if err := rc.buf.Grow(); err != nil {
				return nil, err
			}
		}

		n, err := rc.read.Read(ctx, rc.buf.Tail())
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, wrapErr(IoFailure, err)
		}
		if n == 0 {
			return nil, &Error{Kind: Disconnected, Detail: "EOF"}
		}
		rc.buf.CommitFill(n)
	}
}

// ReceiveCall receives the next method call and decodes its parameters into
// into, a MethodCall sum type covering the interfaces this connection
// serves. A frame carrying an "error" field is a protocol error in this
// direction.
func (rc *ReadConnection) ReceiveCall(ctx context.Context, into MethodCall) (Call, error) {
	frame, err := rc.receiveFrame(ctx)
	if err != nil {
		return Call{}, err
	}

	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return Call{}, wrapErr(FrameMalformed, err)
	}
	if probe.Error != "" {
		return Call{}, &Error{Kind: ProtocolViolation, Detail: "received an error frame as a call"}
	}

	var call Call
	if err := json.Unmarshal(frame, &call); err != nil {
		return Call{}, wrapErr(FrameMalformed, err)
	}
	// Note: a call that sets more than one of oneway/more/upgrade is not
	// rejected here. The Server's validation step (spec §4.8) synthesizes a
	// per-call InvalidParameter reply when oneway is combined with another
	// flag instead of terminating the connection; a call with more and
	// upgrade set is dropped like any other upgrade. See Server.handleResult.

	if into != nil {
		ok, err := into.UnmarshalVarlinkMethod(call.Method, call.Parameters)
		if err != nil {
			return Call{}, wrapErr(FrameMalformed, err)
		}
		_ = ok // unknown methods are a Service/Server-level concern, not framing
	}

	return call, nil
}

// ReceiveReply receives the next reply frame and classifies it as a success
// (possibly a streaming continuation), a built-in org.varlink.service error,
// or an interface-specific error (decoded later via Outcome.As). A frame
// with neither "parameters" nor "error" but continues=false is a valid empty
// terminator reply.
func (rc *ReadConnection) ReceiveReply(ctx context.Context) (Outcome, error) {
	frame, err := rc.receiveFrame(ctx)
	if err != nil {
		return Outcome{}, err
	}

	var wire wireReply
	if err := json.Unmarshal(frame, &wire); err != nil {
		return Outcome{}, wrapErr(FrameMalformed, err)
	}

	if wire.Error == "" {
		return Outcome{Params: wire.Parameters, Continues: wire.Continues}, nil
	}

	if builtinServiceErrorNames[wire.Error] {
		return Outcome{
			errorName: wire.Error,
			errorRaw:  wire.Parameters,
			Service:   &ServiceError{Name: wire.Error, Parameters: wire.Parameters},
		}, nil
	}

	return Outcome{errorName: wire.Error, errorRaw: wire.Parameters}, nil
}

// WriteConnection serializes and frames outgoing messages, singly or as a
// pipelined batch.
type WriteConnection struct {
	write WriteHalf
	id    uint64
	batch []byte
}

func newWriteConnection(w WriteHalf, id uint64) *WriteConnection {
	return &WriteConnection{write: w, id: id}
}

// ID returns the connection's unique identifier.
func (wc *WriteConnection) ID() uint64 { return wc.id }

func frameBytes(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, wrapErr(FrameMalformed, err)
	}
	if len(b) == 0 {
		return nil, &Error{Kind: FrameMalformed, Detail: "refusing to write a zero-length frame"}
	}
	return append(b, 0), nil
}

// SendCall serializes call, appends the NUL terminator, and writes it.
func (wc *WriteConnection) SendCall(ctx context.Context, call Call) error {
	if err := call.validate(); err != nil {
		return err
	}
	b, err := frameBytes(call)
	if err != nil {
		return err
	}
	if err := wc.write.WriteAll(ctx, b); err != nil {
		return wrapErr(IoFailure, err)
	}
	return wc.write.Flush(ctx)
}

// SendReply serializes reply and writes it.
func (wc *WriteConnection) SendReply(ctx context.Context, reply Reply) error {
	b, err := frameBytes(reply.toWire())
	if err != nil {
		return err
	}
	if err := wc.write.WriteAll(ctx, b); err != nil {
		return wrapErr(IoFailure, err)
	}
	return wc.write.Flush(ctx)
}

// SendError serializes a built-in or user error reply and writes it.
func (wc *WriteConnection) SendError(ctx context.Context, name string, params interface{}) error {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return wrapErr(FrameMalformed, err)
		}
		raw = b
	}
	b, err := frameBytes(wireReply{Error: name, Parameters: raw})
	if err != nil {
		return err
	}
	if err := wc.write.WriteAll(ctx, b); err != nil {
		return wrapErr(IoFailure, err)
	}
	return wc.write.Flush(ctx)
}

// EnqueueCall appends a framed call to the staging buffer without writing
// it; used by pipelining (see Proxy.Chain).
func (wc *WriteConnection) EnqueueCall(call Call) error {
	if err := call.validate(); err != nil {
		return err
	}
	b, err := frameBytes(call)
	if err != nil {
		return err
	}
	wc.batch = append(wc.batch, b...)
	return nil
}

// FlushEnqueued writes the concatenation of all enqueued calls in a single
// write-all and clears the staging buffer.
func (wc *WriteConnection) FlushEnqueued(ctx context.Context) error {
	if len(wc.batch) == 0 {
		return nil
	}
	b := wc.batch
	wc.batch = nil
	if err := wc.write.WriteAll(ctx, b); err != nil {
		return wrapErr(IoFailure, err)
	}
	return wc.write.Flush(ctx)
}

// Connection joins a read half and a write half under one connection
// identity.
type Connection struct {
	Read  *ReadConnection
	Write *WriteConnection
	id    uint64
}

// NewConnection builds a Connection over sock, assigning it a fresh,
// process-wide unique id.
func NewConnection(sock Socket, profile Profile, class Class) *Connection {
	r, w := sock.Split()
	id := newConnID()
	return &Connection{
		Read:  newReadConnection(r, NewBuffer(profile, class), id),
		Write: newWriteConnection(w, id),
		id:    id,
	}
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() uint64 { return c.id }

// Split yields the two halves so they can be driven from separate
// goroutines. The id is duplicated onto both so each can log it
// independently; merging the halves back together is not supported.
func (c *Connection) Split() (*ReadConnection, *WriteConnection) {
	return c.Read, c.Write
}
