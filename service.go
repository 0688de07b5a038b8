package zlink

import "context"

// ReplyStream is a lazy sequence of reply parameters pumped by the Server
// for a Multi MethodReply. Exposing streaming replies this way (rather than
// handing the Service direct access to the WriteConnection) keeps a Service
// to one-method-per-call and avoids aliasing the connection from two
// places at once.
type ReplyStream interface {
	// Next produces the next reply's parameters. ok=false means the stream
	// is exhausted; the Server then writes the continues=false terminator
	// reply itself.
	Next(ctx context.Context) (params interface{}, ok bool, err error)
}

// replyKind discriminates the MethodReply union.
type replyKind int

const (
	replySingle replyKind = iota
	replyError
	replyMulti
)

// MethodReply is the outcome of Service.Handle: exactly one terminal reply,
// one terminal error, or a stream of continuation replies.
type MethodReply struct {
	kind    replyKind
	single  interface{}
	errName string
	errBody interface{}
	stream  ReplyStream
}

// SingleReply returns a MethodReply carrying one terminal successful reply.
// params may be nil for an empty reply.
func SingleReply(params interface{}) MethodReply {
	return MethodReply{kind: replySingle, single: params}
}

// ErrorReply returns a MethodReply carrying one terminal error. name is the
// interface-dotted error name; body is its optional parameter payload.
func ErrorReply(name string, body interface{}) MethodReply {
	return MethodReply{kind: replyError, errName: name, errBody: body}
}

// MultiReply returns a MethodReply that streams s's values as continuation
// replies, followed by an empty continues=false terminator. Only valid as
// the response to a Call with More set; otherwise the Server, after the
// handler has returned, discards the stream without reading it and replies
// ExpectedMore (or nothing, for a oneway Call).
func MultiReply(s ReplyStream) MethodReply {
	return MethodReply{kind: replyMulti, stream: s}
}

// Service is the user-implemented dispatch: one call maps to one reply, one
// error, or a stream of replies.
type Service interface {
	// NewMethodCall returns a fresh, empty MethodCall value the Server can
	// decode an incoming call's method name and parameters into.
	NewMethodCall() MethodCall

	// Handle dispatches call (whose parameters were already decoded into
	// methodCall by ReceiveCall) and returns the reply. When call.Oneway is
	// set the returned MethodReply is discarded by the Server; a Service
	// may detect Oneway itself (via call.Oneway) and short-circuit.
	Handle(ctx context.Context, call Call, methodCall MethodCall) MethodReply
}
