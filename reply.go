package zlink

import "encoding/json"

// wireReply is the on-the-wire shape shared by success replies, streaming
// continuations and error replies; which one a given frame is gets decided
// by which fields are present (see Reply.validate and Outcome).
type wireReply struct {
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Continues  bool            `json:"continues,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Reply is an outbound or inbound successful response.
type Reply struct {
	Parameters json.RawMessage
	// Continues means more replies will follow for the same Call. Only
	// legal when the originating Call had More set.
	Continues bool
}

func (r Reply) toWire() wireReply {
	return wireReply{Parameters: r.Parameters, Continues: r.Continues}
}

// NewReply builds a Reply carrying params, which must marshal to a JSON
// object (or nil for an empty reply).
func NewReply(params interface{}) (Reply, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return Reply{}, wrapErr(FrameMalformed, err)
		}
		raw = b
	}
	return Reply{Parameters: raw}, nil
}

// ServiceError is a recognized org.varlink.service built-in error (see
// VarlinkServiceError in the error-handling design): InterfaceNotFound,
// MethodNotFound, MethodNotImplemented, InvalidParameter, PermissionDenied,
// or ExpectedMore. It is surfaced distinctly from user errors so generic
// code can recognize it regardless of the interface being called.
type ServiceError struct {
	Name       string
	Parameters json.RawMessage
}

func (e *ServiceError) Error() string {
	return "varlink service error: " + e.Name
}

// Decode unmarshals the error's parameters into v.
func (e *ServiceError) Decode(v interface{}) error {
	if len(e.Parameters) == 0 {
		return nil
	}
	return json.Unmarshal(e.Parameters, v)
}

// Outcome is the parsed result of receiving one reply frame: exactly one of
// IsError() being false (a success, possibly a streaming continuation) or
// true (an error, which is either a recognized ServiceError or an
// interface-specific error to be decoded with As).
type Outcome struct {
	Params    json.RawMessage
	Continues bool

	errorName string
	errorRaw  json.RawMessage
	Service   *ServiceError
}

// IsError reports whether the reply was an error (built-in or user).
func (o Outcome) IsError() bool {
	return o.errorName != ""
}

// DecodeParams unmarshals a successful reply's parameters into v.
func (o Outcome) DecodeParams(v interface{}) error {
	if len(o.Params) == 0 {
		return nil
	}
	return json.Unmarshal(o.Params, v)
}

// As attempts to unmarshal a non-built-in error outcome into e, a
// user/generator-produced error sum type. It reports false when the outcome
// isn't an error, or when it matched a built-in org.varlink.service error
// instead (use Outcome.Service in that case).
func (o Outcome) As(e WireError) (bool, error) {
	if o.errorName == "" || o.Service != nil {
		return false, nil
	}
	return e.UnmarshalVarlinkError(o.errorName, o.errorRaw)
}

// ErrorName returns the wire error name, or "" if this outcome isn't an
// error.
func (o Outcome) ErrorName() string {
	return o.errorName
}
