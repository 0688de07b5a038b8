package zlink

import "encoding/json"

// Call is an inbound or outbound method invocation at the wire-framing
// layer. At most one of Oneway, More, Upgrade may be true.
type Call struct {
	Method     string          `json:"method"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Oneway     bool            `json:"oneway,omitempty"`
	More       bool            `json:"more,omitempty"`
	Upgrade    bool            `json:"upgrade,omitempty"`
}

// validate enforces the mutual-exclusion invariant between Oneway, More and
// Upgrade.
func (c Call) validate() error {
	set := 0
	if c.Oneway {
		set++
	}
	if c.More {
		set++
	}
	if c.Upgrade {
		set++
	}
	if set > 1 {
		return &Error{Kind: ProtocolViolation, Detail: "call sets more than one of oneway/more/upgrade"}
	}
	return nil
}

// NewCall builds a Call for method with the given parameters, which must
// marshal to a JSON object (or nil).
func NewCall(method string, params interface{}) (Call, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return Call{}, wrapErr(FrameMalformed, err)
		}
		raw = b
	}
	return Call{Method: method, Parameters: raw}, nil
}

// MethodCall is implemented by a user- or generator-produced sum type
// representing all of an interface's method-name-to-parameter-shape
// combinations (spec's "MethodCall" associated shape). UnmarshalVarlinkMethod
// populates the receiver from the wire method name and raw parameters; it
// reports ok=false when method doesn't belong to this interface at all, so
// the Server can distinguish "unknown method" from a parameter decode
// failure.
type MethodCall interface {
	UnmarshalVarlinkMethod(method string, parameters json.RawMessage) (ok bool, err error)
}

// WireError is implemented by a user- or generator-produced sum type
// representing an interface's declared error variants (spec's "ReplyError"
// associated shape). UnmarshalVarlinkError populates the receiver from the
// wire error name and raw parameters; it reports ok=false when name isn't
// one of this type's variants.
type WireError interface {
	error
	UnmarshalVarlinkError(name string, parameters json.RawMessage) (ok bool, err error)
}
