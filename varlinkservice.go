package zlink

import (
	"context"
	_ "embed"
	"encoding/json"
	"sort"
	"strings"

	"git.sr.ht/~varlinkrt/zlink-go/idl"
	"git.sr.ht/~varlinkrt/zlink-go/internal/zlinkcfg"
)

//go:embed org.varlink.service.varlink
var serviceDefinitionText string

const (
	errInterfaceNotFound    = "org.varlink.service.InterfaceNotFound"
	errMethodNotFound       = "org.varlink.service.MethodNotFound"
	errMethodNotImplemented = "org.varlink.service.MethodNotImplemented"
	errInvalidParameter     = "org.varlink.service.InvalidParameter"
	errPermissionDenied     = "org.varlink.service.PermissionDenied"
	errExpectedMore         = "org.varlink.service.ExpectedMore"
	serviceInterfaceName    = "org.varlink.service"
)

var builtinServiceErrorNames = map[string]bool{
	errInterfaceNotFound:    true,
	errMethodNotFound:       true,
	errMethodNotImplemented: true,
	errInvalidParameter:     true,
	errPermissionDenied:     true,
	errExpectedMore:         true,
}

// InterfaceNotFound builds the wire body for org.varlink.service.InterfaceNotFound.
func InterfaceNotFound(iface string) (string, interface{}) {
	return errInterfaceNotFound, map[string]string{"interface": iface}
}

// MethodNotFound builds the wire body for org.varlink.service.MethodNotFound.
func MethodNotFound(method string) (string, interface{}) {
	return errMethodNotFound, map[string]string{"method": method}
}

// MethodNotImplemented builds the wire body for org.varlink.service.MethodNotImplemented.
func MethodNotImplemented(method string) (string, interface{}) {
	return errMethodNotImplemented, map[string]string{"method": method}
}

// InvalidParameter builds the wire body for org.varlink.service.InvalidParameter.
func InvalidParameter(param string) (string, interface{}) {
	return errInvalidParameter, map[string]string{"parameter": param}
}

// PermissionDenied builds the wire body for org.varlink.service.PermissionDenied.
func PermissionDenied() (string, interface{}) {
	return errPermissionDenied, nil
}

// ExpectedMore builds the wire body for org.varlink.service.ExpectedMore.
func ExpectedMore() (string, interface{}) {
	return errExpectedMore, nil
}

// InterfaceHandler is what a generated or hand-written package registers
// with a Registry: dispatch for one interface's methods.
type InterfaceHandler interface {
	// InterfaceName returns the interface-dotted name this handler serves,
	// e.g. "org.example.ftl".
	InterfaceName() string
	// NewMethodCall returns a fresh MethodCall for this interface's methods.
	NewMethodCall() MethodCall
	// Handle dispatches one decoded call belonging to this interface.
	Handle(ctx context.Context, call Call, methodCall MethodCall) MethodReply
	// Descriptor returns this interface's introspection descriptor, or nil
	// if none is available for the configured IDL surface level.
	Descriptor() *idl.Interface
}

// RegistryOptions describes a service for org.varlink.service.GetInfo.
type RegistryOptions struct {
	Vendor  string
	Product string
	Version string
	URL     string

	// IDLSurface caps how much introspection machinery GetInterfaceDescription
	// exposes (spec §6's IDL surface configuration knob). The zero value,
	// IDLDescriptorsAndParser, is the fullest surface.
	IDLSurface zlinkcfg.IDLSurface
}

// Registry composes multiple InterfaceHandlers (including the built-in
// org.varlink.service interface, added automatically) into a single Service,
// dispatching each incoming call to the handler for its method's interface
// prefix.
type Registry struct {
	options  RegistryOptions
	order    []string
	handlers map[string]InterfaceHandler
}

// NewRegistry creates a Registry that always serves org.varlink.service in
// addition to whatever is later added with Add.
func NewRegistry(opts RegistryOptions) *Registry {
	r := &Registry{options: opts, handlers: make(map[string]InterfaceHandler)}
	r.Add(&builtinServiceHandler{registry: r})
	return r
}

// Add registers h, replacing any previous handler for the same interface
// name.
func (r *Registry) Add(h InterfaceHandler) {
	name := h.InterfaceName()
	if _, exists := r.handlers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.handlers[name] = h
}

// InterfaceNames returns the registered interface names, in registration
// order.
func (r *Registry) InterfaceNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func splitMethod(method string) (iface, name string, ok bool) {
	i := strings.LastIndexByte(method, '.')
	if i < 0 {
		return "", "", false
	}
	return method[:i], method[i+1:], true
}

type registryMethodCall struct {
	registry *Registry
	handler  InterfaceHandler
	inner    MethodCall
}

func (m *registryMethodCall) UnmarshalVarlinkMethod(method string, params json.RawMessage) (bool, error) {
	ifaceName, _, ok := splitMethod(method)
	if !ok {
		return false, nil
	}
	h, ok := m.registry.handlers[ifaceName]
	if !ok {
		return false, nil
	}
	inner := h.NewMethodCall()
	innerOK, err := inner.UnmarshalVarlinkMethod(method, params)
	if err != nil {
		return false, err
	}
	if !innerOK {
		return false, nil
	}
	m.handler = h
	m.inner = inner
	return true, nil
}

// NewMethodCall implements Service.
func (r *Registry) NewMethodCall() MethodCall {
	return &registryMethodCall{registry: r}
}

// Handle implements Service, routing to the matched interface's handler. When
// no handler claimed the call's method it synthesizes InterfaceNotFound if
// the method's interface isn't registered, and MethodNotFound otherwise.
func (r *Registry) Handle(ctx context.Context, call Call, mc MethodCall) MethodReply {
	rmc, ok := mc.(*registryMethodCall)
	if !ok || rmc.handler == nil {
		if ifaceName, _, split := splitMethod(call.Method); split {
			if _, known := r.handlers[ifaceName]; !known {
				name, body := InterfaceNotFound(ifaceName)
				return ErrorReply(name, body)
			}
		}
		name, body := MethodNotFound(call.Method)
		return ErrorReply(name, body)
	}
	return rmc.handler.Handle(ctx, call, rmc.inner)
}

// builtin org.varlink.service interface.

type getInfoOut struct {
	Vendor     string   `json:"vendor"`
	Product    string   `json:"product"`
	Version    string   `json:"version"`
	URL        string   `json:"url"`
	Interfaces []string `json:"interfaces"`
}

type getInterfaceDescriptionIn struct {
	Interface string `json:"interface"`
}

type getInterfaceDescriptionOut struct {
	Description string `json:"description"`
}

type builtinServiceMethodCall struct {
	method string
	getInterfaceDescriptionIn
}

func (m *builtinServiceMethodCall) UnmarshalVarlinkMethod(method string, params json.RawMessage) (bool, error) {
	_, name, ok := splitMethod(method)
	if !ok || name != "GetInfo" && name != "GetInterfaceDescription" {
		return false, nil
	}
	m.method = name
	if name == "GetInterfaceDescription" && len(params) > 0 {
		if err := json.Unmarshal(params, &m.getInterfaceDescriptionIn); err != nil {
			return true, err
		}
	}
	return true, nil
}

type builtinServiceHandler struct {
	registry *Registry
}

func (h *builtinServiceHandler) InterfaceName() string { return serviceInterfaceName }

func (h *builtinServiceHandler) NewMethodCall() MethodCall {
	return &builtinServiceMethodCall{}
}

func (h *builtinServiceHandler) Handle(ctx context.Context, call Call, mc MethodCall) MethodReply {
	bmc, ok := mc.(*builtinServiceMethodCall)
	if !ok {
		name, body := MethodNotFound(call.Method)
		return ErrorReply(name, body)
	}

	switch bmc.method {
	case "GetInfo":
		names := h.registry.InterfaceNames()
		sorted := append([]string(nil), names...)
		sort.Strings(sorted)
		return SingleReply(getInfoOut{
			Vendor:     h.registry.options.Vendor,
			Product:    h.registry.options.Product,
			Version:    h.registry.options.Version,
			URL:        h.registry.options.URL,
			Interfaces: sorted,
		})
	case "GetInterfaceDescription":
		if h.registry.options.IDLSurface == zlinkcfg.IDLOff {
			name, body := MethodNotImplemented(call.Method)
			return ErrorReply(name, body)
		}
		if bmc.Interface == serviceInterfaceName {
			return SingleReply(getInterfaceDescriptionOut{Description: serviceDefinitionText})
		}
		target, ok := h.registry.handlers[bmc.Interface]
		if !ok {
			name, body := InterfaceNotFound(bmc.Interface)
			return ErrorReply(name, body)
		}
		desc := target.Descriptor()
		if desc == nil {
			name, body := MethodNotImplemented(call.Method)
			return ErrorReply(name, body)
		}
		return SingleReply(getInterfaceDescriptionOut{Description: desc.String()})
	default:
		name, body := MethodNotFound(call.Method)
		return ErrorReply(name, body)
	}
}

func (h *builtinServiceHandler) Descriptor() *idl.Interface {
	iface, err := idl.Read(strings.NewReader(serviceDefinitionText))
	if err != nil {
		return nil
	}
	return iface
}
