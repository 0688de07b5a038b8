package zlink

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~varlinkrt/zlink-go/idl"
	"git.sr.ht/~varlinkrt/zlink-go/internal/zlinkcfg"
)

type fakeMoreMethodCall struct {
	method string
	params json.RawMessage
}

func (c *fakeMoreMethodCall) UnmarshalVarlinkMethod(method string, params json.RawMessage) (bool, error) {
	if method != "org.example.more.Ping" {
		return false, nil
	}
	c.method = method
	c.params = params
	return true, nil
}

type pingHandler struct{}

func (pingHandler) InterfaceName() string { return "org.example.more" }

func (pingHandler) NewMethodCall() MethodCall { return &fakeMoreMethodCall{} }

func (pingHandler) Handle(ctx context.Context, call Call, mc MethodCall) MethodReply {
	return SingleReply(map[string]string{"pong": "ok"})
}

func (pingHandler) Descriptor() *idl.Interface {
	return &idl.Interface{Name: "org.example.more"}
}

func TestRegistryDispatchesToMatchingHandler(t *testing.T) {
	reg := NewRegistry(RegistryOptions{Vendor: "Test", Product: "zlink"})
	reg.Add(pingHandler{})

	mc := reg.NewMethodCall()
	ok, err := mc.UnmarshalVarlinkMethod("org.example.more.Ping", nil)
	require.NoError(t, err)
	require.True(t, ok)

	call := Call{Method: "org.example.more.Ping"}
	reply := reg.Handle(context.Background(), call, mc)
	require.Equal(t, replySingle, reply.kind)

	params, err := json.Marshal(reply.single)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pong":"ok"}`, string(params))
}

func TestRegistryUnknownMethodYieldsMethodNotFound(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	reg.Add(pingHandler{})

	mc := reg.NewMethodCall()
	call := Call{Method: "org.example.more.Foo"}
	_, _ = mc.UnmarshalVarlinkMethod(call.Method, nil)

	reply := reg.Handle(context.Background(), call, mc)
	require.Equal(t, replyError, reply.kind)
	assert.Equal(t, errMethodNotFound, reply.errName)
}

func TestBuiltinGetInfoListsRegisteredInterfaces(t *testing.T) {
	reg := NewRegistry(RegistryOptions{Vendor: "Test", Product: "zlink", Version: "0.1"})
	reg.Add(pingHandler{})

	mc := reg.NewMethodCall()
	ok, err := mc.UnmarshalVarlinkMethod("org.varlink.service.GetInfo", nil)
	require.NoError(t, err)
	require.True(t, ok)

	reply := reg.Handle(context.Background(), Call{Method: "org.varlink.service.GetInfo"}, mc)
	require.Equal(t, replySingle, reply.kind)

	out, ok := reply.single.(getInfoOut)
	require.True(t, ok)
	assert.Equal(t, "Test", out.Vendor)
	assert.Contains(t, out.Interfaces, "org.example.more")
	assert.Contains(t, out.Interfaces, serviceInterfaceName)
}

func TestBuiltinGetInterfaceDescriptionFailsForUnknownInterface(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})

	mc := reg.NewMethodCall()
	params, _ := json.Marshal(map[string]string{"interface": "org.example.nope"})
	ok, err := mc.UnmarshalVarlinkMethod("org.varlink.service.GetInterfaceDescription", params)
	require.NoError(t, err)
	require.True(t, ok)

	reply := reg.Handle(context.Background(), Call{Method: "org.varlink.service.GetInterfaceDescription"}, mc)
	require.Equal(t, replyError, reply.kind)
	assert.Equal(t, errInterfaceNotFound, reply.errName)
}

func TestBuiltinGetInterfaceDescriptionRoundTripsOwnIDL(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})

	mc := reg.NewMethodCall()
	params, _ := json.Marshal(map[string]string{"interface": serviceInterfaceName})
	ok, err := mc.UnmarshalVarlinkMethod("org.varlink.service.GetInterfaceDescription", params)
	require.NoError(t, err)
	require.True(t, ok)

	reply := reg.Handle(context.Background(), Call{Method: "org.varlink.service.GetInterfaceDescription"}, mc)
	require.Equal(t, replySingle, reply.kind)

	out, ok := reply.single.(getInterfaceDescriptionOut)
	require.True(t, ok)
	assert.Contains(t, out.Description, "interface org.varlink.service")

	reparsed, err := idl.Read(strings.NewReader(out.Description))
	require.NoError(t, err)
	assert.Equal(t, serviceInterfaceName, reparsed.Name)
}

func TestBuiltinGetInterfaceDescriptionDisabledByIDLSurface(t *testing.T) {
	reg := NewRegistry(RegistryOptions{IDLSurface: zlinkcfg.IDLOff})

	mc := reg.NewMethodCall()
	params, _ := json.Marshal(map[string]string{"interface": serviceInterfaceName})
	ok, err := mc.UnmarshalVarlinkMethod("org.varlink.service.GetInterfaceDescription", params)
	require.NoError(t, err)
	require.True(t, ok)

	reply := reg.Handle(context.Background(), Call{Method: "org.varlink.service.GetInterfaceDescription"}, mc)
	require.Equal(t, replyError, reply.kind)
	assert.Equal(t, errMethodNotImplemented, reply.errName)
}
