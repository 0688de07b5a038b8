package zlink

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSocket is an in-memory, single-direction byte pipe used to drive
// Connection in tests without a real transport.
type memSocket struct {
	r io.Reader
	w *bytes.Buffer
}

func (s *memSocket) Read(ctx context.Context, p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *memSocket) WriteAll(ctx context.Context, p []byte) error {
	_, err := s.w.Write(p)
	return err
}

func (s *memSocket) Flush(ctx context.Context) error { return nil }

func newTestConnection(incoming string) (*ReadConnection, *WriteConnection, *bytes.Buffer) {
	out := &bytes.Buffer{}
	sock := &memSocket{r: bytes.NewReader([]byte(incoming)), w: out}
	id := newConnID()
	rc := newReadConnection(sock, NewBuffer(ProfileHeap, Class2KiB), id)
	wc := newWriteConnection(sock, id)
	return rc, wc, out
}

func TestReceiveCallDecodesMethodAndParameters(t *testing.T) {
	rc, _, _ := newTestConnection(`{"method":"org.example.Foo","parameters":{"x":1}}` + "\x00")

	call, err := rc.ReceiveCall(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "org.example.Foo", call.Method)
	assert.JSONEq(t, `{"x":1}`, string(call.Parameters))
}

func TestReceiveCallDisconnectedOnEOF(t *testing.T) {
	rc, _, _ := newTestConnection("")
	_, err := rc.ReceiveCall(context.Background(), nil)
	require.Error(t, err)
	var zerr *Error
	require.ErrorAs(t, err, &zerr)
	assert.Equal(t, Disconnected, zerr.Kind)
}

func TestReceiveCallRejectsErrorFrame(t *testing.T) {
	rc, _, _ := newTestConnection(`{"error":"org.varlink.service.MethodNotFound"}` + "\x00")
	_, err := rc.ReceiveCall(context.Background(), nil)
	require.Error(t, err)
	var zerr *Error
	require.ErrorAs(t, err, &zerr)
	assert.Equal(t, ProtocolViolation, zerr.Kind)
}

func TestSendReplyFramesWithNUL(t *testing.T) {
	_, wc, out := newTestConnection("")
	reply, err := NewReply(map[string]int{"ok": 1})
	require.NoError(t, err)

	require.NoError(t, wc.SendReply(context.Background(), reply))
	assert.Equal(t, byte(0), out.Bytes()[out.Len()-1])
	assert.JSONEq(t, `{"parameters":{"ok":1}}`, string(out.Bytes()[:out.Len()-1]))
}

func TestReceiveReplyClassifiesBuiltinServiceError(t *testing.T) {
	rc, _, _ := newTestConnection(`{"error":"org.varlink.service.InvalidParameter","parameters":{"parameter":"x"}}` + "\x00")

	outcome, err := rc.ReceiveReply(context.Background())
	require.NoError(t, err)
	require.True(t, outcome.IsError())
	require.NotNil(t, outcome.Service)
	assert.Equal(t, "org.varlink.service.InvalidParameter", outcome.Service.Name)
}

func TestEnqueueAndFlushBatchesOneWrite(t *testing.T) {
	_, wc, out := newTestConnection("")

	call1, err := NewCall("org.example.A", nil)
	require.NoError(t, err)
	call2, err := NewCall("org.example.B", nil)
	require.NoError(t, err)

	require.NoError(t, wc.EnqueueCall(call1))
	require.NoError(t, wc.EnqueueCall(call2))
	assert.Zero(t, out.Len(), "nothing written before flush")

	require.NoError(t, wc.FlushEnqueued(context.Background()))
	assert.Contains(t, out.String(), "org.example.A")
	assert.Contains(t, out.String(), "org.example.B")
}
