package zlink_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zlink "git.sr.ht/~varlinkrt/zlink-go"
	"git.sr.ht/~varlinkrt/zlink-go/internal/zlinkcfg"
	"git.sr.ht/~varlinkrt/zlink-go/transport/streamsock"
)

type countingStream struct {
	remaining int
}

func (s *countingStream) Next(ctx context.Context) (interface{}, bool, error) {
	if s.remaining == 0 {
		return nil, false, nil
	}
	s.remaining--
	return map[string]int{"n": s.remaining}, true, nil
}

type streamingService struct{}

func (streamingService) NewMethodCall() zlink.MethodCall { return &echoMethodCall{} }

func (streamingService) Handle(ctx context.Context, call zlink.Call, mc zlink.MethodCall) zlink.MethodReply {
	if call.More {
		return zlink.MultiReply(&countingStream{remaining: 3})
	}
	return zlink.SingleReply(nil)
}

func dialTestServer(t *testing.T, svc zlink.Service) *zlink.Proxy {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	ln := &chanListener{ch: make(chan net.Conn, 1)}
	ln.ch <- serverConn

	srv := zlink.NewServer(ln, svc, zlinkcfg.New())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)

	return zlink.NewProxy(zlink.NewConnection(streamsock.New(clientConn), zlink.ProfileHeap, zlink.Class2KiB))
}

func TestChainPreservesFIFOReplyOrder(t *testing.T) {
	proxy := dialTestServer(t, echoService{})

	chain := proxy.Chain()
	r1, err := chain.Call("org.example.Echo", map[string]int{"i": 1})
	require.NoError(t, err)
	r2, err := chain.Call("org.example.Echo", map[string]int{"i": 2})
	require.NoError(t, err)
	r3, err := chain.Call("org.example.Echo", map[string]int{"i": 3})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, chain.Flush(ctx))

	for i, r := range []*zlink.ChainReply{r1, r2, r3} {
		outcome, err := r.Wait(ctx)
		require.NoError(t, err)
		require.False(t, outcome.IsError())

		var out struct {
			Echo struct {
				I int `json:"i"`
			} `json:"echo"`
		}
		require.NoError(t, outcome.DecodeParams(&out))
		assert.Equal(t, i+1, out.Echo.I)
	}
}

func TestChainOnewayConsumesNoReplySlot(t *testing.T) {
	proxy := dialTestServer(t, echoService{})

	chain := proxy.Chain()
	require.NoError(t, chain.CallOneway("org.example.Echo", map[string]int{"i": 1}))
	r, err := chain.Call("org.example.Echo", map[string]int{"i": 2})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, chain.Flush(ctx))

	outcome, err := r.Wait(ctx)
	require.NoError(t, err)

	var out struct {
		Echo struct {
			I int `json:"i"`
		} `json:"echo"`
	}
	require.NoError(t, outcome.DecodeParams(&out))
	assert.Equal(t, 2, out.Echo.I)
}

func TestChainFlushRejectsBatchingWhenPipeliningDisabled(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	ln := &chanListener{ch: make(chan net.Conn, 1)}
	ln.ch <- serverConn

	srv := zlink.NewServer(ln, echoService{}, zlinkcfg.New())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)

	proxy := zlink.NewProxyWithConfig(
		zlink.NewConnection(streamsock.New(clientConn), zlink.ProfileHeap, zlink.Class2KiB),
		zlinkcfg.New(), // Pipelining defaults to false
	)

	chain := proxy.Chain()
	_, err := chain.Call("org.example.Echo", map[string]int{"i": 1})
	require.NoError(t, err)
	_, err = chain.Call("org.example.Echo", map[string]int{"i": 2})
	require.NoError(t, err)

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer flushCancel()
	err = chain.Flush(flushCtx)
	require.Error(t, err)
}

func TestDoMoreStreamsContinuationsThenTerminates(t *testing.T) {
	proxy := dialTestServer(t, streamingService{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	call, err := proxy.DoMore(ctx, "org.example.Watch", nil)
	require.NoError(t, err)

	var got []json.RawMessage
	for {
		outcome, ok, err := call.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, outcome.Params)
		if !outcome.Continues {
			break
		}
	}
	assert.Len(t, got, 4) // 3 continuations + the empty terminator
}
