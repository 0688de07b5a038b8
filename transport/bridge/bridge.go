// Package bridge runs a varlink service as a subprocess and speaks to it
// over its stdin/stdout pipes, standing in for the spec's "USB" transport
// profile in environments without a real USB gadget link. Grounded on
// varlink-go's PipeCon/NewBridge.
package bridge

import (
	"context"
	"io"
	"os"
	"os/exec"

	"git.sr.ht/~varlinkrt/zlink-go"
)

// Socket is a subprocess's stdin/stdout pair, adapted to zlink.Socket.
type Socket struct {
	cmd    *exec.Cmd
	reader io.ReadCloser
	writer io.WriteCloser
}

// Dial starts command (run through "sh -c") and wires its stdio as a
// zlink.Socket. The subprocess's stderr is inherited.
func Dial(command string) (*Socket, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Stderr = os.Stderr

	r, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	w, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &Socket{cmd: cmd, reader: r, writer: w}, nil
}

// Split implements zlink.Socket.
func (s *Socket) Split() (zlink.ReadHalf, zlink.WriteHalf) {
	return &readHalf{r: s.reader}, &writeHalf{w: s.writer}
}

// Close closes both pipes and waits for the subprocess to exit.
func (s *Socket) Close() error {
	rerr := s.reader.Close()
	werr := s.writer.Close()
	s.cmd.Wait()
	if rerr != nil {
		return rerr
	}
	return werr
}

type readHalf struct {
	r io.ReadCloser
}

func (h *readHalf) Read(ctx context.Context, p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := h.r.Read(p)
		ch <- result{n, err}
	}()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type writeHalf struct {
	w io.WriteCloser
}

func (h *writeHalf) WriteAll(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		n, err := h.w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Flush is a no-op: the pipe has no internal buffering to flush.
func (h *writeHalf) Flush(ctx context.Context) error { return nil }
