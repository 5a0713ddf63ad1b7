package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDeviceUnavailable indicates the capture device could not be opened:
// permission denied, device busy, or the capture tool is missing.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

const (
	// firstReadBytes bounds the read Open uses to confirm audio is flowing.
	firstReadBytes = 4096
	// DefaultOpenTimeout is how long Open waits for the first audio before
	// handing back the stream anyway.
	DefaultOpenTimeout = 2 * time.Second
	// closeGrace is how long a killed capture process may keep its stdout
	// open (a child still holding it) before the pipe is closed on it.
	closeGrace = 2 * time.Second
)

// Device opens a stream of little-endian signed 16-bit mono PCM from an input.
// Closing the stream stops capture; reads then drain what was already
// captured and end with io.EOF.
type Device interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// CommandDevice captures audio by running an external recorder (arecord,
// sox, ffmpeg, ...) that writes raw PCM to stdout.
type CommandDevice struct {
	name        string
	args        []string
	openTimeout time.Duration
}

// NewCommandDevice parses a whitespace-separated command line such as
// "arecord -q -f S16_LE -r 16000 -c 1 -t raw".
func NewCommandDevice(commandLine string) (*CommandDevice, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty capture command", ErrDeviceUnavailable)
	}
	return &CommandDevice{name: fields[0], args: fields[1:], openTimeout: DefaultOpenTimeout}, nil
}

// Open starts the capture process and waits for its first audio. A process
// that exits before producing any, such as a recorder reporting a busy or
// forbidden device, fails with ErrDeviceUnavailable carrying its stderr. If
// no audio arrives within the open timeout the stream is returned anyway.
func (d *CommandDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, d.name, d.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	cmd.WaitDelay = closeGrace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrDeviceUnavailable, d.name, err)
	}

	s := &commandStream{cmd: cmd, stdout: stdout, stderr: stderr, first: make(chan firstRead, 1)}
	go s.readFirst()

	timer := time.NewTimer(d.openTimeout)
	defer timer.Stop()

	select {
	case fr := <-s.first:
		s.first = nil
		if len(fr.data) == 0 && fr.err != nil {
			return nil, s.failure(fr.err)
		}
		s.pending, s.pendingErr = fr.data, fr.err
		return s, nil
	case <-timer.C:
		return s, nil
	case <-ctx.Done():
		_ = s.Close()
		<-s.first
		s.reap()
		return nil, ctx.Err()
	}
}

type firstRead struct {
	data []byte
	err  error
}

// commandStream reads the capture process's stdout. Reads are made from one
// goroutine; the reader reaps the process once stdout is exhausted.
type commandStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *lockedBuffer

	// first carries the read started by Open; nil once consumed.
	first      chan firstRead
	pending    []byte
	pendingErr error
	endErr     error

	killed   atomic.Bool
	killOnce sync.Once
	reapOnce sync.Once
	waitErr  error
}

func (s *commandStream) readFirst() {
	buf := make([]byte, firstReadBytes)
	n, err := s.stdout.Read(buf)
	s.first <- firstRead{data: buf[:n], err: err}
}

func (s *commandStream) Read(p []byte) (int, error) {
	if s.endErr != nil {
		return 0, s.endErr
	}
	if s.first != nil {
		fr := <-s.first
		s.first = nil
		s.pending, s.pendingErr = fr.data, fr.err
	}
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		return n, nil
	}
	if s.pendingErr != nil {
		s.endErr = s.finish(s.pendingErr)
		return 0, s.endErr
	}

	n, err := s.stdout.Read(p)
	if err != nil {
		s.endErr = s.finish(err)
		return n, s.endErr
	}
	return n, nil
}

// finish reaps the process after stdout is exhausted. Capture ending after
// Close is a clean EOF; ending on its own means the device went away.
func (s *commandStream) finish(readErr error) error {
	s.reap()
	if s.killed.Load() {
		return io.EOF
	}
	return s.failure(readErr)
}

// failure reaps the process and describes why it stopped capturing. Only
// valid once stdout has returned an error.
func (s *commandStream) failure(readErr error) error {
	s.reap()
	msg := strings.TrimSpace(s.stderr.String())
	switch {
	case msg != "":
	case s.waitErr != nil:
		msg = s.waitErr.Error()
	case !errors.Is(readErr, io.EOF):
		msg = readErr.Error()
	default:
		msg = "capture command exited"
	}
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, msg)
}

func (s *commandStream) reap() {
	s.reapOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
}

// Close stops the capture process. It does not wait for it; the reader sees
// io.EOF once the process's output is drained and reaps it then.
func (s *commandStream) Close() error {
	s.killOnce.Do(func() {
		s.killed.Store(true)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		time.AfterFunc(closeGrace, func() { _ = s.stdout.Close() })
	})
	return nil
}

// lockedBuffer collects stderr written by exec's copy goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
