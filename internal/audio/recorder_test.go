package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream yields data once and then blocks until closed, like a live
// microphone with nothing more to say. With err set it fails instead of
// blocking, like a device that went away.
type fakeStream struct {
	mu     sync.Mutex
	data   []byte
	err    error
	closed chan struct{}
	once   sync.Once
}

func (s *fakeStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.data) > 0 {
		n := copy(p, s.data)
		s.data = s.data[n:]
		s.mu.Unlock()
		return n, nil
	}
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	<-s.closed
	return 0, io.EOF
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeDevice struct {
	mu      sync.Mutex
	data    []byte
	err     error
	readErr error
	opened  int
	streams []*fakeStream
}

func (d *fakeDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened++
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeStream{data: append([]byte(nil), d.data...), err: d.readErr, closed: make(chan struct{})}
	d.streams = append(d.streams, s)
	return s, nil
}

func newTestRecorder(t *testing.T, dev Device) (*Recorder, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "recordings")
	r, err := NewRecorder(RecorderConfig{Dir: dir, SampleRate: 16000, Device: dev})
	require.NoError(t, err)
	return r, dir
}

func TestRecorder_StartStop(t *testing.T) {
	loud := pcmOf(16384, -16384, 16384, -16384)
	dev := &fakeDevice{data: loud}
	r, dir := newTestRecorder(t, dev)

	path, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Active())
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "recording_"))
	assert.Equal(t, ".wav", filepath.Ext(path))

	require.Eventually(t, func() bool { return r.Level() > SilenceFloorDB }, time.Second, 5*time.Millisecond)
	assert.InDelta(t, -6.02, r.Level(), 0.01)

	stopped, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, path, stopped)
	assert.False(t, r.Active())
	assert.Equal(t, SilenceFloorDB, r.Level())
	assert.Zero(t, r.Elapsed())

	pcm, rate, err := ReadPCM(stopped)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, loud, pcm)
}

func TestRecorder_StopWhenIdle(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeDevice{})

	_, err := r.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestRecorder_RestartDiscardsActiveSession(t *testing.T) {
	dev := &fakeDevice{data: pcmOf(1, 2, 3)}
	r, dir := newTestRecorder(t, dev)

	first, err := r.Start(context.Background())
	require.NoError(t, err)
	second, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.True(t, r.Active())

	_, err = os.Stat(first)
	assert.ErrorIs(t, err, os.ErrNotExist, "discarded recording is removed")

	_, err = r.Stop()
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(second), entries[0].Name())
	assert.Equal(t, 2, dev.opened)
}

func TestRecorder_UniqueNamesWithinSameInstant(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeDevice{})
	fixed := time.Unix(1700000000, 42)
	r.clock = func() time.Time { return fixed }

	first, err := r.Start(context.Background())
	require.NoError(t, err)
	_, err = r.Stop()
	require.NoError(t, err)

	second, err := r.Start(context.Background())
	require.NoError(t, err)
	_, err = r.Stop()
	require.NoError(t, err)

	assert.Equal(t, "recording_1700000000000000042.wav", filepath.Base(first))
	assert.Equal(t, "recording_1700000000000000042_1.wav", filepath.Base(second))
}

func TestRecorder_DeviceFailure(t *testing.T) {
	dev := &fakeDevice{err: errors.New("permission denied")}
	r, dir := newTestRecorder(t, dev)

	path, err := r.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Empty(t, path)
	assert.False(t, r.Active())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial file is left behind")
}

func TestRecorder_Elapsed(t *testing.T) {
	r, _ := newTestRecorder(t, &fakeDevice{})
	now := time.Unix(1700000000, 0)
	var mu sync.Mutex
	r.clock = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	_, err := r.Start(context.Background())
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(1500 * time.Millisecond)
	mu.Unlock()
	assert.Equal(t, 1500*time.Millisecond, r.Elapsed())

	_, err = r.Stop()
	require.NoError(t, err)
}

func TestNewRecorder_RequiresDevice(t *testing.T) {
	_, err := NewRecorder(RecorderConfig{Dir: t.TempDir()})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestNewCommandDevice(t *testing.T) {
	_, err := NewCommandDevice("   ")
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	d, err := NewCommandDevice("arecord -q -f S16_LE")
	require.NoError(t, err)
	assert.Equal(t, "arecord", d.name)
	assert.Equal(t, []string{"-q", "-f", "S16_LE"}, d.args)
}

func TestCommandDevice_MissingBinary(t *testing.T) {
	d, err := NewCommandDevice("voxmemo-no-such-capture-tool -r 16000")
	require.NoError(t, err)

	_, err = d.Open(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestCommandDevice_StreamsStdout(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	d, err := NewCommandDevice("cat /dev/zero")
	require.NoError(t, err)

	stream, err := d.Open(context.Background())
	require.NoError(t, err)

	buf := make([]byte, 64)
	_, err = io.ReadFull(stream, buf)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 64), buf)
	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())

	// After Close the rest drains and ends cleanly.
	_, err = io.Copy(io.Discard, stream)
	assert.NoError(t, err)
}

// captureScript writes an executable shell script standing in for a capture
// tool.
func captureScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "capture.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func (r *Recorder) captureErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readErr
}

func TestCommandDevice_BusyDeviceFailsOpen(t *testing.T) {
	script := captureScript(t, `echo "audio open error: Device or resource busy" >&2; exit 1`)
	d, err := NewCommandDevice(script)
	require.NoError(t, err)

	stream, err := d.Open(context.Background())
	require.Error(t, err)
	assert.Nil(t, stream)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "Device or resource busy")
}

func TestCommandDevice_SilentExitFailsOpen(t *testing.T) {
	script := captureScript(t, `exit 0`)
	d, err := NewCommandDevice(script)
	require.NoError(t, err)

	_, err = d.Open(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestCommandDevice_SlowStartStillOpens(t *testing.T) {
	script := captureScript(t, `exec sleep 5`)
	d, err := NewCommandDevice(script)
	require.NoError(t, err)
	d.openTimeout = 50 * time.Millisecond

	stream, err := d.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	pcm, err := io.ReadAll(stream)
	assert.NoError(t, err)
	assert.Empty(t, pcm)
}

func TestRecorder_BusyDeviceFailsStart(t *testing.T) {
	script := captureScript(t, `echo "audio open error: Device or resource busy" >&2; exit 1`)
	dev, err := NewCommandDevice(script)
	require.NoError(t, err)
	r, dir := newTestRecorder(t, dev)

	path, err := r.Start(context.Background())
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "Device or resource busy")
	assert.Empty(t, path)
	assert.False(t, r.Active())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecorder_StopKeepsTrailingAudio(t *testing.T) {
	script := captureScript(t, `printf '\001\002\003\004'; exec sleep 5`)
	dev, err := NewCommandDevice(script)
	require.NoError(t, err)
	r, _ := newTestRecorder(t, dev)

	_, err = r.Start(context.Background())
	require.NoError(t, err)

	path, err := r.Stop()
	require.NoError(t, err)
	pcm, _, err := ReadPCM(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, pcm)
}

func TestRecorder_DeviceLostBeforeAudio(t *testing.T) {
	dev := &fakeDevice{readErr: fmt.Errorf("%w: Device or resource busy", ErrDeviceUnavailable)}
	r, _ := newTestRecorder(t, dev)

	started, err := r.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.captureErr() != nil }, time.Second, 5*time.Millisecond)

	path, err := r.Stop()
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "Device or resource busy")
	assert.Equal(t, started, path, "the caller still owns the file")
	assert.False(t, r.Active())
}

func TestRecorder_DeviceLostAfterAudioKeepsRecording(t *testing.T) {
	loud := pcmOf(16384, -16384)
	dev := &fakeDevice{data: loud, readErr: errors.New("input overrun")}
	r, _ := newTestRecorder(t, dev)

	_, err := r.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.captureErr() != nil }, time.Second, 5*time.Millisecond)

	path, err := r.Stop()
	require.NoError(t, err)
	pcm, _, err := ReadPCM(path)
	require.NoError(t, err)
	assert.Equal(t, loud, pcm)
}

func TestChunkBytesFollowsSampleRate(t *testing.T) {
	assert.Equal(t, 1600, ChunkBytes(16000))
	assert.Equal(t, 4410, ChunkBytes(44100))
	assert.Equal(t, BytesPerSample, ChunkBytes(1))
}
