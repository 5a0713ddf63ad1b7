package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/voxmemo/internal/logging"
)

// ErrNotRecording is returned by Stop when no session is active.
var ErrNotRecording = errors.New("not recording")

// ChunkBytes returns the size of 50ms of mono S16LE audio at sampleRate. The
// device is read in chunks of this size, roughly one sample tick.
func ChunkBytes(sampleRate int) int {
	n := sampleRate / 20 * BytesPerSample
	return max(n, BytesPerSample)
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Dir        string
	SampleRate int
	Device     Device
	Logger     *zap.SugaredLogger
}

// Recorder captures one recording session at a time into a WAV file and
// tracks the instantaneous input level.
type Recorder struct {
	dir        string
	sampleRate int
	device     Device
	log        *zap.SugaredLogger
	clock      func() time.Time

	// opMu serializes Start and Stop.
	opMu sync.Mutex

	mu        sync.Mutex
	active    bool
	path      string
	startedAt time.Time
	levelDB   float64
	readErr   error

	stream io.ReadCloser
	writer *WAVWriter
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecorder returns an idle recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("%w: no device configured", ErrDeviceUnavailable)
	}
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(os.TempDir(), "voxmemo")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Recorder{
		dir:        cfg.Dir,
		sampleRate: cfg.SampleRate,
		device:     cfg.Device,
		log:        logging.OrNop(cfg.Logger),
		clock:      time.Now,
		levelDB:    SilenceFloorDB,
	}, nil
}

// Start begins a new session and returns the path of the file being written.
// An active session is stopped and its file removed first. If the device
// cannot be opened no session exists afterwards and the error wraps
// ErrDeviceUnavailable.
func (r *Recorder) Start(ctx context.Context) (string, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if path, err := r.halt(); !errors.Is(err, ErrNotRecording) {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			r.log.Warnw("failed to remove discarded recording", "path", path, "error", rmErr)
		}
		r.log.Debugw("discarded active recording", "path", path)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recordings directory: %w", err)
	}
	f, path, err := r.createFile()
	if err != nil {
		return "", err
	}
	w, err := NewWAVWriter(f, r.sampleRate, 1)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}

	captureCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := r.device.Open(captureCtx)
	if err != nil {
		cancel()
		_ = w.Close()
		_ = os.Remove(path)
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return "", err
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.active = true
	r.path = path
	r.startedAt = r.clock()
	r.levelDB = SilenceFloorDB
	r.readErr = nil
	r.stream = stream
	r.writer = w
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go r.capture(stream, w, done)

	r.log.Infow("recording started", "path", path)
	return path, nil
}

// Stop ends the active session, finalizes its WAV file and returns its path.
// If the device failed before delivering any audio the path is still
// returned, with an error wrapping ErrDeviceUnavailable.
func (r *Recorder) Stop() (string, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	path, err := r.halt()
	if err != nil {
		return path, err
	}
	r.log.Infow("recording stopped", "path", path)
	return path, nil
}

// Active reports whether a session is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Level returns the most recent input level in dBFS.
func (r *Recorder) Level() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levelDB
}

// Elapsed returns the time since the active session started, or zero.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return 0
	}
	return r.clock().Sub(r.startedAt)
}

// halt stops capture and finalizes the file. The path is returned even when
// finalizing fails. Caller holds opMu.
func (r *Recorder) halt() (string, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return "", ErrNotRecording
	}
	r.active = false
	path, stream, w, cancel, done := r.path, r.stream, r.writer, r.cancel, r.done
	r.stream, r.writer, r.cancel, r.done = nil, nil, nil, nil
	r.levelDB = SilenceFloorDB
	r.mu.Unlock()

	if err := stream.Close(); err != nil {
		r.log.Warnw("capture device close failed", "error", err)
	}
	cancel()
	<-done

	if err := w.Close(); err != nil {
		return path, fmt.Errorf("failed to finalize recording: %w", err)
	}

	r.mu.Lock()
	readErr := r.readErr
	r.mu.Unlock()
	if readErr == nil {
		return path, nil
	}
	if w.DataBytes() == 0 {
		// Nothing was captured: report the device, not a silent recording.
		if !errors.Is(readErr, ErrDeviceUnavailable) {
			readErr = fmt.Errorf("%w: %v", ErrDeviceUnavailable, readErr)
		}
		return path, readErr
	}
	r.log.Warnw("capture ended early", "path", path, "error", readErr)
	return path, nil
}

// capture copies PCM from the device to the WAV writer until the stream ends.
func (r *Recorder) capture(stream io.Reader, w *WAVWriter, done chan struct{}) {
	defer close(done)

	buf := make([]byte, ChunkBytes(w.sampleRate))
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			// Keep whole samples only.
			chunk := buf[:n-n%BytesPerSample]
			if _, werr := w.Write(chunk); werr != nil {
				r.setReadErr(werr)
				// Keep draining so the device can be shut down cleanly.
				_, _ = io.Copy(io.Discard, stream)
				return
			}
			db := LevelDB(chunk)
			r.mu.Lock()
			if r.writer == w {
				r.levelDB = db
			}
			r.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.setReadErr(err)
			}
			return
		}
	}
}

func (r *Recorder) setReadErr(err error) {
	r.mu.Lock()
	r.readErr = err
	r.mu.Unlock()
}

// createFile opens a new recording_<unix-nanos>.wav exclusively, adding a
// suffix if two sessions start within the same nanosecond.
func (r *Recorder) createFile() (*os.File, string, error) {
	stamp := r.clock().UnixNano()
	for attempt := 0; attempt < 100; attempt++ {
		name := fmt.Sprintf("recording_%d.wav", stamp)
		if attempt > 0 {
			name = fmt.Sprintf("recording_%d_%d.wav", stamp, attempt)
		}
		path := filepath.Join(r.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to create recording file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("failed to create recording file: too many collisions for %d", stamp)
}
