package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	BytesPerSample = 2  // LINEAR16
	BitsPerSample  = 16 // LINEAR16
	pcmFormat      = 1  // WAV PCM format tag
	wavHeaderSize  = 44
)

// ErrNotWAV is returned by ReadPCM for files that are not PCM WAV.
var ErrNotWAV = errors.New("not a PCM WAV file")

// WAVWriter streams PCM to a WAV file. The RIFF and data chunk sizes are
// written as zero up front and patched by Close.
type WAVWriter struct {
	f          *os.File
	sampleRate int
	channels   int
	dataBytes  int64
}

// NewWAVWriter writes a provisional header to f and returns a writer
// positioned at the start of the data chunk.
func NewWAVWriter(f *os.File, sampleRate, channels int) (*WAVWriter, error) {
	w := &WAVWriter{f: f, sampleRate: sampleRate, channels: channels}
	if _, err := f.Write(w.header()); err != nil {
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return w, nil
}

// Write appends PCM bytes to the data chunk.
func (w *WAVWriter) Write(pcm []byte) (int, error) {
	n, err := w.f.Write(pcm)
	w.dataBytes += int64(n)
	return n, err
}

// DataBytes returns the number of PCM bytes written so far.
func (w *WAVWriter) DataBytes() int64 { return w.dataBytes }

// Duration returns the audio duration represented by the bytes written.
func (w *WAVWriter) Duration() float64 {
	bps := w.sampleRate * w.channels * BytesPerSample
	if bps == 0 {
		return 0
	}
	return float64(w.dataBytes) / float64(bps)
}

// Close patches the header with the final sizes, syncs and closes the file.
func (w *WAVWriter) Close() error {
	if _, err := w.f.WriteAt(w.header(), 0); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("patch wav header: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("sync wav: %w", err)
	}
	return w.f.Close()
}

func (w *WAVWriter) header() []byte {
	var buf bytes.Buffer
	bps := w.sampleRate * w.channels * BytesPerSample

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+w.dataBytes))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(pcmFormat))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(w.channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(w.sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(bps))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(w.channels*BytesPerSample))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(BitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(w.dataBytes))
	return buf.Bytes()
}

// ReadPCM returns the data chunk and sample rate of a PCM WAV file.
// Chunks other than "fmt " and "data" are skipped.
func ReadPCM(path string) ([]byte, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	sampleRate := 0
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			return nil, 0, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(f, body); err != nil {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			if len(body) < 16 || binary.LittleEndian.Uint16(body[0:2]) != pcmFormat {
				return nil, 0, ErrNotWAV
			}
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
		case "data":
			pcm, err := io.ReadAll(io.LimitReader(f, size))
			if err != nil {
				return nil, 0, fmt.Errorf("read wav data: %w", err)
			}
			return pcm, sampleRate, nil
		default:
			if _, err := f.Seek(size+size%2, io.SeekCurrent); err != nil {
				return nil, 0, fmt.Errorf("skip wav chunk %q: %w", id, err)
			}
		}
	}
}
