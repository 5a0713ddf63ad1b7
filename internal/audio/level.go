// Package audio captures microphone input to WAV files and meters its level
// for the waveform display.
package audio

import (
	"encoding/binary"
	"math"
)

// SilenceFloorDB is the level reported for digital silence. It maps to an
// amplitude of effectively zero.
const SilenceFloorDB = -160.0

// Amplitude maps a level in dBFS to a normalized display amplitude in [0, 1]
// using the decibel-to-linear conversion 10^(dB/20). The floor maps to ~0 and
// 0 dBFS (full scale) maps to 1. The mapping is monotonic.
func Amplitude(db float64) float64 {
	switch {
	case math.IsNaN(db), db <= SilenceFloorDB:
		return 0
	case db >= 0:
		return 1
	}
	return math.Pow(10, db/20)
}

// LevelDB returns the RMS level of little-endian signed 16-bit PCM in dBFS,
// clamped to SilenceFloorDB. A trailing odd byte is ignored.
func LevelDB(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return SilenceFloorDB
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	if rms == 0 {
		return SilenceFloorDB
	}

	db := 20 * math.Log10(rms/32768)
	if db < SilenceFloorDB {
		return SilenceFloorDB
	}
	return db
}

// PeakLevelDB returns the loudest LevelDB over consecutive windows of
// windowBytes, so a short sound inside a long silence still registers. A
// windowBytes below one sample meters pcm as a whole.
func PeakLevelDB(pcm []byte, windowBytes int) float64 {
	if windowBytes < BytesPerSample {
		return LevelDB(pcm)
	}
	windowBytes -= windowBytes % BytesPerSample

	peak := SilenceFloorDB
	for start := 0; start < len(pcm); start += windowBytes {
		end := min(start+windowBytes, len(pcm))
		peak = max(peak, LevelDB(pcm[start:end]))
	}
	return peak
}
