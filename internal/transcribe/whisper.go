package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/scrypster/voxmemo/internal/audio"
	"github.com/scrypster/voxmemo/internal/logging"
)

// DefaultSilenceThresholdDB is the RMS level that no 50ms window of a
// recording may exceed for it to be treated as containing no speech.
const DefaultSilenceThresholdDB = -60.0

// WhisperConfig configures a WhisperRecognizer.
type WhisperConfig struct {
	APIKey             string
	BaseURL            string // API origin, without the /v1 suffix
	Model              string
	Language           string
	SilenceThresholdDB float64
	Logger             *zap.SugaredLogger
}

// WhisperRecognizer transcribes WAV files with the OpenAI audio
// transcription endpoint.
type WhisperRecognizer struct {
	client    openai.Client
	model     string
	language  string
	threshold float64
	log       *zap.SugaredLogger
}

// NewWhisperRecognizer returns a recognizer, or ErrUnavailable when no API key
// or language is configured.
func NewWhisperRecognizer(cfg WhisperConfig) (*WhisperRecognizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}
	if cfg.Language == "" {
		return nil, fmt.Errorf("%w: no recognition language configured", ErrUnavailable)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.AudioModelWhisper1)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.SilenceThresholdDB == 0 {
		cfg.SilenceThresholdDB = DefaultSilenceThresholdDB
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/v1/"),
		option.WithMaxRetries(0),
	)

	return &WhisperRecognizer{
		client:    client,
		model:     cfg.Model,
		language:  cfg.Language,
		threshold: cfg.SilenceThresholdDB,
		log:       logging.OrNop(cfg.Logger),
	}, nil
}

// Recognize uploads the file and returns the final transcript. Recordings in
// which no 50ms window rises above the silence threshold return "" without a
// request.
func (w *WhisperRecognizer) Recognize(ctx context.Context, path string) (string, error) {
	pcm, rate, err := audio.ReadPCM(path)
	if err != nil {
		return "", fmt.Errorf("read recording: %w", err)
	}
	if level := audio.PeakLevelDB(pcm, audio.ChunkBytes(rate)); level <= w.threshold {
		w.log.Debugw("recording is silent, skipping upload", "path", path, "level_db", level)
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	resp, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     f,
		Model:    openai.AudioModel(w.model),
		Language: openai.String(w.language),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
