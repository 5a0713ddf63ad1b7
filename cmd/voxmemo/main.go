// Command voxmemo records voice memos in the terminal, transcribes and
// analyzes them, and keeps the results as memories.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/voxmemo/internal/audio"
	"github.com/scrypster/voxmemo/internal/config"
	"github.com/scrypster/voxmemo/internal/connections"
	"github.com/scrypster/voxmemo/internal/llm"
	"github.com/scrypster/voxmemo/internal/logging"
	"github.com/scrypster/voxmemo/internal/pipeline"
	"github.com/scrypster/voxmemo/internal/server"
	"github.com/scrypster/voxmemo/internal/storage"
	"github.com/scrypster/voxmemo/internal/transcribe"
	"github.com/scrypster/voxmemo/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (overrides VOXMEMO_CONFIG)")
	flag.Parse()

	if *configPath != "" {
		_ = os.Setenv("VOXMEMO_CONFIG", *configPath)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "voxmemo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	log, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.LogFile(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := connections.Open(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctl, err := newController(cfg, store, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ctl.Run(ctx) })

	if cfg.Web.Enabled {
		addr, err := server.Start(ctx, cfg.Web, store, ctl, log)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		log.Infow("snapshot feed available", "url", "http://"+addr)
	}

	g.Go(func() error {
		// Leaving the UI ends the process.
		defer cancel()
		p := tea.NewProgram(tui.New(ctx, ctl), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("terminal UI: %w", err)
		}
		return nil
	})

	err = g.Wait()
	log.Infow("voxmemo stopped")
	return err
}

func newController(cfg *config.Config, store storage.MemoryStore, log *zap.SugaredLogger) (*pipeline.Controller, error) {
	device, err := audio.NewCommandDevice(cfg.Audio.CaptureCommandLine())
	if err != nil {
		return nil, err
	}
	recorder, err := audio.NewRecorder(audio.RecorderConfig{
		Dir:        cfg.Audio.RecordingsDir,
		SampleRate: cfg.Audio.SampleRate,
		Device:     device,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	var recognizer transcribe.Recognizer
	whisper, err := transcribe.NewWhisperRecognizer(transcribe.WhisperConfig{
		APIKey:   cfg.OpenAI.APIKey,
		BaseURL:  cfg.OpenAI.BaseURL,
		Model:    cfg.OpenAI.TranscriptionModel,
		Language: cfg.OpenAI.Language,
		Logger:   log,
	})
	switch {
	case err == nil:
		recognizer = whisper
	case errors.Is(err, transcribe.ErrUnavailable):
		log.Warnw("speech recognition disabled", "reason", err)
	default:
		return nil, err
	}
	transcriber := transcribe.New(recognizer, cfg.Pipeline.TranscriptionTimeout, log)

	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:            cfg.OpenAI.APIKey,
		Model:             cfg.OpenAI.AnalysisModel,
		BaseURL:           cfg.OpenAI.BaseURL,
		Timeout:           cfg.Pipeline.AnalysisTimeout,
		RequestsPerMinute: cfg.OpenAI.RequestsPerMinute,
		Logger:            log,
	})
	analyzer := llm.NewAnalyzer(client, cfg.Pipeline.AnalysisTimeout, log)

	return pipeline.NewController(recorder, transcriber, analyzer, store, pipeline.Options{
		TickInterval: cfg.Audio.TickInterval,
		MaxSamples:   cfg.Audio.MaxSamples,
		Logger:       log,
	})
}
