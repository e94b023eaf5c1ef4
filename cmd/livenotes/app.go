package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vango-go/livenotes/pkg/config"
	"github.com/vango-go/livenotes/pkg/core/audio"
	"github.com/vango-go/livenotes/pkg/core/channel"
	"github.com/vango-go/livenotes/pkg/core/channel/gemini"
	"github.com/vango-go/livenotes/pkg/core/finalize"
	"github.com/vango-go/livenotes/pkg/core/live"
	"github.com/vango-go/livenotes/pkg/core/notes"
	"github.com/vango-go/livenotes/pkg/core/voice"
	"github.com/vango-go/livenotes/pkg/core/voice/tts"
	"github.com/vango-go/livenotes/pkg/history"
	"github.com/vango-go/livenotes/pkg/metrics"
	"github.com/vango-go/livenotes/pkg/storage/postgres"
	"github.com/vango-go/livenotes/pkg/storage/sqlite"
)

// services is the fully wired process: storage, settings, devices and the
// orchestrator. Close releases everything in reverse order of acquisition.
type services struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	history  *history.Store
	settings *config.SettingsStore
	orch     *live.Orchestrator

	closers []func() error
}

func (r *services) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *services) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// openKV opens the configured history backend.
func openKV(ctx context.Context, cfg config.Config) (history.KV, func() error, error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		st, err := sqlite.Open(ctx, cfg.StoragePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite history: %w", err)
		}
		return st, st.Close, nil
	case config.StoragePostgres:
		st, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres history: %w", err)
		}
		return st, st.Close, nil
	case config.StorageMemory:
		return history.NewMemoryKV(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// openHistory opens storage and loads the history list. A corrupt list is
// logged and treated as empty.
func openHistory(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*history.Store, func() error, error) {
	kv, closeKV, err := openKV(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store := history.New(kv, logger, m)
	_ = store.Load(ctx)
	return store, closeKV, nil
}

// newServices wires every collaborator of the orchestrator. Optional pieces
// that fail to initialize (speech output, the capture context) are logged
// and left out so the bridge still serves history and settings.
func newServices(ctx context.Context, cfg config.Config, logger *slog.Logger) (*services, error) {
	r := &services{cfg: cfg, logger: logger, metrics: metrics.New("livenotes")}

	hist, closeKV, err := openHistory(ctx, cfg, logger.With("component", "history"), r.metrics)
	if err != nil {
		return nil, err
	}
	r.history = hist
	r.onClose(closeKV)

	settingsLogger := logger.With("component", "settings")
	r.settings = config.OpenSettings(cfg.SettingsPath, settingsLogger)
	logSettingsChanges(r.settings, settingsLogger)

	capture := &audio.Capture{
		DeviceRate: cfg.AudioDeviceRate,
		Logger:     logger.With("component", "audio"),
	}
	if opener, err := audio.NewMalgoOpener(); err != nil {
		logger.Warn("audio capture unavailable", "error", err)
	} else {
		capture.Opener = opener
		r.onClose(opener.Close)
	}

	dialer := &gemini.Dialer{
		APIKey:           cfg.GeminiAPIKey,
		Model:            cfg.LiveModel,
		URL:              cfg.LiveURL,
		HandshakeTimeout: cfg.LiveHandshakeTimeout,
		Logger:           logger.With("component", "gemini"),
	}
	adapter := channel.NewAdapter(dialer, channel.Config{
		QueueSize:    cfg.ChannelQueueSize,
		FlushTimeout: cfg.ChannelFlushTimeout,
	}, logger.With("component", "channel"), r.metrics)
	r.onClose(adapter.Close)

	finalizer := &finalize.Finalizer{
		Timeout: cfg.FinalizeTimeout,
		Logger:  logger.With("component", "finalize"),
		Metrics: r.metrics,
	}
	if summarizer, err := finalize.NewGeminiSummarizer(ctx, cfg.GeminiAPIKey, cfg.SummaryModel); err != nil {
		logger.Warn("session summaries disabled", "error", err)
	} else {
		finalizer.Summarizer = summarizer
	}

	policy, ok := notes.ParsePolicy(cfg.ActiveNotePolicy)
	if !ok {
		_ = r.Close()
		return nil, fmt.Errorf("unknown active note policy %q", cfg.ActiveNotePolicy)
	}

	deps := live.Deps{
		Audio:     capture,
		Channel:   adapter,
		Finalizer: finalizer,
		History:   r.history,
		Settings:  r.settings,
		Metrics:   r.metrics,
		Logger:    logger.With("component", "live"),
	}
	if speaker := newSpeaker(cfg, logger, r.metrics); speaker != nil {
		deps.Speaker = speaker
		r.onClose(speaker.Close)
	}

	orchCfg := live.DefaultConfig()
	orchCfg.SessionDuration = cfg.SessionDuration
	orchCfg.OverwritePolicy = policy
	orchCfg.ExtraPrompt = cfg.ExtraPrompt
	orch, err := live.New(orchCfg, deps)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	r.orch = orch
	return r, nil
}

// logSettingsChanges records every applied settings change. Sessions pick up
// the new values on their next start.
func logSettingsChanges(s *config.SettingsStore, logger *slog.Logger) {
	s.OnChange(func(v config.Settings) {
		logger.Info("settings changed",
			"voice_response", v.VoiceResponse,
			"voice_id", v.VoiceID,
			"rate", v.Rate,
			"contextualize", v.Contextualize,
		)
	})
}

// newSpeaker returns nil when speech output is not configured or no output
// device is available.
func newSpeaker(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) *voice.Speaker {
	if cfg.CartesiaAPIKey == "" {
		logger.Debug("voice responses disabled: no cartesia api key")
		return nil
	}
	player, err := voice.NewOtoPlayer()
	if err != nil {
		logger.Warn("voice responses disabled", "error", err)
		return nil
	}
	synth := tts.NewCartesia(cfg.CartesiaAPIKey, cfg.CartesiaBaseURL)
	return voice.NewSpeaker(synth, player, logger.With("component", "speaker"), m)
}
