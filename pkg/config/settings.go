package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/vango-go/livenotes/pkg/core"
)

const (
	MinRate = 0.5
	MaxRate = 2.0
)

// Settings are the user-facing options edited from the settings panel.
type Settings struct {
	VoiceResponse bool    `yaml:"voice_response" json:"voice_response"`
	VoiceID       string  `yaml:"voice_id,omitempty" json:"voice_id,omitempty"`
	Rate          float64 `yaml:"rate" json:"rate"`
	Contextualize bool    `yaml:"contextualize" json:"contextualize"`
}

func DefaultSettings() Settings {
	return Settings{Rate: 1.0}
}

func (s Settings) Validate() error {
	if s.Rate < MinRate || s.Rate > MaxRate {
		return core.NewInvalidRequestErrorWithParam(fmt.Sprintf("rate must be between %.1f and %.1f", MinRate, MaxRate), "rate")
	}
	if len(s.VoiceID) > 128 {
		return core.NewInvalidRequestErrorWithParam("voice_id is too long", "voice_id")
	}
	return nil
}

// SettingsStore holds the current settings and persists them to a YAML file.
// An empty path keeps settings in memory only.
type SettingsStore struct {
	path   string
	logger *slog.Logger

	// writeMu pairs each file write or read with the matching in-memory set.
	writeMu sync.Mutex
	mu      sync.RWMutex
	current Settings
	hooks   []func(Settings)
}

// OpenSettings loads settings from path. A missing file yields defaults; an
// unreadable or invalid file is logged and also yields defaults.
func OpenSettings(path string, logger *slog.Logger) *SettingsStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SettingsStore{path: path, logger: logger, current: DefaultSettings()}
	if path == "" {
		return s
	}
	if err := s.Reload(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("settings file ignored", "path", path, "error", err)
	}
	return s
}

func (s *SettingsStore) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers fn to run after every successful reload or update.
func (s *SettingsStore) OnChange(fn func(Settings)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Update validates and stores next, writing the file when one is configured.
func (s *SettingsStore) Update(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.path != "" {
		if err := writeSettings(s.path, next); err != nil {
			return core.NewPersistenceFailedError("write_settings", err)
		}
	}
	s.set(next)
	return nil
}

// Reload re-reads the settings file.
func (s *SettingsStore) Reload() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	next := DefaultSettings()
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.set(next)
	return nil
}

func (s *SettingsStore) set(next Settings) {
	s.mu.Lock()
	changed := s.current != next
	s.current = next
	hooks := make([]func(Settings), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range hooks {
		fn(next)
	}
}

// Watch reloads the file whenever it changes on disk, until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (s *SettingsStore) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Reload(); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					s.logger.Warn("settings reload failed", "path", s.path, "error", err)
				}
				continue
			}
			s.logger.Debug("settings reloaded", "path", s.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("fsnotify error", "error", err)
		}
	}
}

func writeSettings(path string, v Settings) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
