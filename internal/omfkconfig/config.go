// Package omfkconfig loads and hot-reloads the correction pipeline's
// thresholds, timings, and punctuation sets. The shape and the
// load-falls-back-to-defaults behavior follow github.com/kdsmith18542/gordp's
// config package; the on-disk format is YAML via gopkg.in/yaml.v3, and
// fsnotify watches the loaded file for external edits.
package omfkconfig

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/chernistry/omfk/internal/korerr"
	"github.com/chernistry/omfk/internal/korlog"
)

// DetectionConfig holds the confidence thresholds that route a Decision.
type DetectionConfig struct {
	AutoThreshold  float64 `json:"auto_threshold" yaml:"auto_threshold"`
	DeferThreshold float64 `json:"defer_threshold" yaml:"defer_threshold"`
}

// ValidationConfig holds the gate 4.6.1 sanity bounds.
type ValidationConfig struct {
	MinLengthRatio float64 `json:"min_length_ratio" yaml:"min_length_ratio"`
	MaxLengthRatio float64 `json:"max_length_ratio" yaml:"max_length_ratio"`
}

// ScoringConfig holds classifier/ensemble scoring knobs.
type ScoringConfig struct {
	DominantScriptFraction float64 `json:"dominant_script_fraction" yaml:"dominant_script_fraction"`
	DominantScriptBoost    float64 `json:"dominant_script_boost" yaml:"dominant_script_boost"`
	MaxHypothesisRewrites  int     `json:"max_hypothesis_rewrites" yaml:"max_hypothesis_rewrites"`
}

// HeuristicConfig holds short-word and single-letter preposition rules.
type HeuristicConfig struct {
	ShortWordMinLength  int                `json:"short_word_min_length" yaml:"short_word_min_length"`
	PrepositionMinScore float64            `json:"preposition_min_score" yaml:"preposition_min_score"`
	RussianPrepositions map[string]string  `json:"russian_prepositions" yaml:"russian_prepositions"`
}

// TimingConfig holds every duration the pipeline waits on. Stored in
// the YAML file as milliseconds for readability; converted to
// time.Duration at load.
type TimingConfig struct {
	BufferTimeout         time.Duration `json:"-" yaml:"-"`
	CyclingRetention       time.Duration `json:"-" yaml:"-"`
	RecentCorrectionWindow time.Duration `json:"-" yaml:"-"`
	CyclingMinDuration     time.Duration `json:"-" yaml:"-"`
	ClipboardDelay         time.Duration `json:"-" yaml:"-"`
	PasteDelay             time.Duration `json:"-" yaml:"-"`
	TypeChunkSize          int           `json:"type_chunk_size" yaml:"type_chunk_size"`
	DeleteChunkDelay       time.Duration `json:"-" yaml:"-"`
	AccessibilityPoll      time.Duration `json:"-" yaml:"-"`
	PendingWordTimeout     time.Duration `json:"-" yaml:"-"`
	PhraseBufferIdle       time.Duration `json:"-" yaml:"-"`

	// Raw milliseconds mirror of the duration fields, for YAML/JSON.
	BufferTimeoutMS         int `json:"buffer_timeout_ms" yaml:"buffer_timeout_ms"`
	CyclingRetentionMS      int `json:"cycling_retention_ms" yaml:"cycling_retention_ms"`
	RecentCorrectionWindowMS int `json:"recent_correction_window_ms" yaml:"recent_correction_window_ms"`
	CyclingMinDurationMS    int `json:"cycling_min_duration_ms" yaml:"cycling_min_duration_ms"`
	ClipboardDelayMS        int `json:"clipboard_delay_ms" yaml:"clipboard_delay_ms"`
	PasteDelayMS            int `json:"paste_delay_ms" yaml:"paste_delay_ms"`
	DeleteChunkDelayMS      int `json:"delete_chunk_delay_ms" yaml:"delete_chunk_delay_ms"`
	AccessibilityPollMS     int `json:"accessibility_poll_ms" yaml:"accessibility_poll_ms"`
	PendingWordTimeoutMS    int `json:"pending_word_timeout_ms" yaml:"pending_word_timeout_ms"`
	PhraseBufferIdleMS      int `json:"phrase_buffer_idle_ms" yaml:"phrase_buffer_idle_ms"`
}

// resolveDurations fills the time.Duration fields from their
// milliseconds counterparts. Called after unmarshal and after defaults.
func (t *TimingConfig) resolveDurations() {
	t.BufferTimeout = time.Duration(t.BufferTimeoutMS) * time.Millisecond
	t.CyclingRetention = time.Duration(t.CyclingRetentionMS) * time.Millisecond
	t.RecentCorrectionWindow = time.Duration(t.RecentCorrectionWindowMS) * time.Millisecond
	t.CyclingMinDuration = time.Duration(t.CyclingMinDurationMS) * time.Millisecond
	t.ClipboardDelay = time.Duration(t.ClipboardDelayMS) * time.Millisecond
	t.PasteDelay = time.Duration(t.PasteDelayMS) * time.Millisecond
	t.DeleteChunkDelay = time.Duration(t.DeleteChunkDelayMS) * time.Millisecond
	t.AccessibilityPoll = time.Duration(t.AccessibilityPollMS) * time.Millisecond
	t.PendingWordTimeout = time.Duration(t.PendingWordTimeoutMS) * time.Millisecond
	t.PhraseBufferIdle = time.Duration(t.PhraseBufferIdleMS) * time.Millisecond
}

// CorrectionConfig holds the correction-behavior constants of spec §3.
type CorrectionConfig struct {
	ContextBoost           float64 `json:"context_boost" yaml:"context_boost"`
	HistoryCap             int     `json:"history_cap" yaml:"history_cap"`
	CyclingRound1Visible   int     `json:"cycling_round1_visible" yaml:"cycling_round1_visible"`
	CyclingRound2Visible   int     `json:"cycling_round2_visible" yaml:"cycling_round2_visible"`
	AutoRejectWindowDays   int     `json:"auto_reject_window_days" yaml:"auto_reject_window_days"`
	AutoRejectThreshold    int     `json:"auto_reject_threshold" yaml:"auto_reject_threshold"`
	OverrideRemoveThreshold int    `json:"override_remove_threshold" yaml:"override_remove_threshold"`
}

// PunctuationConfig lists the character sets used by the boundary
// tracker and input buffer.
type PunctuationConfig struct {
	WordBoundary []string `json:"word_boundary" yaml:"word_boundary"`
}

// Config is the flat record of every tunable in the correction pipeline.
// It loads once at startup (or on a file-watch reload); a lookup miss
// for any individual field is covered by DefaultConfig's zero-cost
// fallback, since Load always starts from the defaults and overlays the
// file on top.
type Config struct {
	Detection   DetectionConfig   `json:"detection" yaml:"detection"`
	Validation  ValidationConfig  `json:"validation" yaml:"validation"`
	Scoring     ScoringConfig     `json:"scoring" yaml:"scoring"`
	Heuristic   HeuristicConfig   `json:"heuristic" yaml:"heuristic"`
	Timing      TimingConfig      `json:"timing" yaml:"timing"`
	Correction  CorrectionConfig  `json:"correction" yaml:"correction"`
	Punctuation PunctuationConfig `json:"punctuation" yaml:"punctuation"`
}

// DefaultConfig returns the embedded, hard-coded fallback used whenever
// no file is present or the file fails to parse (ConfigurationMissing).
func DefaultConfig() *Config {
	c := &Config{
		Detection: DetectionConfig{AutoThreshold: 0.75, DeferThreshold: 0.45},
		Validation: ValidationConfig{MinLengthRatio: 0.5, MaxLengthRatio: 2.0},
		Scoring: ScoringConfig{
			DominantScriptFraction: 0.8,
			DominantScriptBoost:    0.10,
			MaxHypothesisRewrites:  6,
		},
		Heuristic: HeuristicConfig{
			ShortWordMinLength:  3,
			PrepositionMinScore: 0.10,
			RussianPrepositions: map[string]string{
				"f": "а", "d": "в", "r": "к", "j": "о", "e": "у", "b": "и", "z": "я",
			},
		},
		Timing: TimingConfig{
			BufferTimeoutMS:          2000,
			CyclingRetentionMS:       60000,
			RecentCorrectionWindowMS: 3000,
			CyclingMinDurationMS:     500,
			ClipboardDelayMS:         150,
			PasteDelayMS:             100,
			TypeChunkSize:            20,
			DeleteChunkDelayMS:       20,
			AccessibilityPollMS:      2000,
			PendingWordTimeoutMS:     5000,
			PhraseBufferIdleMS:       5000,
		},
		Correction: CorrectionConfig{
			ContextBoost:            0.20,
			HistoryCap:              50,
			CyclingRound1Visible:    2,
			CyclingRound2Visible:    3,
			AutoRejectWindowDays:    14,
			AutoRejectThreshold:     2,
			OverrideRemoveThreshold: 2,
		},
		Punctuation: PunctuationConfig{
			WordBoundary: []string{" ", "\t", "\n", ".", "!", "?", ":", ")", "]", "}", "\"", "»", "」", "…"},
		},
	}
	c.Timing.resolveDurations()
	return c
}

// Load reads path as YAML and overlays it onto DefaultConfig. A missing
// file, unreadable file, or malformed YAML is ConfigurationMissing: the
// returned Config is the pure default and a one-shot warning is logged,
// matching spec §8 scenario 7 ("Configuration file missing all timing
// keys... defaults take effect... a one-shot warning is emitted").
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		korlog.Default().Warn("configuration file unavailable, using embedded defaults", korlog.Fields{"path": path, "error": err.Error()})
		return cfg, korerr.Wrap(korerr.ConfigurationMissing, err, "read config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		korlog.Default().Warn("configuration file malformed, using embedded defaults", korlog.Fields{"path": path, "error": err.Error()})
		return DefaultConfig(), korerr.Wrap(korerr.ConfigurationMissing, err, "parse config file")
	}
	var sections map[string]interface{}
	if yaml.Unmarshal(data, &sections) == nil {
		if timing, ok := sections["timing"].(map[string]interface{}); !ok || len(timing) == 0 {
			korlog.Default().Warn("configuration file has no timing keys, using default timings", korlog.Fields{"path": path})
		}
	}
	cfg.Timing.resolveDurations()
	return cfg, nil
}

// Validate sanity-checks a loaded configuration.
func (c *Config) Validate() error {
	if c.Detection.AutoThreshold <= c.Detection.DeferThreshold {
		return korerr.New(korerr.ConfigurationMissing, "auto_threshold must exceed defer_threshold")
	}
	if c.Validation.MinLengthRatio <= 0 || c.Validation.MaxLengthRatio <= c.Validation.MinLengthRatio {
		return korerr.New(korerr.ConfigurationMissing, "invalid validation length ratios")
	}
	return nil
}

// Store holds an atomically-swappable *Config so a running pipeline can
// observe fsnotify-triggered reloads without locking on every read.
type Store struct {
	current atomic.Pointer[Config]
	path    string
	watcher *fsnotify.Watcher
}

// NewStore loads path once and starts watching it for changes. If path
// is empty, the store serves DefaultConfig forever with no watcher.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	cfg, loadErr := Load(path)
	s.current.Store(cfg)
	if path == "" {
		return s, loadErr
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return s, loadErr
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return s, loadErr
	}
	s.watcher = watcher
	go s.watchLoop()
	return s, loadErr
}

func (s *Store) watchLoop() {
	for event := range s.watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		cfg, err := Load(s.path)
		if err != nil {
			continue
		}
		if err := cfg.Validate(); err != nil {
			korlog.Default().Warn("reloaded configuration failed validation, keeping previous", korlog.Fields{"error": err.Error()})
			continue
		}
		s.current.Store(cfg)
		korlog.Default().Info("configuration reloaded", korlog.Fields{"path": s.path})
	}
}

// Get returns the currently active configuration.
func (s *Store) Get() *Config { return s.current.Load() }

// Close stops the file watcher, if any.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
