// Package omfk provides the trilingual (EN/RU/HE) keyboard-layout
// auto-correction engine: detecting wrong-layout-typed words (e.g.
// "ghbdtn" -> "привет"), auto-correcting them, and exposing the
// Alt-tap cycling state an OS-level hotkey binds to for undo and
// alternative selection.
//
// Example usage:
//
//	engine, err := omfk.NewEngine(&omfk.Option{
//		ConfigPath: "/etc/omfk/config.yaml",
//		DictPath:   "/var/lib/omfk/userdict.yaml",
//		Host:       myTextHost,
//		Clipboard:  myClipboard,
//	})
//	if err != nil {
//		log.Print(err) // the engine still runs on defaults
//	}
//	defer engine.Close()
//
//	go engine.Run(ctx, keystrokeEvents)
package omfk

import (
	"context"
	"time"

	"github.com/chernistry/omfk/internal/classify"
	"github.com/chernistry/omfk/internal/hostapi"
	"github.com/chernistry/omfk/internal/korlog"
	"github.com/chernistry/omfk/internal/layout"
	"github.com/chernistry/omfk/internal/omfkconfig"
	"github.com/chernistry/omfk/internal/pipeline"
	"github.com/chernistry/omfk/internal/replace"
	"github.com/chernistry/omfk/internal/userdict"
)

// Option configures a new Engine. Every collaborator not named here
// (layout tables, the oracle ensemble, the replacement engine) is
// assembled internally from Option's paths and Host, the way
// gordp.NewClient builds its protocol managers from gordp.Option.
type Option struct {
	// ConfigPath points at a YAML thresholds/timings file; empty uses
	// the embedded defaults.
	ConfigPath string
	// DictPath points at the user dictionary's persistence file; empty
	// disables persistence (in-memory only for the process lifetime).
	DictPath string
	// LayoutDataPath points at a YAML layout-table file; empty uses the
	// embedded en_us/ru_pc/he_standard tables.
	LayoutDataPath string
	// Host is the platform's text mutation + accessibility + clipboard
	// backend. Required.
	Host hostapi.TextHost
	// Clipboard is the platform clipboard backend. Required.
	Clipboard hostapi.Clipboard
	// AppFilter excludes tokens from a given frontmost application
	// (e.g. password managers, terminals). Optional.
	AppFilter func(appID string) bool
}

// Engine is the top-level, constructor-injected assembly of every
// correction-pipeline component — the config store, dictionary, and
// pipeline are held here rather than in package-level singletons (the
// only process-wide default in the module is korlog's logger).
type Engine struct {
	store    *omfkconfig.Store
	dict     *userdict.Dictionary
	pipeline *pipeline.Pipeline
}

// NewEngine assembles an Engine from opt. Config and layout-table load
// failures fall back to embedded defaults with a logged warning rather
// than failing construction, per spec §7's ConfigurationMissing policy.
func NewEngine(opt *Option) (*Engine, error) {
	store, cfgErr := omfkconfig.NewStore(opt.ConfigPath)
	cfg := store.Get()

	tables, layoutErr := layout.LoadLayoutData(opt.LayoutDataPath)
	if layoutErr != nil && opt.LayoutDataPath != "" {
		korlog.Default().Warn("layout data unavailable, using embedded tables", korlog.Fields{"path": opt.LayoutDataPath, "error": layoutErr.Error()})
	}
	if tables == nil {
		tables = layout.EmbeddedTables()
	}
	transliterator := layout.NewTransliterator(tables)
	oracle := classify.NewCompositeOracle()
	ensemble := classify.NewEnsemble(oracle, transliterator, cfg)

	dict, dictErr := userdict.Load(userdict.Options{
		Path:                    opt.DictPath,
		AutoRejectWindow:        time.Duration(cfg.Correction.AutoRejectWindowDays) * 24 * time.Hour,
		AutoRejectThreshold:     cfg.Correction.AutoRejectThreshold,
		OverrideRemoveThreshold: cfg.Correction.OverrideRemoveThreshold,
	})

	replacer := replace.New(opt.Host, opt.Clipboard, cfg.Timing.PasteDelay, cfg.Timing.DeleteChunkDelay, cfg.Timing.TypeChunkSize)

	p := pipeline.New(pipeline.Config{
		Ensemble:   ensemble,
		Dictionary: dict,
		Replacer:   replacer,
		Settings:   store,
		Host:       opt.Host,
		AppFilter:  opt.AppFilter,
	})

	e := &Engine{store: store, dict: dict, pipeline: p}

	// Neither a missing config file nor a missing dictionary file is
	// fatal: both are documented ConfigurationMissing/PersistenceCorrupt
	// recoveries (spec §7). Surface the first one encountered so a
	// caller can log it, without blocking construction.
	if cfgErr != nil {
		return e, cfgErr
	}
	return e, dictErr
}

// Run drives the ingestion loop until ctx is canceled. It must be
// called from its own goroutine; see spec §5's single-threaded executor
// model.
func (e *Engine) Run(ctx context.Context, events <-chan hostapi.KeyEvent) {
	e.pipeline.Run(ctx, events)
}

// SetDebugLogging toggles verbose per-token routing logs (spec §6).
func (e *Engine) SetDebugLogging(enabled bool) {
	e.pipeline.SetDebugLogging(enabled)
}

// ClearLearnedRules implements spec §6's "clear all learned rules"
// administrative action.
func (e *Engine) ClearLearnedRules() {
	e.dict.ClearAll()
}

// Close flushes the user dictionary synchronously and stops the config
// watcher, releasing every background resource the Engine owns.
func (e *Engine) Close() error {
	if err := e.dict.Close(); err != nil {
		return err
	}
	return e.store.Close()
}
