// Package fake provides an in-memory, no-op-safe implementation of
// every hostapi contract, used by unit tests and cmd/omfk-bench in
// place of a real platform backend (spec §6, "a real platform backend
// is out of scope").
package fake

import (
	"context"
	"sync"

	"github.com/chernistry/omfk/internal/hostapi"
)

// TextHost is a buffer-backed fake: it keeps a single string "document"
// and a caret at its end, enough to exercise all three ReplacementEngine
// strategies deterministically in tests.
type TextHost struct {
	mu             sync.Mutex
	Document       string
	Selection      string
	SelectionOK    bool
	AccessibilityUp bool
	UndoLog        []string
	PasteText      string
}

// NewTextHost returns a fake host with accessibility enabled and an
// empty document.
func NewTextHost() *TextHost {
	return &TextHost{AccessibilityUp: true}
}

func (h *TextHost) ReadTrailing(ctx context.Context, n int) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.AccessibilityUp {
		return "", false
	}
	runes := []rune(h.Document)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[len(runes)-n:]), true
}

func (h *TextHost) ReadSelection(ctx context.Context) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Selection, h.SelectionOK
}

func (h *TextHost) SetRangeValue(ctx context.Context, n int, newText string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.AccessibilityUp {
		return false
	}
	runes := []rune(h.Document)
	if n > len(runes) {
		return false
	}
	h.Document = string(runes[:len(runes)-n]) + newText
	return true
}

func (h *TextHost) Paste(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.SelectionOK {
		h.Document = replaceSuffixSelection(h.Document, h.Selection, h.PasteText)
		h.Selection = h.PasteText
		return true
	}
	h.Document += h.PasteText
	return true
}

func replaceSuffixSelection(doc, selection, replacement string) string {
	runes := []rune(doc)
	sel := []rune(selection)
	if len(sel) <= len(runes) && string(runes[len(runes)-len(sel):]) == selection {
		return string(runes[:len(runes)-len(sel)]) + replacement
	}
	return doc + replacement
}

func (h *TextHost) Backspace(ctx context.Context, n int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	runes := []rune(h.Document)
	if n > len(runes) {
		n = len(runes)
	}
	h.Document = string(runes[:len(runes)-n])
	return true
}

func (h *TextHost) TypeText(ctx context.Context, text string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Document += text
	return true
}

func (h *TextHost) Undo(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.UndoLog = append(h.UndoLog, h.Document)
	if len(h.UndoLog) > 1 {
		h.Document = h.UndoLog[len(h.UndoLog)-2]
	}
	return true
}

// Clipboard is an in-memory clipboard fake.
type Clipboard struct {
	mu  sync.Mutex
	val string
}

func NewClipboard() *Clipboard { return &Clipboard{} }

func (c *Clipboard) Snapshot(ctx context.Context) (hostapi.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return hostapi.NewSnapshot(c.val), nil
}

func (c *Clipboard) Write(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val = text
	return nil
}

func (c *Clipboard) Restore(ctx context.Context, s hostapi.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val, _ = s.Value().(string)
	return nil
}

// LayoutSwitcher records the last layout ID it was asked to switch to.
type LayoutSwitcher struct {
	mu      sync.Mutex
	Current string
}

func NewLayoutSwitcher() *LayoutSwitcher { return &LayoutSwitcher{} }

func (l *LayoutSwitcher) SetActiveLayout(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Current = id
	return nil
}

// FrontmostApp returns a fixed app ID, settable by tests.
type FrontmostApp struct {
	AppID string
}

func NewFrontmostApp(appID string) *FrontmostApp { return &FrontmostApp{AppID: appID} }

func (f *FrontmostApp) CurrentAppID() string { return f.AppID }

// KeystrokeSource is a channel-backed fake a test can push events into.
type KeystrokeSource struct {
	ch chan hostapi.KeyEvent
}

func NewKeystrokeSource(buffer int) *KeystrokeSource {
	return &KeystrokeSource{ch: make(chan hostapi.KeyEvent, buffer)}
}

func (k *KeystrokeSource) Events() <-chan hostapi.KeyEvent { return k.ch }

// Push enqueues an event for the pipeline to consume; if the channel is
// full it drops the oldest queued event to make room rather than
// blocking (spec §5).
func (k *KeystrokeSource) Push(ev hostapi.KeyEvent) {
	select {
	case k.ch <- ev:
		return
	default:
	}
	select {
	case <-k.ch:
	default:
	}
	select {
	case k.ch <- ev:
	default:
	}
}
