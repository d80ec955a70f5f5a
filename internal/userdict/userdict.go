// Package userdict implements UserDictionary: a persistent, bounded
// store of per-token user preferences that learns from undo/apply and
// unlearns from override, per spec §4.5. Normalization uses
// golang.org/x/text for NFC + simple case-fold; LRU eviction follows
// the "collect, sort by LastUsed, evict until under budget" shape of
// gordp's AdvancedPerformanceManager.evictLRU; the on-disk container is
// YAML, atomically rewritten, with a blake2b integrity hash guarding
// against torn writes.
package userdict

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/chernistry/omfk/internal/korerr"
	"github.com/chernistry/omfk/internal/korlog"
	"github.com/chernistry/omfk/internal/omfkmodel"
)

// MaxRules bounds the store size; beyond this, the least-recently-updated
// rule is evicted (spec §3, §4.5).
const MaxRules = 500

// MaxTokenLength tokens longer than this are silently dropped at ingress.
const MaxTokenLength = omfkmodel.MaxTokenLength

var caseFolder = cases.Fold()

// Normalize lowercases via Unicode simple case-fold and NFC-normalizes,
// per spec §4.5.
func Normalize(token string) string {
	return norm.NFC.String(caseFolder.String(token))
}

type ruleKey struct {
	token string
	scope omfkmodel.RuleScope
}

// Dictionary is the process-wide, internally-locked user dictionary
// store described in spec §3 ("Lifecycle & ownership").
type Dictionary struct {
	mu    sync.RWMutex
	rules map[ruleKey]*omfkmodel.UserDictionaryRule

	path      string
	dirty     bool
	flushGrp  singleflight.Group
	cfgWindow time.Duration // auto-reject window, e.g. 14 days
	cfgAutoRejectThreshold int
	cfgOverrideThreshold   int
}

// Options configures learning-window constants, sourced from
// omfkconfig.Config.Correction by the caller.
type Options struct {
	Path                    string
	AutoRejectWindow        time.Duration
	AutoRejectThreshold     int
	OverrideRemoveThreshold int
}

// New constructs an empty, in-memory dictionary (no file backing). Use
// Load to populate it from disk.
func New(opts Options) *Dictionary {
	return &Dictionary{
		rules:                  map[ruleKey]*omfkmodel.UserDictionaryRule{},
		path:                   opts.Path,
		cfgWindow:              opts.AutoRejectWindow,
		cfgAutoRejectThreshold: opts.AutoRejectThreshold,
		cfgOverrideThreshold:   opts.OverrideRemoveThreshold,
	}
}

// container is the on-disk YAML shape: a versioned envelope plus an
// integrity hash over the marshaled rule list, distinguishing a
// torn/partial write from a valid-but-stale file (PersistenceCorrupt
// detection, spec §7).
type container struct {
	SchemaVersion int                           `yaml:"schema_version"`
	Hash          string                        `yaml:"hash"`
	Rules         []*omfkmodel.UserDictionaryRule `yaml:"rules"`
}

const schemaVersion = 1

// Load reads the dictionary file at opts.Path. A missing file yields
// an empty store and no error. A file that fails to parse or fails its
// integrity hash is PersistenceCorrupt: it is renamed aside with a
// timestamp suffix and the store starts empty, per spec §4.5/§7.
func Load(opts Options) (*Dictionary, error) {
	d := New(opts)
	if opts.Path == "" {
		return d, nil
	}
	data, err := os.ReadFile(opts.Path)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return d, korerr.Wrap(korerr.PersistenceCorrupt, err, "read user dictionary file")
	}

	var c container
	if err := yaml.Unmarshal(data, &c); err != nil {
		quarantine(opts.Path)
		return d, korerr.Wrap(korerr.PersistenceCorrupt, err, "parse user dictionary file")
	}
	if !verifyHash(c) {
		quarantine(opts.Path)
		return d, korerr.New(korerr.PersistenceCorrupt, "user dictionary integrity hash mismatch")
	}

	for _, r := range c.Rules {
		d.rules[ruleKey{token: r.Token, scope: r.Scope}] = r
	}
	return d, nil
}

func quarantine(path string) {
	broken := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	_ = os.Rename(path, broken)
	korlog.Default().Warn("quarantined corrupt user dictionary file", korlog.Fields{"path": path, "moved_to": broken})
}

func verifyHash(c container) bool {
	want := c.Hash
	c.Hash = ""
	data, err := yaml.Marshal(c.Rules)
	if err != nil {
		return false
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]) == want
}

// Lookup normalizes token and consults both exact-case and
// case-insensitive rules, exact-case winning, per spec §4.5.
func (d *Dictionary) Lookup(token string) (*omfkmodel.UserDictionaryRule, bool) {
	norm := Normalize(token)
	d.mu.RLock()
	defer d.mu.RUnlock()

	var caseInsensitive *omfkmodel.UserDictionaryRule
	for key, rule := range d.rules {
		if key.token != norm {
			continue
		}
		if rule.MatchMode == omfkmodel.MatchExact {
			return rule, true
		}
		caseInsensitive = rule
	}
	if caseInsensitive != nil {
		return caseInsensitive, true
	}
	return nil, false
}

// RecordAutoReject implements spec §4.5 "Learning — auto-reject": the
// first Alt-tap undo of an automatic correction. A fresh rule starts
// pending; two auto-rejects within the configured window upgrade it to
// keep_as_is.
func (d *Dictionary) RecordAutoReject(rawToken string) {
	norm := Normalize(rawToken)
	if utf8.RuneCountInString(norm) > MaxTokenLength {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	key := ruleKey{token: norm, scope: omfkmodel.GlobalScope}
	rule, ok := d.rules[key]
	now := time.Now()
	if !ok {
		rule = &omfkmodel.UserDictionaryRule{
			ID: newRuleID(), Token: norm, MatchMode: omfkmodel.MatchCaseInsensitive,
			Scope: omfkmodel.GlobalScope, Action: omfkmodel.ActionNone, Source: "learned",
			CreatedAt: now,
		}
		d.rules[key] = rule
	}
	rule.Evidence.AutoRejectCount++
	rule.Evidence.RecordEvent(now)
	rule.UpdatedAt = now

	if countWithinWindow(rule.Evidence.Timestamps, d.cfgWindow) >= d.cfgAutoRejectThreshold {
		rule.Action = omfkmodel.ActionKeepAsIs
	}
	d.markDirty()
}

func countWithinWindow(timestamps []time.Time, window time.Duration) int {
	if window <= 0 {
		return len(timestamps)
	}
	cutoff := time.Now().Add(-window)
	n := 0
	for _, t := range timestamps {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// RecordManualApply implements spec §4.5 "Learning — manual apply":
// find-or-create a rule, set prefer_hypothesis(H), most-recent-wins.
// Manual apply always overrides a pending state.
func (d *Dictionary) RecordManualApply(rawToken string, hyp omfkmodel.Hypothesis) {
	norm := Normalize(rawToken)
	if utf8.RuneCountInString(norm) > MaxTokenLength {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	key := ruleKey{token: norm, scope: omfkmodel.GlobalScope}
	rule, ok := d.rules[key]
	now := time.Now()
	if !ok {
		rule = &omfkmodel.UserDictionaryRule{
			ID: newRuleID(), Token: norm, MatchMode: omfkmodel.MatchCaseInsensitive,
			Scope: omfkmodel.GlobalScope, Source: "learned", CreatedAt: now,
		}
		d.rules[key] = rule
	}
	rule.Action = omfkmodel.ActionPreferHypothesis(hyp)
	rule.Evidence.ManualApplyCount++
	rule.Evidence.RecordEvent(now)
	rule.UpdatedAt = now
	d.markDirty()
}

// RecordOverride implements spec §4.5 "Unlearning — override": a
// manual correction of a token whose existing rule conflicts with the
// chosen outcome. Two overrides remove the rule.
func (d *Dictionary) RecordOverride(rawToken string) {
	norm := Normalize(rawToken)
	d.mu.Lock()
	defer d.mu.Unlock()

	key := ruleKey{token: norm, scope: omfkmodel.GlobalScope}
	rule, ok := d.rules[key]
	if !ok {
		return
	}
	rule.Evidence.OverrideCount++
	rule.Evidence.RecordEvent(time.Now())
	rule.UpdatedAt = time.Now()

	if rule.Evidence.OverrideCount >= d.cfgOverrideThreshold {
		delete(d.rules, key)
	}
	d.markDirty()
}

// ClearAll removes every stored rule — the only externally reachable
// administrative mutator beyond learning itself (spec §6).
func (d *Dictionary) ClearAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = map[ruleKey]*omfkmodel.UserDictionaryRule{}
	d.markDirty()
}

// markDirty must be called with d.mu held; it enforces the 500-entry
// LRU cap and sets the dirty flag. Nothing schedules a save from that
// flag: rules reach disk only through Flush or Close.
func (d *Dictionary) markDirty() {
	d.evictIfOverCap()
	d.dirty = true
}

// evictIfOverCap collects entries, sorts by UpdatedAt (oldest first),
// and evicts until the store is back under MaxRules — the same shape
// as gordp's AdvancedPerformanceManager.evictLRU. Must be called with
// d.mu held.
func (d *Dictionary) evictIfOverCap() {
	if len(d.rules) <= MaxRules {
		return
	}
	type entry struct {
		key  ruleKey
		rule *omfkmodel.UserDictionaryRule
	}
	entries := make([]entry, 0, len(d.rules))
	for k, r := range d.rules {
		entries = append(entries, entry{k, r})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].rule.UpdatedAt.Before(entries[j].rule.UpdatedAt)
	})
	for _, e := range entries {
		if len(d.rules) <= MaxRules {
			break
		}
		delete(d.rules, e.key)
	}
}

// Flush saves synchronously on the caller's goroutine; concurrent Flush
// calls while one write is in flight share that write via singleflight.
// No background goroutine calls Flush.
func (d *Dictionary) Flush() error {
	_, err, _ := d.flushGrp.Do("flush", func() (interface{}, error) {
		return nil, d.save()
	})
	return err
}

// Close performs a final synchronous fsync-backed save, per spec §4.5
// ("writes debounced, but fsync on shutdown").
func (d *Dictionary) Close() error {
	return d.save()
}

func (d *Dictionary) save() error {
	if d.path == "" {
		return nil
	}
	d.mu.RLock()
	rules := make([]*omfkmodel.UserDictionaryRule, 0, len(d.rules))
	for _, r := range d.rules {
		rules = append(rules, r)
	}
	d.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].Token < rules[j].Token })

	hashInput, err := yaml.Marshal(rules)
	if err != nil {
		return korerr.Wrap(korerr.PersistenceCorrupt, err, "marshal user dictionary rules")
	}
	sum := blake2b.Sum256(hashInput)

	c := container{SchemaVersion: schemaVersion, Hash: hex.EncodeToString(sum[:]), Rules: rules}
	data, err := yaml.Marshal(c)
	if err != nil {
		return korerr.Wrap(korerr.PersistenceCorrupt, err, "marshal user dictionary container")
	}

	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, "userdict-*.tmp")
	if err != nil {
		return korerr.Wrap(korerr.PersistenceCorrupt, err, "create temp user dictionary file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return korerr.Wrap(korerr.PersistenceCorrupt, err, "write temp user dictionary file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return korerr.Wrap(korerr.PersistenceCorrupt, err, "fsync temp user dictionary file")
	}
	if err := tmp.Close(); err != nil {
		return korerr.Wrap(korerr.PersistenceCorrupt, err, "close temp user dictionary file")
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return korerr.Wrap(korerr.PersistenceCorrupt, err, "rename user dictionary file into place")
	}

	d.mu.Lock()
	d.dirty = false
	d.mu.Unlock()
	return nil
}

func newRuleID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Size returns the current number of stored rules (test/observability
// helper).
func (d *Dictionary) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rules)
}
