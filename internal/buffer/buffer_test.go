package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedEmitsOnBoundary(t *testing.T) {
	var mu sync.Mutex
	var emitted []string
	tr := New(Options{OnEmit: func(text, appID string) {
		mu.Lock()
		defer mu.Unlock()
		emitted = append(emitted, text)
	}})

	for _, r := range "ghbdtn " {
		tr.Feed(r, "app1")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, emitted, 1)
	assert.Equal(t, "ghbdtn", emitted[0])
}

func TestFeedEmitsOnTimeout(t *testing.T) {
	var mu sync.Mutex
	var emitted []string
	tr := New(Options{
		TokenTimeout: 20 * time.Millisecond,
		OnEmit: func(text, appID string) {
			mu.Lock()
			defer mu.Unlock()
			emitted = append(emitted, text)
		},
	})
	for _, r := range "hello" {
		tr.Feed(r, "app1")
	}
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, emitted, 1)
	assert.Equal(t, "hello", emitted[0])
}

func TestHardCeilingDropsWithoutEmitting(t *testing.T) {
	emitCount := 0
	tr := New(Options{OnEmit: func(text, appID string) { emitCount++ }})
	for i := 0; i < TokenHardCeiling+1; i++ {
		tr.Feed('a', "app1")
	}
	tr.Boundary()
	assert.Equal(t, 0, emitCount, "exceeding the hard ceiling must empty the buffer without emitting")
}

func TestFocusChangeEmitsPartialToken(t *testing.T) {
	emitCount := 0
	tr := New(Options{OnEmit: func(text, appID string) { emitCount++ }})
	for _, r := range "partial" {
		tr.Feed(r, "app1")
	}
	tr.FocusChanged()
	tr.Boundary()
	assert.Equal(t, 1, emitCount)
}

func TestPendingWordMergesOnAdjoin(t *testing.T) {
	var mu sync.Mutex
	var emitted []string
	tr := New(Options{
		PendingExpiry: time.Second,
		OnEmit: func(text, appID string) {
			mu.Lock()
			defer mu.Unlock()
			emitted = append(emitted, text)
		},
	})
	tr.ParkPending("ghb", "app1")
	for _, r := range "dtn " {
		tr.Feed(r, "app1")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, emitted, 1)
	assert.Equal(t, "ghbdtn", emitted[0], "a token adjoining a pending word must merge into one emission")

	_, ok := tr.Pending()
	assert.False(t, ok, "the pending slot is cleared after a merge")
}

func TestPendingWordExpires(t *testing.T) {
	lost := ""
	tr := New(Options{
		PendingExpiry: 20 * time.Millisecond,
		OnEmit:        func(string, string) {},
		OnPendingLost: func(text string) { lost = text },
	})
	tr.ParkPending("ghb", "app1")
	time.Sleep(60 * time.Millisecond)

	_, ok := tr.Pending()
	assert.False(t, ok)
	assert.Equal(t, "ghb", lost)
}

func TestPhraseBufferBoundedAndResetOnNewline(t *testing.T) {
	tr := New(Options{OnEmit: func(string, string) {}})
	for i := 0; i < PhraseBufferCeiling+10; i++ {
		tr.Feed('a', "app1")
	}
	assert.LessOrEqual(t, len([]rune(tr.Phrase())), PhraseBufferCeiling)

	tr.Feed('\n', "app1")
	assert.Equal(t, "", tr.Phrase())
}
