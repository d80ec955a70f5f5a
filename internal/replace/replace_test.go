package replace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chernistry/omfk/internal/hostapi/fake"
)

func TestReplaceAccessibilityMatchCommits(t *testing.T) {
	host := fake.NewTextHost()
	host.Document = "hello ghbdtn"
	clipboard := fake.NewClipboard()
	engine := New(host, clipboard, 10*time.Millisecond, time.Millisecond, 20)

	outcome := engine.Replace(context.Background(), TargetSpec{Kind: FreshBuffer, Text: "ghbdtn", Length: 6}, "привет")
	require.Equal(t, Committed, outcome)
	assert.Equal(t, "hello привет", host.Document)
}

func TestReplaceSelectionPasteRestoresClipboard(t *testing.T) {
	host := fake.NewTextHost()
	host.AccessibilityUp = false
	host.Document = "hello world"
	host.Selection = "world"
	host.SelectionOK = true
	host.PasteText = "мир"
	clipboard := fake.NewClipboard()
	_ = clipboard.Write(context.Background(), "preexisting clipboard contents")

	engine := New(host, clipboard, time.Millisecond, time.Millisecond, 20)
	outcome := engine.Replace(context.Background(), TargetSpec{Kind: SelectionConfirmed}, "мир")

	assert.Equal(t, Committed, outcome)
	snap, _ := clipboard.Snapshot(context.Background())
	assert.Equal(t, "preexisting clipboard contents", snap.Value(), "the clipboard must be restored after the paste transaction")
}

func TestReplaceBoundedBackspaceType(t *testing.T) {
	host := fake.NewTextHost()
	host.AccessibilityUp = false
	host.Document = "hello ytn"
	clipboard := fake.NewClipboard()
	engine := New(host, clipboard, time.Millisecond, time.Millisecond, 20)

	outcome := engine.Replace(context.Background(), TargetSpec{Kind: RecentInsertion, Text: "ytn", Length: 3}, "нет")
	require.Equal(t, Committed, outcome)
	assert.Equal(t, "hello нет", host.Document)
}

func TestReplaceNoTargetWhenNothingConfirmed(t *testing.T) {
	host := fake.NewTextHost()
	host.AccessibilityUp = false
	clipboard := fake.NewClipboard()
	engine := New(host, clipboard, time.Millisecond, time.Millisecond, 20)

	outcome := engine.Replace(context.Background(), TargetSpec{Kind: SelectionConfirmed}, "x")
	assert.Equal(t, NoTarget, outcome)
}

func TestReplaceAbortsAndRollsBackOnVerificationFailure(t *testing.T) {
	host := &mismatchingVerifyHost{TextHost: fake.NewTextHost()}
	host.Document = "hello ytn"
	clipboard := fake.NewClipboard()
	engine := New(host, clipboard, time.Millisecond, time.Millisecond, 20)

	outcome := engine.Replace(context.Background(), TargetSpec{Kind: RecentInsertion, Text: "ytn", Length: 3}, "нет")
	assert.Equal(t, Aborted, outcome)
}

// mismatchingVerifyHost wraps fake.TextHost so ReadTrailing always
// returns a value that will never match what verifyOrRollback expects,
// forcing the self-check/rollback path.
type mismatchingVerifyHost struct {
	*fake.TextHost
}

func (m *mismatchingVerifyHost) ReadTrailing(ctx context.Context, n int) (string, bool) {
	return "definitely-not-it", true
}
