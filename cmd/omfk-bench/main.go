// Command omfk-bench replays a fixture file of keystroke tokens through
// the correction pipeline against the in-memory hostapi/fake backend,
// printing each token that routes to AUTO_CORRECT. It exists to exercise the pipeline end
// to end without a real platform integration, per spec §1's exclusion
// of platform glue. Grounded in vippsas-sqlcode's cobra cli/cmd layout.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chernistry/omfk/internal/classify"
	"github.com/chernistry/omfk/internal/hostapi"
	"github.com/chernistry/omfk/internal/hostapi/fake"
	"github.com/chernistry/omfk/internal/korlog"
	"github.com/chernistry/omfk/internal/layout"
	"github.com/chernistry/omfk/internal/omfkconfig"
	"github.com/chernistry/omfk/internal/omfkmodel"
	"github.com/chernistry/omfk/internal/pipeline"
	"github.com/chernistry/omfk/internal/replace"
	"github.com/chernistry/omfk/internal/router"
	"github.com/chernistry/omfk/internal/userdict"
)

var (
	fixturePath string
	configPath  string
	debug       bool

	rootCmd = &cobra.Command{
		Use:          "omfk-bench",
		Short:        "omfk-bench",
		SilenceUsage: true,
		Long:         "Replay a fixture of newline-delimited tokens through the OMFK correction pipeline and print each token routed to AUTO_CORRECT.",
		RunE:         run,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&fixturePath, "fixture", "f", "", "path to a newline-delimited token fixture (uses a built-in sample if empty)")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to an omfkconfig YAML file (uses embedded defaults if empty)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable verbose per-token logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	store, err := omfkconfig.NewStore(configPath)
	if err != nil {
		korlog.Default().Warn("config load fell back to defaults", korlog.Fields{"error": err.Error()})
	}
	defer store.Close()

	tables := layout.EmbeddedTables()
	transliterator := layout.NewTransliterator(tables)
	oracle := classify.NewCompositeOracle()
	ensemble := classify.NewEnsemble(oracle, transliterator, store.Get())

	dict := userdict.New(userdict.Options{
		AutoRejectWindow:        time.Duration(store.Get().Correction.AutoRejectWindowDays) * 24 * time.Hour,
		AutoRejectThreshold:     store.Get().Correction.AutoRejectThreshold,
		OverrideRemoveThreshold: store.Get().Correction.OverrideRemoveThreshold,
	})

	host := fake.NewTextHost()
	clipboard := fake.NewClipboard()
	replacer := replace.New(host, clipboard, store.Get().Timing.PasteDelay, store.Get().Timing.DeleteChunkDelay, store.Get().Timing.TypeChunkSize)

	obs := &printObserver{}
	p := pipeline.New(pipeline.Config{
		Ensemble:   ensemble,
		Dictionary: dict,
		Replacer:   replacer,
		Settings:   store,
		Host:       host,
		Observer:   obs,
	})
	p.SetDebugLogging(debug)

	tokens, err := readFixture(fixturePath)
	if err != nil {
		return err
	}

	capacity := 1
	for _, tok := range tokens {
		capacity += len([]rune(tok)) + 1
	}
	src := fake.NewKeystrokeSource(capacity)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go p.Run(ctx, src.Events())

	for _, tok := range tokens {
		emitToken(src, tok)
	}
	time.Sleep(50 * time.Millisecond)
	return nil
}

// emitToken pushes one token's characters followed by a boundary space,
// simulating a user typing the word and pressing space.
func emitToken(src *fake.KeystrokeSource, token string) {
	for _, r := range token {
		src.Push(hostapi.KeyEvent{Down: true, HasChar: true, ProducedChar: r, At: time.Now()})
	}
	src.Push(hostapi.KeyEvent{Down: true, HasChar: true, ProducedChar: ' ', At: time.Now()})
}

func readFixture(path string) ([]string, error) {
	var data []byte
	var err error
	if path == "" {
		return []string{"ghbdtn", "ytn", "ghbdtn"}, nil
	}
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

type printObserver struct{}

func (printObserver) OnCorrection(token omfkmodel.Token, outcome router.Outcome, target omfkmodel.Alternative) {
	fmt.Printf("%-10s -> %-12s %q (confidence target=%.2f)\n", token.RawText, outcome.String(), target.Text, target.Score)
}
