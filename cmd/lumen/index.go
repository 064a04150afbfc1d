package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"lumen/internal/core"
	"lumen/internal/indexer"
	"lumen/internal/kvcache"
	"lumen/internal/metrics"
	"lumen/internal/observ"
	"lumen/internal/ui"
	"lumen/internal/workers"
)

var indexCmd = &cobra.Command{
	Use:          "index [dir]",
	Short:        "Index a Lumen project once and report what was built",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	startDir := "."
	if len(args) == 1 {
		startDir = args[0]
	}
	quiet, _ := cmd.Flags().GetBool("quiet")       //nolint:errcheck
	showTimings, _ := cmd.Flags().GetBool("timings") //nolint:errcheck

	cfg, err := loadSessionConfig(startDir)
	if err != nil {
		return err
	}

	var kv *kvcache.Store
	if dir := cfg.Opts.CacheDir; dir != "" {
		if kv, err = kvcache.Open(dir); err != nil {
			fmt.Fprintf(os.Stderr, "lumen: parse cache unavailable: %v\n", err)
		}
	}

	// Прогресс-бар только на живом терминале.
	var events chan ui.Event
	var uiDone chan error
	if !quiet && isTerminal(os.Stdout) && len(cfg.Opts.InputFileNames) > 0 {
		events = make(chan ui.Event, 64)
		uiDone = make(chan error, 1)
		model := ui.NewProgressModel("indexing "+cfg.Opts.PackageName, cfg.Opts.InputFileNames, events)
		go func() {
			_, runErr := tea.NewProgram(model).Run()
			uiDone <- runErr
		}()
		cfg.Opts.Progress = func(path, stage string) {
			events <- ui.Event{File: path, Stage: stage}
		}
	}

	timer := observ.NewTimer()
	indexDone := timer.Track(observ.StageInitialIndex)

	gs := core.NewGlobalState(cfg.Tracer)
	ix := indexer.New(cfg, gs, kv)
	pool := workers.NewPool(cfg.Opts.Workers, cfg.Tracer)

	var updates indexer.FileUpdates
	err = ix.Initialize(&updates, pool)
	indexDone(len(cfg.Opts.InputFileNames))

	if events != nil {
		for _, path := range cfg.Opts.InputFileNames {
			events <- ui.Event{File: path, Stage: "done"}
		}
		close(events)
		if uiErr := <-uiDone; uiErr != nil {
			fmt.Fprintf(os.Stderr, "lumen: progress ui: %v\n", uiErr)
		}
	}
	if err != nil {
		return err
	}

	if !quiet {
		defCount := 0
		for _, parsed := range updates.UpdatedFileIndexes {
			if parsed.Tree != nil {
				defCount += len(parsed.Tree.Defs)
			}
		}
		fmt.Printf("indexed %d files, %d top-level definitions\n",
			len(cfg.Opts.InputFileNames), defCount)
	}
	if showTimings {
		fmt.Print(timer.Summary())
		for _, line := range metrics.Snapshot() {
			fmt.Printf("  %s{%s} = %d\n", line.Category, line.Tag, line.Value)
		}
	}
	return nil
}
