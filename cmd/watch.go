package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/adalundhe/mosaic/core/collectors"
	"github.com/adalundhe/mosaic/core/fragment"
)

var (
	watchFragmentDir string
	watchOffline     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a fragment directory and keep insights warm",
	Long: `Watches the fragment directory for changes, feeds change bursts to the
debounced context collector, and runs the periodic insight precomputation loop.
Precomputed focal questions are printed as they refresh.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(watchOffline)
		if err != nil {
			return err
		}

		source, err := loadFragmentDir(watchFragmentDir)
		if err != nil {
			return err
		}

		collector := collectors.NewContextCollector(
			app.cfg.Collector, source, app.cache)
		precomputer := collectors.NewInsightPrecomputer(
			app.cfg.Insights, collector, source, app.gateway)

		index, err := collectors.NewSearchIndex()
		if err != nil {
			return err
		}
		defer index.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go precomputer.Run(ctx)
		go reportReadiness(ctx, collector, precomputer, index, source)

		// Seed one full pass so a cold start still produces insights.
		ids := make([]string, 0)
		for _, frag := range source.Fragments() {
			ids = append(ids, frag.ID)
		}
		collector.NotifyChanged(ids...)

		if err := watchDirectory(ctx, watchFragmentDir, source, collector); err != nil {
			return err
		}

		<-ctx.Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchFragmentDir, "fragments", "", "directory of fragment files")
	watchCmd.Flags().BoolVar(&watchOffline, "offline", false, "use the deterministic mock backend")
	watchCmd.MarkFlagRequired("fragments")

	rootCmd.AddCommand(watchCmd)
}

// watchDirectory wires fsnotify events into the collector: every
// relevant file change reloads the source and notifies the changed id.
func watchDirectory(ctx context.Context, root string, source *dirSource, collector *collectors.ContextCollector) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	err = filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", root, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := source.Reload(); err != nil {
					fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
					continue
				}
				if rel, err := filepath.Rel(root, event.Name); err == nil {
					collector.NotifyChanged(rel)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
			}
		}
	}()

	return nil
}

// reportReadiness prints collector batches and fresh insight snapshots
// as they land, and keeps the search index in step with the source.
func reportReadiness(ctx context.Context, collector *collectors.ContextCollector, precomputer *collectors.InsightPrecomputer, index *collectors.SearchIndex, source *dirSource) {
	ready := collector.Subscribe()
	var lastQuestions string

	for {
		select {
		case <-ctx.Done():
			return
		case <-ready:
			if err := index.Rebuild(source.Fragments()); err != nil {
				fmt.Fprintf(os.Stderr, "index rebuild failed: %v\n", err)
			}
			count, _ := index.Count()
			fmt.Printf("context ready: %d fragments indexed\n", count)

			precomputer.ComputeNow(ctx)
			if snapshot, stale := precomputer.Snapshot(); snapshot != nil && !stale {
				joined := strings.Join(snapshot.FocalQuestions, " | ")
				if joined != lastQuestions && joined != "" {
					lastQuestions = joined
					fmt.Println("focal question candidates:")
					for _, question := range snapshot.FocalQuestions {
						fmt.Printf("  - %s\n", question)
					}
					for _, mode := range fragment.AllModes() {
						fmt.Printf("  [%s] %d fragments\n", mode, len(snapshot.ModeAssignments[mode]))
					}
				}
			}
		}
	}
}
