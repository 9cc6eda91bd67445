package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Mosaic - adaptive fragment retrieval and generation pipeline",
	Long: `Mosaic turns a folder of collected fragments (notes, references, images)
into structured ideation sessions: it ranks fragments for relevance, diversity,
and novelty, generates quadrant statements through a tiered gateway, and adapts
to recorded user outcomes.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to mosaic.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func Execute() error {
	return rootCmd.Execute()
}
