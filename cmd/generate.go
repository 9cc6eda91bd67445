package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adalundhe/mosaic/core/fragment"
	"github.com/adalundhe/mosaic/core/session"
)

var (
	generateFragmentDir string
	generateIntent      string
	generateType        string
	generateOffline     bool
	generateJSON        bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation session over a fragment directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		intentType, err := parseIntentType(generateType)
		if err != nil {
			return err
		}

		app, err := buildApp(generateOffline)
		if err != nil {
			return err
		}

		source, err := loadFragmentDir(generateFragmentDir)
		if err != nil {
			return err
		}
		warmCache(app, source)

		state, err := app.orchestrator.StartSession(
			cmd.Context(), source.Fragments(), generateIntent, intentType)
		if err != nil {
			return err
		}

		if generateJSON {
			return printSessionJSON(state)
		}
		printSession(state)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateFragmentDir, "fragments", "", "directory of fragment files")
	generateCmd.Flags().StringVar(&generateIntent, "intent", "", "free-text session intent")
	generateCmd.Flags().StringVar(&generateType, "type", "clarify", "session type: clarify, expand, or refine")
	generateCmd.Flags().BoolVar(&generateOffline, "offline", false, "use the deterministic mock backend")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "emit the session as JSON")
	generateCmd.MarkFlagRequired("fragments")
	generateCmd.MarkFlagRequired("intent")

	rootCmd.AddCommand(generateCmd)
}

func printSession(state *session.State) {
	fmt.Printf("session %s (%s)\n", state.ID, state.Status)
	fmt.Printf("focal question: %s\n\n", state.FocalQuestion)

	for _, mode := range fragment.AllModes() {
		pool := state.Pool(mode)
		fmt.Printf("[%s]\n", mode)
		if len(pool) == 0 {
			fmt.Println("  (empty)")
		}
		for _, piece := range pool {
			fmt.Printf("  %d. %s", piece.Priority, piece.Statement)
			if piece.FragmentID != "" {
				fmt.Printf("  (from %s)", piece.FragmentID)
			}
			fmt.Println()
		}
		fmt.Println()
	}

	for _, failure := range state.Errors() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", failure.Message)
	}
}

type sessionOutput struct {
	ID            string                              `json:"id"`
	Status        session.Status                      `json:"status"`
	FocalQuestion string                              `json:"focal_question"`
	Intent        string                              `json:"intent"`
	IntentType    fragment.IntentType                 `json:"intent_type"`
	Quadrants     map[fragment.Mode][]*fragment.Piece `json:"quadrants"`
	Errors        []session.QuadrantError             `json:"errors,omitempty"`
}

func printSessionJSON(state *session.State) error {
	out := sessionOutput{
		ID:            state.ID,
		Status:        state.Status,
		FocalQuestion: state.FocalQuestion,
		Intent:        state.Intent,
		IntentType:    state.IntentType,
		Quadrants:     make(map[fragment.Mode][]*fragment.Piece, 4),
		Errors:        state.Errors(),
	}
	for _, mode := range fragment.AllModes() {
		out.Quadrants[mode] = state.Pool(mode)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
