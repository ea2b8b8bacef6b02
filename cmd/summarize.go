package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/promptchain/utils/chain"
	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/errkind"
	"github.com/kris-hansen/promptchain/utils/pipeline"
)

var summarizeModel string
var summarizeMaxTokens int
var summarizeMaxRounds int

var summarizeCmd = &cobra.Command{
	Use:   "summarize <file|->",
	Short: "Summarize a long document with map-reduce",
	Long: `Split a document into chunks, summarize every chunk and combine the
summaries into one. Use "-" to read the document from STDIN.

Chunks hold at most --max-tokens * 4 characters. Combined summaries that are
still too long go through the map phase again, at most --max-rounds times.`,
	Example: `  promptchain summarize report.txt
  curl -s https://example.com/article.txt | promptchain summarize - --max-tokens 500 -m gpt4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readDocument(cmd, args[0])
		if err != nil {
			return err
		}

		def := &pipeline.Definition{
			Name: "summarize",
			Chain: pipeline.Step{
				Type:      pipeline.StepMapReduce,
				Model:     summarizeModel,
				MaxTokens: summarizeMaxTokens,
				MaxRounds: summarizeMaxRounds,
			},
		}
		if result := pipeline.Validate(def, appConfig); !result.Valid {
			return fmt.Errorf("%w: %s", errkind.InvalidOperation, result.ErrorSummary())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, closeCache, err := buildChain(ctx, def)
		if err != nil {
			return err
		}
		defer closeCache()

		config.VerboseLog("Summarizing %d characters", len([]rune(text)))
		summary, err := chain.NewExecutor(c).Prompt(ctx, text)
		if err != nil {
			return fmt.Errorf("summarize failed: %w", err)
		}
		if summary == "" {
			config.VerboseLog("Nothing to summarize")
		}
		fmt.Fprintln(cmd.OutOrStdout(), summary)
		return nil
	},
}

func init() {
	summarizeCmd.Flags().StringVarP(&summarizeModel, "model", "m", "", "named model from the configuration (default model when empty)")
	summarizeCmd.Flags().IntVar(&summarizeMaxTokens, "max-tokens", chain.DefaultMaxTokens, "chunk size in tokens")
	summarizeCmd.Flags().IntVar(&summarizeMaxRounds, "max-rounds", chain.DefaultMaxRounds, "limit on map rounds for oversized summaries")
	rootCmd.AddCommand(summarizeCmd)
}

func readDocument(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("error reading from STDIN: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
