package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kris-hansen/promptchain/utils/cache"
	"github.com/kris-hansen/promptchain/utils/chain"
	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/errkind"
	"github.com/kris-hansen/promptchain/utils/pipeline"
)

// stdinValue marks a --vars value to be replaced by STDIN
const stdinValue = "STDIN"

var runVars []string
var runStops []string
var runShowAll bool
var runTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run <chain.yaml>",
	Short: "Run a chain definition once",
	Long: `Build the chain described by a YAML definition and run one request through it.

Inputs come from --vars. Data piped into STDIN fills the chain's only input
variable, or any variable given the value STDIN.`,
	Example: `  # Fill the template variables on the command line
  promptchain run product-name.yaml --vars product=socks

  # Pipe a document into a single-input chain
  cat notes.txt | promptchain run summarize.yaml

  # Map STDIN to a named variable and stop at a blank line
  cat q.txt | promptchain run qa.yaml --vars question=STDIN --vars context=none --stop "\n\n"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := pipeline.Load(args[0], appConfig)
		if err != nil {
			return err
		}

		values, err := parseVars(runVars)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, closeCache, err := buildChain(ctx, def)
		if err != nil {
			return err
		}
		defer closeCache()

		input, piped, err := readStdin(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if piped {
			fillStdin(values, c.InputVariables(), input)
		}

		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}

		config.VerboseLog("Running chain %s (inputs %v, output %s)", def.Name, c.InputVariables(), c.DefaultOutputKey())
		start := time.Now()
		result, err := chain.NewExecutor(c).Run(ctx, values, unescapeStops(runStops))
		if err != nil {
			return fmt.Errorf("chain %s failed: %w", def.Name, err)
		}
		config.VerboseLog("Chain %s finished in %s", def.Name, time.Since(start).Round(time.Millisecond))

		out := cmd.OutOrStdout()
		if runShowAll {
			fmt.Fprintln(out, renderValues(result, c.DefaultOutputKey()))
			return nil
		}
		fmt.Fprintln(out, result[c.DefaultOutputKey()])
		return nil
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "vars", nil, "input value as key=value (repeatable)")
	runCmd.Flags().StringArrayVar(&runStops, "stop", nil, "stop sequence passed to the models (repeatable)")
	runCmd.Flags().BoolVarP(&runShowAll, "all", "a", false, "print every value of the result, not just the output")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "give up after this long (0 waits forever)")
	rootCmd.AddCommand(runCmd)
}

// buildChain opens the configured cache and builds def. The returned func closes the cache store.
func buildChain(ctx context.Context, def *pipeline.Definition) (chain.Chain, func(), error) {
	mc, store, err := pipeline.OpenModelCache(ctx, appConfig.Cache)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache: %w", err)
	}
	closeStore := func() { closeCacheStore(store) }

	c, err := pipeline.NewBuilder(appConfig, mc).Build(ctx, def, chain.WithContext(ctx))
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return c, closeStore, nil
}

func closeCacheStore(store cache.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		config.DebugLog("Failed to close cache store: %v", err)
	}
}

// parseVars turns key=value flags into chain inputs
func parseVars(flags []string) (map[string]string, error) {
	values := make(map[string]string, len(flags))
	for _, f := range flags {
		k, v, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: --vars %q must be key=value", errkind.InvalidArgument, f)
		}
		values[strings.TrimSpace(k)] = v
	}
	return values, nil
}

// readStdin returns piped input. A terminal or an empty stream counts as no input.
func readStdin(r io.Reader) (string, bool, error) {
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", false, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", false, fmt.Errorf("error reading from STDIN: %w", err)
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

// fillStdin puts input into every variable marked STDIN, or into the chain's only
// input variable when nothing was marked and that variable is still unset.
func fillStdin(values map[string]string, vars []string, input string) {
	marked := false
	for k, v := range values {
		if v == stdinValue {
			values[k] = input
			marked = true
		}
	}
	if marked || len(vars) != 1 {
		return
	}
	if _, ok := values[vars[0]]; !ok {
		values[vars[0]] = input
	}
}

// unescapeStops lets stop sequences such as "\n\n" be typed on the command line
func unescapeStops(stops []string) []string {
	if len(stops) == 0 {
		return nil
	}
	r := strings.NewReplacer(`\n`, "\n", `\t`, "\t")
	out := make([]string, len(stops))
	for i, s := range stops {
		out[i] = r.Replace(s)
	}
	return out
}
