package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/promptchain/utils/config"
)

// version is set at build time
var version string

var verbose bool
var debug bool
var configPath string

// appConfig holds the loaded configuration, available to all commands
var appConfig *config.Config

// logFile holds the log file handle so Execute can close it
var logFile *os.File

var rootCmd = &cobra.Command{
	Use:   "promptchain",
	Short: "Compose LLM calls into chains and run them",
	Long: `Promptchain composes calls to large language models into chains: prompt
templates feeding models, sequential pipelines, fan-out/fan-in joins and
map-reduce summarization of long documents.

Getting Started:
  1. Describe your models in ~/.promptchain/config.yaml
  2. promptchain run chain.yaml --vars topic=socks
  3. promptchain serve

The configuration path can be changed with --config or PROMPTCHAIN_CONFIG.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// CLI output has no timestamps; serve sets its own flags
		log.SetFlags(0)

		if logFileName := os.Getenv("PROMPTCHAIN_LOG_FILE"); logFileName != "" && logFile == nil {
			if file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err == nil {
				logFile = file
				log.SetOutput(file)
				log.Printf("[INFO] Logging session started at %s\n", time.Now().Format(time.RFC3339))
			} else {
				log.Printf("[WARN] Failed to open log file '%s': %v. Continuing with stderr logging.\n", logFileName, err)
			}
		}

		config.Verbose = verbose
		config.Debug = debug

		path := configPath
		if path == "" {
			path = config.GetConfigPath()
		}
		path, err := config.ExpandPath(path)
		if err != nil {
			return fmt.Errorf("invalid config path: %w", err)
		}
		config.DebugLog("Loading configuration from %s", path)

		appConfig, err = config.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default ~/.promptchain/config.yaml)")
	rootCmd.AddCommand(versionCmd)
}

// getVersion returns the build-time version, or the VERSION file for development builds
func getVersion() string {
	if version != "" {
		return version
	}

	_, filename, _, ok := runtime.Caller(0)
	if ok {
		projectRoot := filepath.Dir(filepath.Dir(filename))
		content, err := os.ReadFile(filepath.Join(projectRoot, "VERSION"))
		if err == nil {
			return "v" + strings.TrimSpace(string(content)) + "-dev"
		}
	}

	return "unknown (build with: go build -ldflags \"-X 'github.com/kris-hansen/promptchain/cmd.version=vX.Y.Z'\")"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "promptchain version: %s\n", getVersion())
	},
}

// closeLogFile flushes and closes the session log file, if one was opened
func closeLogFile() {
	if logFile == nil {
		return
	}
	log.Printf("[INFO] Logging session ended at %s\n", time.Now().Format(time.RFC3339))
	if err := logFile.Sync(); err != nil {
		log.Printf("[WARN] Failed to sync log file: %v\n", err)
	}
	logFile.Close()
	logFile = nil
	log.SetOutput(os.Stderr)
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	closeLogFile()
	if err != nil {
		if strings.Contains(err.Error(), "unknown command") && strings.HasSuffix(os.Args[len(os.Args)-1], ".yaml") {
			fmt.Fprintf(os.Stderr, "To run a chain definition, use the 'run' command:\n\n   promptchain run %s\n\n", os.Args[len(os.Args)-1])
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
