package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/pipeline"
	"github.com/kris-hansen/promptchain/utils/server"
)

var servePort int
var serveChainsDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve chain definitions over HTTP",
	Long: `Start the HTTP server or manage its configuration.

Every *.yaml file in the chains directory is built once at startup and
served under its name. All requests to a chain share the same graph.

Endpoints:
  POST /v1/chains/{name}       Run a chain: {"inputs": {...}, "stops": [...]}
  GET  /v1/chains              List chains with their inputs and output key
  GET  /health                 Health check endpoint

OpenAI-Compatible Endpoints (when enabled):
  GET  /v1/models              List chains as models
  POST /v1/chat/completions    Run a chain on the last user message`,
	Example: `  # Start the server on the configured port
  promptchain serve

  # Override the port and chains directory
  promptchain serve --port 9000 --chains ./chains

  # View current configuration
  promptchain serve show`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.SetFlags(log.LstdFlags)

		serverCfg := appConfig.Server
		if servePort != 0 {
			serverCfg.Port = servePort
		}
		if serveChainsDir != "" {
			dir, err := config.ExpandPath(serveChainsDir)
			if err != nil {
				return fmt.Errorf("invalid chains directory: %w", err)
			}
			serverCfg.ChainsDir = dir
		}
		if serverCfg.ChainsDir == "" {
			return fmt.Errorf("no chains directory configured. Use --chains or 'promptchain serve chains-dir <path>'")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		defs, err := pipeline.LoadDir(serverCfg.ChainsDir, appConfig)
		if err != nil {
			return err
		}
		if len(defs) == 0 {
			log.Printf("[WARN] No chain definitions found in %s\n", serverCfg.ChainsDir)
		}

		mc, store, err := pipeline.OpenModelCache(ctx, appConfig.Cache)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer closeCacheStore(store)

		srv, err := server.New(ctx, &serverCfg, defs, pipeline.NewBuilder(appConfig, mc))
		if err != nil {
			return fmt.Errorf("failed to build chains: %w", err)
		}
		defer srv.Close()

		if serverCfg.BearerToken == "" {
			log.Printf("[WARN] Bearer token authentication is disabled\n")
		}
		return srv.ListenAndServe(ctx)
	},
}

var showServerCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current server configuration",
	Run: func(cmd *cobra.Command, args []string) {
		s := appConfig.Server
		log.Printf("\nServer Configuration:\n")
		log.Printf("Port: %d\n", s.Port)
		log.Printf("Chains Directory: %s\n", s.ChainsDir)
		log.Printf("Authentication Enabled: %v\n", s.BearerToken != "")
		if s.BearerToken != "" {
			log.Printf("Bearer Token: %s\n", s.BearerToken)
		}

		log.Printf("\nCORS Configuration:\n")
		log.Printf("Enabled: %v\n", s.CORS.Enabled)
		if s.CORS.Enabled {
			log.Printf("Allowed Origins: %s\n", strings.Join(s.CORS.AllowedOrigins, ", "))
			log.Printf("Allowed Methods: %s\n", strings.Join(s.CORS.AllowedMethods, ", "))
			log.Printf("Allowed Headers: %s\n", strings.Join(s.CORS.AllowedHeaders, ", "))
			log.Printf("Max Age: %d seconds\n", s.CORS.MaxAge)
		}

		log.Printf("\nOpenAI Compatibility:\n")
		log.Printf("Enabled: %v\n", s.OpenAICompat)
		if s.OpenAICompat {
			log.Printf("Endpoints: /v1/models, /v1/chat/completions\n")
		}
		log.Printf("\n")
	},
}

var updatePortCmd = &cobra.Command{
	Use:     "port <port-number>",
	Short:   "Set the server port",
	Example: `  promptchain serve port 3000`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port number: %s", args[0])
		}
		appConfig.Server.Port = port
		if err := saveAppConfig(); err != nil {
			return err
		}
		log.Printf("Server port updated to %d\n", port)
		return nil
	},
}

var updateChainsDirCmd = &cobra.Command{
	Use:   "chains-dir <path>",
	Short: "Set the directory of served chain definitions",
	Long: `Set the directory holding the chain definition files the server builds
at startup. The directory is created if it doesn't exist.`,
	Example: `  promptchain serve chains-dir /var/promptchain/chains`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid directory path: %w", err)
		}
		if err := os.MkdirAll(absPath, 0755); err != nil {
			return fmt.Errorf("cannot create directory (check permissions): %w", err)
		}

		appConfig.Server.ChainsDir = absPath
		if err := saveAppConfig(); err != nil {
			return err
		}
		log.Printf("Chains directory updated to %s\n", absPath)
		return nil
	},
}

var newTokenCmd = &cobra.Command{
	Use:   "newtoken",
	Short: "Generate a new bearer token",
	Long: `Generate a new bearer token for server authentication.

This replaces any existing token. The new token is displayed and saved
to the configuration file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := config.GenerateBearerToken()
		if err != nil {
			return err
		}
		appConfig.Server.BearerToken = token
		if err := saveAppConfig(); err != nil {
			return err
		}
		log.Printf("Generated new bearer token: %s\n", token)
		return nil
	},
}

var openaiCompatCmd = &cobra.Command{
	Use:     "openai-compat <on|off>",
	Short:   "Enable or disable the OpenAI-compatible endpoints",
	Example: `  promptchain serve openai-compat on`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch strings.ToLower(args[0]) {
		case "on":
			appConfig.Server.OpenAICompat = true
		case "off":
			appConfig.Server.OpenAICompat = false
		default:
			return fmt.Errorf("please specify either 'on' or 'off'")
		}
		if err := saveAppConfig(); err != nil {
			return err
		}
		log.Printf("OpenAI compatibility %s\n", map[bool]string{true: "enabled", false: "disabled"}[appConfig.Server.OpenAICompat])
		return nil
	},
}

// saveAppConfig writes the loaded configuration back to where it came from
func saveAppConfig() error {
	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	path, err := config.ExpandPath(path)
	if err != nil {
		return err
	}
	if err := config.SaveConfig(path, appConfig); err != nil {
		return err
	}
	config.VerboseLog("Configuration saved to %s", path)
	return nil
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides the configuration)")
	serveCmd.Flags().StringVar(&serveChainsDir, "chains", "", "directory of chain definitions (overrides the configuration)")
	serveCmd.AddCommand(showServerCmd)
	serveCmd.AddCommand(updatePortCmd)
	serveCmd.AddCommand(updateChainsDirCmd)
	serveCmd.AddCommand(newTokenCmd)
	serveCmd.AddCommand(openaiCompatCmd)
	rootCmd.AddCommand(serveCmd)
}
