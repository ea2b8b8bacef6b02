package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/models"
)

var modelsShowKnown bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured models",
	Long: `List the named models in the configuration with their provider. Models
configured with provider "auto" show the provider detected from the model name.

With --known, also list the models each provider is known to serve.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		writeConfiguredModels(out, appConfig)
		if modelsShowKnown {
			fmt.Fprintln(out)
			writeKnownModels(out, models.GetRegistry())
		}
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsShowKnown, "known", false, "also list the models known per provider")
	rootCmd.AddCommand(modelsCmd)
}

// describeModel returns the provider serving spec and a note for the listing
func describeModel(spec config.ModelSpec) (string, string) {
	provider := strings.ToLower(spec.Provider)
	var notes []string
	if provider == "auto" {
		detected, ok := models.GetRegistry().DetectProvider(spec.Model)
		if !ok {
			return "auto", "provider not detected"
		}
		provider = detected
		spec.Provider = detected
		notes = append(notes, "detected")
	}
	if spec.UseCache {
		notes = append(notes, "cached")
	}
	if models.RequiresAPIKey(provider) && spec.ResolveAPIKey() == "" {
		notes = append(notes, "no API key")
	}
	return provider, strings.Join(notes, ", ")
}

func writeConfiguredModels(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, keyStyle.Render("Configured Models"))
	if len(cfg.Models) == 0 {
		fmt.Fprintln(w, faintStyle.Render("  none, add models to "+config.GetConfigPath()))
		return
	}

	names := make([]string, 0, len(cfg.Models))
	for name := range cfg.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := cfg.Models[name]
		provider, note := describeModel(spec)
		marker := "  "
		if name == cfg.DefaultModel {
			marker = "* "
		}
		line := fmt.Sprintf("%s%s  %s/%s", marker, outputStyle.Render(name), provider, spec.Model)
		if note != "" {
			line += "  " + faintStyle.Render("("+note+")")
		}
		fmt.Fprintln(w, line)
	}
}

func writeKnownModels(w io.Writer, registry *models.ModelRegistry) {
	fmt.Fprintln(w, keyStyle.Render("Known Models"))
	for _, provider := range registry.Providers() {
		fmt.Fprintf(w, "  %s\n", titleKey(provider))
		for _, m := range registry.GetModels(provider) {
			fmt.Fprintf(w, "    - %s\n", m)
		}
	}
}
