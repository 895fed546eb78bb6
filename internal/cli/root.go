package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgpai22/lipistudio/internal/config"
	"github.com/mgpai22/lipistudio/internal/logging"
)

var (
	verbose  bool
	envFiles []string
	logger   *logging.Logger
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lipistudio",
	Short: "Transcript editor with live caption playback",
	Long: `lipistudio transcribes videos through a speech-to-text provider, lets you
edit the resulting segments, previews captions against a playback clock and
exports them as SRT, VTT or ASS.

Settings come from .env files and the environment; flags override both.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.NewLogger(verbose)

		if len(envFiles) > 0 {
			if _, err := config.LoadEnvFiles(envFiles...); err != nil {
				return err
			}
		}
		var err error
		if cfg, err = config.Load(); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyFlags(cmd, cfg)

		logger.Debugw("config loaded", "env_files", cfg.EnvFiles, "provider", cfg.Provider)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		StringSliceVar(&envFiles, "env-file", nil, "Additional .env files to load")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output file path")
	rootCmd.PersistentFlags().
		StringP("language", "l", "", "Language code (e.g., hi, en, es)")
	rootCmd.PersistentFlags().
		String("provider", "", "AI provider (openai, gemini, anthropic)")
	rootCmd.PersistentFlags().
		String("model", "", "Model to use (provider-specific, uses sensible defaults)")
	rootCmd.PersistentFlags().
		StringP("api-key", "k", "", "API key for the selected provider")
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("language") {
		c.Language, _ = flags.GetString("language")
	}
	if flags.Changed("provider") {
		p, _ := flags.GetString("provider")
		c.Provider = normalizeProvider(p)
	}
	if flags.Changed("model") {
		c.Model, _ = flags.GetString("model")
	}
	if flags.Changed("api-key") {
		key, _ := flags.GetString("api-key")
		setAPIKey(c, c.Provider, key)
	}
}

func setAPIKey(c *config.Config, provider, key string) {
	switch normalizeProvider(provider) {
	case "gemini":
		c.GeminiKey = key
	case "anthropic":
		c.AnthropicKey = key
	default:
		c.OpenAIKey = key
	}
}
