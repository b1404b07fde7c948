// Package commands implements CLI command handlers for demolens.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"demolens/cache"
)

// NewRootCommand builds the demolens command tree. Settings resolve
// from flags, then DEMOLENS_* environment variables, then defaults.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "demolens",
		Short: "demolens - TF2 demo analysis",
		Long: `demolens analyses recorded TF2 demo files into match summaries:
per-player kills, assists and deaths, class and team time, ping and a
chronological kill feed. Summaries are cached by file content so
repeat runs are free.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging()
		},
	}

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("cache-dir", "", "analysed demo cache directory (default: user config dir)")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.SetEnvPrefix("DEMOLENS")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newAnalyseCommand())
	rootCmd.AddCommand(newIndexCommand())
	rootCmd.AddCommand(newExportCommand())

	return rootCmd
}

func setupLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log_level"))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", viper.GetString("log_level"), err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
	return nil
}

func openCache() (*cache.Cache, error) {
	dir := viper.GetString("cache_dir")
	if dir == "" {
		var err error
		dir, err = cache.DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	return cache.New(dir), nil
}
