// Package main provides the tts-history CLI, a maintenance tool for the
// local cache of generated speech clips.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-history/internal/history"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	dataDir    string
	maxEntries int
	debug      bool

	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}).
		Render
	subtle = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}).
		Render
	paragraph = lipgloss.NewStyle().
			Width(78).
			Padding(0, 0, 0, 2).
			Render

	rootCmd = &cobra.Command{
		Use:   "tts-history",
		Short: "Inspect and maintain the local speech clip history",
		Long: paragraph(
			fmt.Sprintf("\nInspect and maintain the %s kept for generated speech clips.", keyword("local audio history")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
	}
)

// openCache builds the history cache from the layered configuration:
// environment first, then the config file, then flags. When migrate is
// set, legacy inline-payload entries are converted before the cache is
// handed to the caller.
func openCache(migrate bool) (*history.Cache, error) {
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := history.LoadConfig()
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("history.dir"); v != "" {
		cfg.DataDir = v
	}
	if v := viper.GetInt("history.max_entries"); v > 0 {
		cfg.MaxEntries = v
	}
	if viper.IsSet("history.compression") {
		cfg.CompressionLevel = viper.GetInt("history.compression")
	}

	cache, err := history.New(cfg, log.Default())
	if err != nil {
		return nil, fmt.Errorf("unable to open history cache: %w", err)
	}

	if migrate {
		if n, err := cache.MigrateLegacy(); err != nil {
			log.Warn("Legacy history migration incomplete", "error", err)
		} else if n > 0 {
			log.Debug("Migrated legacy history entries", "count", n)
		}
	}

	return cache, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "history data directory")
	rootCmd.PersistentFlags().IntVar(&maxEntries, "max-entries", 0, "history capacity")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose logging")

	_ = viper.BindPFlag("history.dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("history.max_entries", rootCmd.PersistentFlags().Lookup("max-entries"))

	viper.SetDefault("history.dir", "")
	viper.SetDefault("history.max_entries", 5)
	viper.SetDefault("history.compression", 3)

	rootCmd.AddCommand(listCmd, showCmd, addCmd, clearCmd, migrateCmd, statsCmd, configCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "tts-history")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "tts-history")}, dirs...)
	}

	if c := os.Getenv("TTS_HISTORY_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("tts-history")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("tts_history")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "tts-history.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
