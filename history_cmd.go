package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-history/internal/history"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	showOutput string
	addText    string
	addModel   string

	listCmd = &cobra.Command{
		Use:     "list",
		Short:   "List cached speech clips, newest first",
		Example: "tts-history list",
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cache, err := openCache(true)
			if err != nil {
				return err
			}
			defer cache.Close() //nolint:errcheck

			entries := cache.List()
			if len(entries) == 0 {
				fmt.Println("No history yet.")
				return nil
			}

			for _, entry := range entries {
				fmt.Printf("%s  %s  %s\n    %s\n",
					keyword(shortID(entry.ID)),
					entry.Model,
					subtle(humanize.Time(entry.CreatedAt)),
					truncateText(entry.Text, 70),
				)
			}
			return nil
		},
	}

	showCmd = &cobra.Command{
		Use:     "show <id>",
		Short:   "Write a cached clip's audio to a file or stdout",
		Example: "tts-history show 1b9d6bcd -o clip.mp3",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cache, err := openCache(true)
			if err != nil {
				return err
			}
			defer cache.Close() //nolint:errcheck

			id, err := resolveID(cache, args[0])
			if err != nil {
				return err
			}

			entry, payload, err := cache.Lookup(id)
			if errors.Is(err, history.ErrAudioMissing) {
				return fmt.Errorf("audio for %q is no longer available", entry.Text)
			}
			if err != nil {
				return err
			}

			if showOutput != "" {
				if err := os.WriteFile(showOutput, payload, 0o644); err != nil {
					return fmt.Errorf("unable to write audio file: %w", err)
				}
				log.Info("Wrote audio", "path", showOutput, "size", humanize.IBytes(uint64(len(payload))))
				return nil
			}

			_, err = os.Stdout.Write(payload)
			return err
		},
	}

	addCmd = &cobra.Command{
		Use:     "add <audio-file>",
		Short:   "Insert a clip into the history",
		Example: `tts-history add clip.mp3 --text "hello world" --model aura-asteria-en`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("unable to read audio file: %w", err)
			}

			cache, err := openCache(true)
			if err != nil {
				return err
			}
			defer cache.Close() //nolint:errcheck

			entry, err := cache.Insert(addText, addModel, payload)
			if err != nil {
				return err
			}

			fmt.Println("Added", keyword(entry.ID))
			return nil
		},
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached clips and their metadata",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cache, err := openCache(false)
			if err != nil {
				return err
			}
			defer cache.Close() //nolint:errcheck

			if err := cache.ClearAll(); err != nil {
				return err
			}
			fmt.Println("History cleared.")
			return nil
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Move legacy inline audio payloads into the blob store",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cache, err := openCache(false)
			if err != nil {
				return err
			}
			defer cache.Close() //nolint:errcheck

			n, err := cache.MigrateLegacy()
			if err != nil {
				return err
			}
			fmt.Printf("Migrated %d entries.\n", n)
			return nil
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cache, err := openCache(true)
			if err != nil {
				return err
			}
			defer cache.Close() //nolint:errcheck

			stats, err := cache.Stats()
			if err != nil {
				return err
			}

			fmt.Printf("Entries:   %d / %d\n", stats.Entries, stats.Capacity)
			fmt.Printf("Audio:     %s\n", humanize.IBytes(uint64(stats.BlobBytes)))
			fmt.Printf("Data dir:  %s\n", stats.DataDir)
			return nil
		},
	}
)

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "", "write audio to file instead of stdout")
	addCmd.Flags().StringVar(&addText, "text", "", "source text of the clip")
	addCmd.Flags().StringVar(&addModel, "model", "aura-asteria-en", "synthesis model used")
	_ = addCmd.MarkFlagRequired("text")
}

// resolveID expands a unique id prefix, as printed by list, to a full id.
func resolveID(cache *history.Cache, prefix string) (string, error) {
	var match string
	for _, entry := range cache.List() {
		if !strings.HasPrefix(entry.ID, prefix) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
		}
		match = entry.ID
	}
	if match == "" {
		return "", fmt.Errorf("no history entry matches %q", prefix)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
