package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"riskai/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the analysis artifact cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached analysis artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(nil)
		if err != nil {
			return err
		}
		cfg.Cache.Enabled = true
		store, err := openStore(cfg, zap.NewNop())
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer store.Close()

		removed, err := store.Clear(cmd.Context())
		if err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Cache cleared, %d records removed.\n", removed)
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"stats"},
	Short:   "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(nil)
		if err != nil {
			return err
		}
		if !cfg.Cache.Enabled {
			fmt.Fprintln(os.Stdout, "Cache is disabled.")
			return nil
		}
		store, err := openStore(cfg, zap.NewNop())
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading cache stats: %w", err)
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove cached artifacts older than the configured TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(nil)
		if err != nil {
			return err
		}
		cfg.Cache.Enabled = true
		store, err := openStore(cfg, zap.NewNop())
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer store.Close()

		removed, err := store.PurgeExpired(cmd.Context())
		if err != nil {
			return fmt.Errorf("purging cache: %w", err)
		}
		fmt.Fprintf(os.Stdout, "%d expired records removed.\n", removed)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}
