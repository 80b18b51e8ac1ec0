package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/promptslot/internal/config"
)

var configShowOpts struct {
	json bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the promptslot configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the effective SDK and arbiter configuration after applying the
config file's metadata over the built-in defaults.`,
	RunE: runConfigShow,
}

var configWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the config file and print each reload",
	RunE:  runConfigWatch,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configWatchCmd)

	configShowCmd.Flags().BoolVar(&configShowOpts.json, "json", false,
		"Output the effective SDK configuration as JSON")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	sdk := cfg.SDK(logger)
	w := cmd.OutOrStdout()

	if configShowOpts.json {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(sdk)
	}

	printConfig(w, cfg, sdk)
	return nil
}

func printConfig(w io.Writer, f *config.File, sdk *config.SDKConfig) {
	fmt.Fprintln(w, headerStyle.Render("Arbiter"))
	printField(w, "Config file", configPath())
	printField(w, "Stale lock timeout", f.Arbiter.StaleLockTimeout.Duration())
	printField(w, "Image quality", f.Arbiter.ImageQuality)
	printField(w, "Journal", f.Arbiter.Journal())
	printField(w, "Saved state", f.Arbiter.SavedState())

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("SDK"))
	printField(w, "Bulk upload limit", sdk.BulkUploadLimit)
	printField(w, "Flush interval (ms)", sdk.FlushInterval)
	printField(w, "Data expiration (ms)", sdk.DataExpiration)
	printField(w, "Disable fallback", sdk.DisableFallback)
	printField(w, "Auto check data", sdk.AutoCheckMixpanelData)
	printField(w, "Events endpoint", sdk.EventsEndpoint)
	printField(w, "Events fallback", sdk.EventsFallbackEndpoint)
	printField(w, "People endpoint", sdk.PeopleEndpoint)
	printField(w, "People fallback", sdk.PeopleFallbackEndpoint)
	printField(w, "Decide endpoint", sdk.DecideEndpoint)
	printField(w, "Decide fallback", sdk.DecideFallbackEndpoint)
}

func runConfigWatch(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(configPath()), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	watcher, err := config.NewWatcher(configPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	watcher.SetReloadCallback(func(f *config.File) {
		fmt.Fprintln(w, okStyle.Render("reloaded"))
		printConfig(w, f, f.SDK(logger))
		fmt.Fprintln(w)
	})
	watcher.SetErrorCallback(func(err error) {
		fmt.Fprintln(w, denyStyle.Render("rejected: ") + err.Error())
	})

	if err := watcher.Start(ctx, cfg); err != nil {
		return fmt.Errorf("failed to watch %s: %w", configPath(), err)
	}
	defer watcher.Stop()

	fmt.Fprintf(w, "Watching %s (Ctrl-C to stop)\n", configPath())
	<-ctx.Done()
	return nil
}
