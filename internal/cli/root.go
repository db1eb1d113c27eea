// Package cli implements the memcompose CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/engine"
	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/store"
)

var (
	dbPath     string
	configPath string
	profile    string
	logLevel   string
	owner      string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memcompose",
	Short: "Adaptive memory and prompt composition for a personal assistant",
	Long: "Stores long-term memories in SQLite, plans how much of them each message needs, " +
		"and composes prompts from components that learn from feedback.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := logging.New(cfg.LogLevel, os.Stderr)
		logging.SetDefault(logger)
		cmd.SetContext(logging.With(cmd.Context(), logger))
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $MEMCOMPOSE_DB or ~/.memcompose/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	RootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Planner profile: balanced, performance, quality, development")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	RootCmd.PersistentFlags().StringVar(&owner, "owner", engine.DefaultOwner, "Memory owner scope")
}

// loadConfig applies flags over the file and environment configuration.
func loadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if profile != "" {
		cfg.Profile = profile
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if _, err := cfg.ActiveProfile(); err != nil {
		exitErr("profile", err)
	}
	return cfg
}

func openStore(cfg config.Config) *store.SQLiteStore {
	s, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		exitErr("open store", err)
	}
	return s
}

// openEngine opens the store and an engine over it. The returned func
// closes both.
func openEngine(ctx context.Context) (*engine.Engine, func()) {
	cfg := loadConfig()
	s := openStore(cfg)
	e, err := engine.New(ctx, cfg, s, engine.WithOwner(owner))
	if err != nil {
		s.Close()
		exitErr("start engine", err)
	}
	return e, func() {
		if err := e.Close(ctx); err != nil {
			logging.From(ctx).Warn("engine close failed", "error", err)
		}
		s.Close()
	}
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func printJSON(cmd *cobra.Command, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
