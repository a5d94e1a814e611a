package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quotecraft/drew/internal/config"
	"github.com/quotecraft/drew/internal/logging"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "drew",
	Short: "Drew is a conversational quote builder for the trades",
	Long: `Drew walks a tradesperson from "what's the job?" to a priced quote:
job selection, scoping questions, a material checklist, products, labor,
markup and review. The engine is stateless; each surface (chat, HTTP, MCP)
decides where the conversation context lives.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the config")
	rootCmd.PersistentFlags().Bool("debug", false, "Shorthand for --log-level=debug")
}

// setup loads the configuration and builds the process logger. Flags win
// over the file and the environment.
func setup(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		loaded.Log.Level = lvl
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		loaded.Log.Level = "debug"
	}
	level, err := logging.ParseLevel(loaded.Log.Level)
	if err != nil {
		return err
	}
	cfg = loaded
	logger = logging.NewWithWriter(cmd.ErrOrStderr(), level, loaded.Log.Format == "json")
	return nil
}
