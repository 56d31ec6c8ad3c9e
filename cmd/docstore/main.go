// Command docstore is an operator harness over the docstore engine's
// public API: it opens a vocbase, drives transactions by hand, and
// prints what happened. It is not a server and does not expose the
// engine over a network; that routing layer is out of scope.
package main

import (
	"fmt"
	"os"

	"github.com/docstore/engine/pkg/log"
	"github.com/docstore/engine/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	metrics.SetVersion(Version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docstore",
	Short: "docstore - an MVCC document-store engine core",
	Long: `docstore is the operator CLI over an embeddable MVCC document-store
engine: write-ahead logged, snapshot-isolated transactions over
collections of JSON documents.

This binary drives the engine directly (no network layer) for manual
exercise of insert/commit/conflict scenarios and for open/replay
inspection of an existing data directory.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("docstore version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./docstore-data", "Data directory holding the WAL")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML engine config file (overrides --data-dir)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(healthCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOut,
	})
}
