package main

import (
	"fmt"

	"github.com/docstore/engine/pkg/metrics"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Open the data directory and report engine health/readiness",
	Long: `health opens the WAL and vocbase under --data-dir, registering the
"wal" and "vocbase" components with their outcome, then prints the
resulting health and readiness status. There is no HTTP endpoint here:
docstore does not expose the engine over a network, so this is an
operator-run check rather than a probe a scheduler polls.`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	vb, walLog, err := openEngine(cfg, nil)
	if err != nil {
		metrics.RegisterComponent("wal", false, err.Error())
		metrics.RegisterComponent("vocbase", false, "not reached")
		return printHealth()
	}
	defer walLog.Close()

	metrics.RegisterComponent("wal", true, "")
	if vb != nil {
		metrics.RegisterComponent("vocbase", true, "")
	}

	return printHealth()
}

func printHealth() error {
	health := metrics.GetHealth()
	readiness := metrics.GetReadiness()

	fmt.Printf("status:  %s\n", health.Status)
	fmt.Printf("version: %s\n", health.Version)
	fmt.Printf("uptime:  %s\n", health.Uptime)
	fmt.Printf("ready:   %s", readiness.Status)
	if readiness.Message != "" {
		fmt.Printf(" (%s)", readiness.Message)
	}
	fmt.Println()
	for name, status := range health.Components {
		fmt.Printf("  %-10s %s\n", name, status)
	}

	return nil
}
