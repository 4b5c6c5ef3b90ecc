package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath    string
	outputJSON bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Host compliance scanning engine",
	Long: `pulse evaluates compliance benchmark rules against the local host.

It ingests benchmark documents, runs scans on demand, turns schedules into
queued scan jobs and drains the queue with one or more workers.`,
	SilenceUsage: true,
}

// configPath resolves --config, then CONFIG_PATH, then ./config.yaml when it exists.
func configPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(migrateCmd, ingestCmd)
	rootCmd.AddCommand(workerCmd, schedulerCmd, runCmd)
	rootCmd.AddCommand(scanCmd, enqueueCmd)
	rootCmd.AddCommand(groupCmd, scheduleCmd)
}
