// Package main is the entry point for the keywatch CLI.
//
// keywatch can be used either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary
// approach: it seeds a store from a config file and serves a live
// dashboard over it.
//
// Usage:
//
//	keywatch serve -c config.yaml    # Start the dashboard
//	keywatch validate -c config.yaml # Validate configuration
//	keywatch version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "keywatch",
	Short: "An observable in-process key-value store with a live dashboard",
	Long: `keywatch is an in-process, observable key-value store.

The standalone binary seeds a store from a YAML config file and serves a
web dashboard that follows every change in real time (SSE and WebSocket),
with a small REST API for reading and writing keys.

Quick start:
  1. Create a config file (keywatch.yaml)
  2. Run: keywatch serve -c keywatch.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  title: Build Pipeline
  port: 8080
  seed:
    build: idle
    queue_depth: 0
  watch: [build, queue_depth]`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this keywatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("keywatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
