package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "reqtrace",
	Short: "reqtrace - HTTP request tracing pipeline",
	Long: `reqtrace traces inbound requests: it continues W3C trace context from
incoming headers, samples, records a server span per request and hands
finished spans to an exporter (stdout, zap log, JSON lines file or Zipkin).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (yaml, toml or json)")
}
