package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "apcore",
	Short: "Module execution runtime: registry, schema validation, and a safety-gated executor",
	Long: `apcore runs a registry of callable modules behind a safety-gated
executor pipeline: schema validation, ACL checks, approval gates, and a
middleware chain for tracing, metrics, and logging.

Quick start:
  apcore discover       # scan configured roots and report what would load
  apcore validate       # check a config file and registry for errors
  apcore serve          # start the registry, executor, and admin HTTP surface
  apcore export-schema   # export a module's schema in an external profile`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "apcore.yaml", "config file path")
}
