package main

import (
	"fmt"
	"os"

	"github.com/artpar/apcore/bootstrap"
	"github.com/spf13/cobra"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the module registry, executor, and admin HTTP surface",
	Long: `Start apcore.

The server will:
  - Load configuration from apcore.yaml (or --config)
  - Discover and register modules from registry.roots
  - Serve /healthz, /metrics, /modules, and /schema/{moduleId}

Examples:
  apcore serve
  apcore serve --config /etc/apcore/config.yaml
  apcore serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload acl/approval/tracing/logging/safety config without restart")
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Println("No configuration found.")
		fmt.Printf("Create %s or specify one with --config\n", cfgFile)
		return nil
	}

	var app *bootstrap.App
	var err error
	if hotReload {
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		app, err = bootstrap.New(cfgFile)
	}
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	return app.Run()
}
