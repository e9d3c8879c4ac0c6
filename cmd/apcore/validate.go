package main

import (
	"fmt"

	"github.com/artpar/apcore/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate a config file without starting the server",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("%s: %w", cfgFile, err)
	}

	fmt.Printf("%s is valid\n", cfgFile)
	fmt.Printf("  server:   %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  registry: %v\n", cfg.Registry.Roots)
	fmt.Printf("  acl:      default_effect=%s\n", cfg.ACL.DefaultEffect)
	fmt.Printf("  approval: mode=%s\n", cfg.Approval.Mode)
	fmt.Printf("  tracing:  strategy=%s exporter=%s\n", cfg.Tracing.Strategy, cfg.Tracing.Exporter)
	fmt.Printf("  safety:   max_call_depth=%d max_module_repeat=%d\n", cfg.Safety.MaxCallDepth, cfg.Safety.MaxModuleRepeat)
	return nil
}
