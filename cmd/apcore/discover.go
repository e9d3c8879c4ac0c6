package main

import (
	"fmt"

	"github.com/artpar/apcore/config"
	"github.com/artpar/apcore/core/registry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan configured roots and report which modules would be registered",
	RunE:  runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("%s: %w", cfgFile, err)
	}

	reg := registry.New(zerolog.Nop())
	count, err := reg.Discover(cfg.Registry.Roots)
	if err != nil {
		fmt.Printf("discovery stopped after %d module(s): %v\n", count, err)
	}

	for _, id := range reg.ModuleIDs() {
		mod, _ := reg.Get(id)
		fmt.Printf("%s\t%s\n", id, mod.Description)
	}
	fmt.Printf("\n%d module(s) registered\n", reg.Count())
	return nil
}
