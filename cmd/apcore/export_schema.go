package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/artpar/apcore/config"
	"github.com/artpar/apcore/core/module"
	"github.com/artpar/apcore/core/registry"
	"github.com/artpar/apcore/core/schema"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var exportProfile string

var exportSchemaCmd = &cobra.Command{
	Use:   "export-schema <moduleId>",
	Short: "Export one module's schema as mcp, openai, anthropic, generic, or openapi JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runExportSchema,
}

func init() {
	rootCmd.AddCommand(exportSchemaCmd)
	exportSchemaCmd.Flags().StringVar(&exportProfile, "profile", "generic", "export profile: mcp|openai|anthropic|generic|openapi")
}

func runExportSchema(cmd *cobra.Command, args []string) error {
	moduleID := args[0]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("%s: %w", cfgFile, err)
	}

	reg := registry.New(zerolog.Nop())
	if _, err := reg.Discover(cfg.Registry.Roots); err != nil {
		fmt.Fprintf(os.Stderr, "warning: discovery incomplete: %v\n", err)
	}

	mod, err := reg.Get(moduleID)
	if err != nil {
		return err
	}

	exported, err := schema.Export(exportInputFor(mod), schema.Profile(exportProfile))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(exported)
}

func exportInputFor(mod *module.Module) schema.ExportInput {
	return schema.ExportInput{
		ModuleID:      mod.ModuleID,
		Description:   mod.Description,
		Documentation: mod.Documentation,
		InputSchema:   rawOf(mod.InputSchema),
		OutputSchema:  rawOf(mod.OutputSchema),
		Annotations: schema.ExportAnnotations{
			ReadOnly:         mod.Annotations.ReadOnly,
			Destructive:      mod.Annotations.Destructive,
			Idempotent:       mod.Annotations.Idempotent,
			RequiresApproval: mod.Annotations.RequiresApproval,
			OpenWorld:        mod.Annotations.OpenWorld,
			Streaming:        mod.Annotations.Streaming,
		},
	}
}

func rawOf(s *schema.RuntimeSchema) map[string]any {
	if s == nil || s.Raw == nil {
		return schema.EmptyObjectJSONSchema()
	}
	return s.Raw
}
