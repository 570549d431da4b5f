package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/procpool/procpool/pkg/template"
)

func newInitCommand() *cobra.Command {
	var (
		typ       string
		groupName string
		out       string
	)
	cmd := &cobra.Command{
		Use:   "init <app-root>",
		Short: "Scaffold a [[groups]] TOML fragment for an app root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := template.NewGenerator()
			toml, err := gen.GenerateTOML(template.Type(typ), args[0], groupName)
			if err != nil {
				return fmt.Errorf("supported types: %v: %w", gen.SupportedTypes(), err)
			}
			if out == "" {
				_, err := os.Stdout.Write(toml)
				return err
			}
			return os.WriteFile(out, toml, 0o644)
		},
	}
	cmd.Flags().StringVar(&typ, "type", "simple", "template type: web, api, worker, database, cron, simple")
	cmd.Flags().StringVar(&groupName, "group-name", "", "app_group_name to use (defaults to app root)")
	cmd.Flags().StringVar(&out, "out", "", "write to this file instead of stdout")
	return cmd
}
