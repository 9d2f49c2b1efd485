package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the QueryMesh CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "querymesh",
		Short: "QueryMesh - a SQL-queryable extension host",
		Long: `QueryMesh is a host process exposing a SQL-queryable plugin surface.
Auxiliary extension processes register plugin catalogs over a local
endpoint and are health-monitored by the host.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}
