package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/querymesh/querymesh/internal/config"
	"github.com/querymesh/querymesh/internal/extension"
	"github.com/querymesh/querymesh/internal/transport"
)

// ExtensionStatus holds the reported state of one registered extension.
type ExtensionStatus struct {
	UUID       uint64 `json:"uuid"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	SDKVersion string `json:"sdk_version"`
}

// ManagerStatus is the aggregate status report.
type ManagerStatus struct {
	Socket     string            `json:"socket"`
	Running    bool              `json:"running"`
	Error      string            `json:"error,omitempty"`
	Extensions []ExtensionStatus `json:"extensions,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the running extension manager",
		Long:  `Ping the manager endpoint and list its registered extensions.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	// Register flags
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, statusCfg *statusConfig) error {
	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	status := queryManagerStatus(cmd, cfg)

	if statusCfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(formatStatusTable(status))
	return nil
}

// queryManagerStatus pings the manager and collects its extension list.
func queryManagerStatus(cmd *cobra.Command, cfg *config.Config) ManagerStatus {
	status := ManagerStatus{Socket: cfg.ExtensionsSocket}

	ctx := cmd.Context()
	if st := extension.Ping(ctx, cfg); !st.OK() {
		status.Error = st.Message
		return status
	}
	status.Running = true

	list, st := extension.GetExtensions(ctx, cfg)
	if !st.OK() {
		status.Error = st.Message
		return status
	}
	status.Extensions = flattenExtensions(list)
	return status
}

// flattenExtensions orders the extension list by UUID, core first.
func flattenExtensions(list transport.ExtensionList) []ExtensionStatus {
	extensions := make([]ExtensionStatus, 0, len(list))
	for uuid, info := range list {
		extensions = append(extensions, ExtensionStatus{
			UUID:       uuid,
			Name:       info.Name,
			Version:    info.Version,
			SDKVersion: info.SDKVersion,
		})
	}
	sort.Slice(extensions, func(i, j int) bool { return extensions[i].UUID < extensions[j].UUID })
	return extensions
}

// formatStatusTable renders the status as an aligned text table.
func formatStatusTable(status ManagerStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "SOCKET\tRUNNING\tERROR\n")
	fmt.Fprintf(w, "%s\t%v\t%s\n", status.Socket, status.Running, status.Error)

	if len(status.Extensions) > 0 {
		fmt.Fprintf(w, "\nUUID\tNAME\tVERSION\tSDK\n")
		for _, ext := range status.Extensions {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", ext.UUID, ext.Name, ext.Version, ext.SDKVersion)
		}
	}

	_ = w.Flush()
	return sb.String()
}
