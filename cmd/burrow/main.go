package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - storage namespace placement and host reservation",
	Long: `Burrow places storage namespaces on the backends of a node, reserves
power-controlled hosts out of named pools, and keeps active/passive
storage gateway pairs alive.

Run "burrow serve" on the node and drive it with the other commands.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("api", "127.0.0.1:8480", "Burrow API address")
	rootCmd.PersistentFlags().Duration("timeout", 15*time.Minute, "Request timeout")
}

// newClient connects to the API named by --api
func newClient(cmd *cobra.Command) (*client.Client, context.Context, context.CancelFunc, error) {
	addr, _ := cmd.Flags().GetString("api")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	c, err := client.NewClient(addr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to burrow API: %w", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return c, ctx, cancel, nil
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
