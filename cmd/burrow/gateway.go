package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:     "gateway",
	Aliases: []string{"gw"},
	Short:   "Manage active/passive storage gateway pairs",
}

var gatewayCreateCmd = &cobra.Command{
	Use:   "create NAME ACTIVE PASSIVE",
	Short: "Start managing a gateway pair",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		pair, err := c.CreateGatewayPair(ctx, args[0], args[1], args[2])
		if err != nil {
			return fmt.Errorf("failed to create gateway pair: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Gateway pair created: %s (active=%s passive=%s)\n", pair.Name, pair.Active, pair.Passive)
		return nil
	},
}

var gatewayListCmd = &cobra.Command{
	Use:   "list",
	Short: "List gateway pairs and their current roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		pairs, err := c.ListGatewayPairs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list gateway pairs: %w", err)
		}
		if len(pairs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No gateway pairs found")
			return nil
		}

		rows := make([][]string, 0, len(pairs))
		for _, p := range pairs {
			rows = append(rows, []string{p.Name, p.Active, p.Passive, formatTime(p.UpdatedAt)})
		}
		renderTable(cmd.OutOrStdout(), []string{"Name", "Active", "Passive", "Updated"}, rows)
		return nil
	},
}

var gatewayDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Stop managing a gateway pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		if err := c.DeleteGatewayPair(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete gateway pair: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Gateway pair deleted: %s\n", args[0])
		return nil
	},
}

var gatewayTickCmd = &cobra.Command{
	Use:   "tick NAME",
	Short: "Evaluate a pair now and take the failover action it needs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		action, err := c.TickGatewayPair(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], action)
		return nil
	},
}

var gatewayShardsCmd = &cobra.Command{
	Use:   "shards NAME",
	Short: "Run one shard health pass on a pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		if err := c.MonitorShards(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Shard check complete: %s\n", args[0])
		return nil
	},
}

func init() {
	gatewayCmd.AddCommand(gatewayCreateCmd)
	gatewayCmd.AddCommand(gatewayListCmd)
	gatewayCmd.AddCommand(gatewayDeleteCmd)
	gatewayCmd.AddCommand(gatewayTickCmd)
	gatewayCmd.AddCommand(gatewayShardsCmd)
	rootCmd.AddCommand(gatewayCmd)
}
