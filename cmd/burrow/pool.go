package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage pools of power-controlled hosts",
}

var poolCreateCmd = &cobra.Command{
	Use:   "create NAME [HOST...]",
	Short: "Create a pool from host-control services",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		pool, err := c.CreatePool(ctx, args[0], args[1:])
		if err != nil {
			return fmt.Errorf("failed to create pool: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Pool created: %s (%d members)\n", pool.Name, len(pool.Members))
		return nil
	},
}

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		pools, err := c.ListPools(ctx)
		if err != nil {
			return fmt.Errorf("failed to list pools: %w", err)
		}
		if len(pools) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pools found")
			return nil
		}
		printPools(cmd, pools)
		return nil
	},
}

var poolInspectCmd = &cobra.Command{
	Use:   "inspect NAME",
	Short: "Show a pool and which hosts are reserved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		pool, err := c.GetPool(ctx, args[0])
		if err != nil {
			return err
		}
		leases, err := c.ListLeases(ctx)
		if err != nil {
			return err
		}
		holders := make(map[string]string)
		for _, l := range leases {
			if l.PoolName == pool.Name && l.Installed() && l.HostName != "" {
				holders[l.HostName] = l.Name
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Pool:    %s\n", pool.Name)
		fmt.Fprintf(out, "Created: %s\n", formatTime(pool.CreatedAt))
		fmt.Fprintf(out, "Updated: %s\n\n", formatTime(pool.UpdatedAt))

		rows := make([][]string, 0, len(pool.Members))
		for i, host := range pool.Members {
			rows = append(rows, []string{strconv.Itoa(i), host, orDash(holders[host])})
		}
		renderTable(out, []string{"#", "Host", "Lease"}, rows)
		return nil
	},
}

var poolDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a pool no installed lease draws from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		if err := c.DeletePool(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete pool: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Pool deleted: %s\n", args[0])
		return nil
	},
}

var poolAddCmd = &cobra.Command{
	Use:   "add POOL HOST",
	Short: "Validate a host and append it to a pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		pool, err := c.AddPoolMember(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", args[1], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %s to %s (%d members)\n", args[1], pool.Name, len(pool.Members))
		return nil
	},
}

var poolRemoveCmd = &cobra.Command{
	Use:   "remove POOL HOST",
	Short: "Remove a host from a pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		pool, err := c.RemovePoolMember(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to remove %s: %w", args[1], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s from %s (%d members)\n", args[1], pool.Name, len(pool.Members))
		return nil
	},
}

var poolValidateCmd = &cobra.Command{
	Use:   "validate NAME",
	Short: "Check every member of a pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		if err := c.ValidatePool(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Pool %s is valid\n", args[0])
		return nil
	},
}

var poolFreeCmd = &cobra.Command{
	Use:   "free NAME",
	Short: "Show the first host no lease holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, _ := cmd.Flags().GetString("caller")

		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		host, err := c.UnreservedHost(ctx, args[0], caller)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), host)
		return nil
	},
}

func init() {
	poolFreeCmd.Flags().String("caller", "", "Ignore leases held by this caller id")

	poolCmd.AddCommand(poolCreateCmd)
	poolCmd.AddCommand(poolListCmd)
	poolCmd.AddCommand(poolInspectCmd)
	poolCmd.AddCommand(poolDeleteCmd)
	poolCmd.AddCommand(poolAddCmd)
	poolCmd.AddCommand(poolRemoveCmd)
	poolCmd.AddCommand(poolValidateCmd)
	poolCmd.AddCommand(poolFreeCmd)
	rootCmd.AddCommand(poolCmd)
}

func printPools(cmd *cobra.Command, pools []*types.HostPool) {
	rows := make([][]string, 0, len(pools))
	for _, p := range pools {
		rows = append(rows, []string{
			p.Name,
			strconv.Itoa(len(p.Members)),
			strings.Join(p.Members, ","),
			formatTime(p.UpdatedAt),
		})
	}
	renderTable(cmd.OutOrStdout(), []string{"Name", "Size", "Members", "Updated"}, rows)
}
