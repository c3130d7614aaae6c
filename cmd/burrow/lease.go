package main

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

var leaseCmd = &cobra.Command{
	Use:   "lease",
	Short: "Reserve and control hosts from a pool",
}

var leaseCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an empty lease against a pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, _ := cmd.Flags().GetString("pool")
		boot, _ := cmd.Flags().GetString("boot-url")
		install, _ := cmd.Flags().GetBool("install")

		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		lease, err := c.CreateLease(ctx, args[0], pool, boot)
		if err != nil {
			return fmt.Errorf("failed to create lease: %w", err)
		}
		if install {
			if lease, err = c.LeaseAction(ctx, args[0], "install"); err != nil {
				return fmt.Errorf("lease created but install failed: %w", err)
			}
		}
		printLease(cmd, lease)
		return nil
	},
}

var leaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leases",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		leases, err := c.ListLeases(ctx)
		if err != nil {
			return fmt.Errorf("failed to list leases: %w", err)
		}
		if len(leases) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No leases found")
			return nil
		}

		rows := make([][]string, 0, len(leases))
		for _, l := range leases {
			rows = append(rows, []string{l.Name, l.PoolName, string(l.State), orDash(l.HostName), formatTime(l.UpdatedAt)})
		}
		renderTable(cmd.OutOrStdout(), []string{"Name", "Pool", "State", "Host", "Updated"}, rows)
		return nil
	},
}

var leaseInspectCmd = &cobra.Command{
	Use:   "inspect NAME",
	Short: "Show a lease and its install status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		lease, err := c.GetLease(ctx, args[0])
		if err != nil {
			return err
		}
		printLease(cmd, lease)
		return nil
	},
}

var leaseDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Release the lease's host and delete the lease",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		if err := c.DeleteLease(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete lease: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Lease deleted: %s\n", args[0])
		return nil
	},
}

var leaseBootCmd = &cobra.Command{
	Use:   "boot NAME URL",
	Short: "Point the lease's host at a new boot image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		lease, err := c.ConfigureBoot(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		printLease(cmd, lease)
		return nil
	},
}

var leasePowerCmd = &cobra.Command{
	Use:   "power NAME [on|off|cycle|status]",
	Short: "Control or query the power of the lease's host",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		op := "status"
		if len(args) == 2 {
			op = args[1]
		}

		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		switch op {
		case "status":
			on, err := c.PowerStatus(ctx, args[0])
			if err != nil {
				return err
			}
			state := "off"
			if on {
				state = "on"
			}
			fmt.Fprintln(cmd.OutOrStdout(), state)
			return nil
		case "on", "off", "cycle":
			if _, err := c.LeaseAction(ctx, args[0], "power/"+op); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Power %s: %s\n", op, args[0])
			return nil
		}
		return fmt.Errorf("unknown power operation %q (want on, off, cycle or status)", op)
	},
}

// leaseActionCmd builds a subcommand that runs one lease operation
func leaseActionCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			lease, err := c.LeaseAction(ctx, args[0], action)
			if err != nil {
				return fmt.Errorf("%s failed: %w", use, err)
			}
			printLease(cmd, lease)
			return nil
		},
	}
}

func init() {
	leaseCreateCmd.Flags().String("pool", "", "Pool to draw the host from (required)")
	leaseCreateCmd.Flags().String("boot-url", "", "Boot image URL (required)")
	leaseCreateCmd.Flags().Bool("install", false, "Install the lease right away")
	_ = leaseCreateCmd.MarkFlagRequired("pool")
	_ = leaseCreateCmd.MarkFlagRequired("boot-url")

	leaseCmd.AddCommand(leaseCreateCmd)
	leaseCmd.AddCommand(leaseListCmd)
	leaseCmd.AddCommand(leaseInspectCmd)
	leaseCmd.AddCommand(leaseDeleteCmd)
	leaseCmd.AddCommand(leaseActionCmd("install", "Claim a free host, boot it and power cycle it", "install"))
	leaseCmd.AddCommand(leaseActionCmd("uninstall", "Power off and release the lease's host", "uninstall"))
	leaseCmd.AddCommand(leaseActionCmd("monitor", "Power the lease's host back on if it is off", "monitor"))
	leaseCmd.AddCommand(leaseBootCmd)
	leaseCmd.AddCommand(leasePowerCmd)
	rootCmd.AddCommand(leaseCmd)
}

func printLease(cmd *cobra.Command, resp *api.LeaseResponse) {
	out := cmd.OutOrStdout()
	l := resp.Lease
	fmt.Fprintf(out, "Lease:     %s\n", l.Name)
	fmt.Fprintf(out, "Pool:      %s\n", l.PoolName)
	fmt.Fprintf(out, "Caller:    %s\n", l.CallerID)
	fmt.Fprintf(out, "Host:      %s\n", orDash(l.HostName))
	fmt.Fprintf(out, "Boot URL:  %s\n", l.BootImageURL)
	fmt.Fprintf(out, "State:     %s\n", l.State)
	status := string(resp.Status)
	if resp.Status == types.StatusError {
		status += " (" + resp.StatusError + ")"
	}
	fmt.Fprintf(out, "Status:    %s\n", status)
	fmt.Fprintf(out, "Updated:   %s\n", formatTime(l.UpdatedAt))
}
