package main

import (
	"fmt"
	"strconv"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

var namespaceCmd = &cobra.Command{
	Use:     "namespace",
	Aliases: []string{"ns"},
	Short:   "Place and manage storage namespaces",
}

var namespaceCreateCmd = &cobra.Command{
	Use:   "create [NAME]",
	Short: "Place a namespace on a backend, creating one on a free disk if it fits",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := namespaceRequest(cmd, args)
		if err != nil {
			return err
		}
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		p, err := c.CreateNamespace(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to create namespace: %w", err)
		}
		printPlacements(cmd, []*types.Placement{p})
		return nil
	},
}

var namespaceShardsCmd = &cobra.Command{
	Use:   "shards [PREFIX]",
	Short: "Place several namespaces on distinct backends",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := namespaceRequest(cmd, args)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")

		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		placements, err := c.CreateShards(ctx, req, count)
		if err != nil {
			return fmt.Errorf("failed to place shards: %w", err)
		}
		printPlacements(cmd, placements)
		return nil
	},
}

var namespaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded namespace allocations",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		placements, err := c.ListNamespaces(ctx)
		if err != nil {
			return fmt.Errorf("failed to list namespaces: %w", err)
		}
		if len(placements) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No namespaces found")
			return nil
		}
		printPlacements(cmd, placements)
		return nil
	},
}

var namespaceDeleteCmd = &cobra.Command{
	Use:   "delete BACKEND NAMESPACE",
	Short: "Delete a namespace from its backend",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		if err := c.DeleteNamespace(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("failed to delete namespace: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Namespace deleted: %s/%s\n", args[0], args[1])
		return nil
	},
}

var namespaceMountPathCmd = &cobra.Command{
	Use:   "mountpath",
	Short: "Show the disk a new backend of this size and type would use",
	RunE: func(cmd *cobra.Command, args []string) error {
		class, _ := cmd.Flags().GetString("disk-type")
		size, _ := cmd.Flags().GetInt64("size")

		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		path, err := c.MountPath(ctx, types.DiskClass(class), size)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{namespaceCreateCmd, namespaceShardsCmd} {
		cmd.Flags().String("disk-type", string(types.DiskClassHDD), "Disk type class (hdd or ssd)")
		cmd.Flags().String("mode", string(types.ZDBModeUser), "Backend mode (user, direct or seq)")
		cmd.Flags().Int64("size", 0, "Size in GiB (required)")
		cmd.Flags().String("password", "", "Namespace password")
		cmd.Flags().Bool("public", false, "Make the namespace public")
		_ = cmd.MarkFlagRequired("size")
	}
	namespaceShardsCmd.Flags().Int("count", 1, "Number of shards")

	namespaceMountPathCmd.Flags().String("disk-type", string(types.DiskClassHDD), "Disk type class (hdd or ssd)")
	namespaceMountPathCmd.Flags().Int64("size", 0, "Size in GiB")

	namespaceCmd.AddCommand(namespaceCreateCmd)
	namespaceCmd.AddCommand(namespaceShardsCmd)
	namespaceCmd.AddCommand(namespaceListCmd)
	namespaceCmd.AddCommand(namespaceDeleteCmd)
	namespaceCmd.AddCommand(namespaceMountPathCmd)
	rootCmd.AddCommand(namespaceCmd)
}

func namespaceRequest(cmd *cobra.Command, args []string) (types.NamespaceRequest, error) {
	class, _ := cmd.Flags().GetString("disk-type")
	mode, _ := cmd.Flags().GetString("mode")
	size, _ := cmd.Flags().GetInt64("size")
	password, _ := cmd.Flags().GetString("password")
	public, _ := cmd.Flags().GetBool("public")

	req := types.NamespaceRequest{
		DiskClass: types.DiskClass(class),
		Mode:      types.ZDBMode(mode),
		SizeGiB:   size,
		Password:  password,
		Public:    public,
	}
	if len(args) == 1 {
		req.RequestedName = args[0]
	}
	return req, req.Validate()
}

func printPlacements(cmd *cobra.Command, placements []*types.Placement) {
	rows := make([][]string, 0, len(placements))
	for _, p := range placements {
		rows = append(rows, []string{
			p.Namespace,
			p.Backend,
			string(p.Phase),
			strconv.FormatInt(p.SizeGiB, 10),
			string(p.DiskClass),
			string(p.Mode),
			orDash(p.MountPath),
		})
	}
	renderTable(cmd.OutOrStdout(), []string{"Namespace", "Backend", "Phase", "Size (GiB)", "Disk", "Mode", "Mount path"}, rows)
}
