package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Inspect and trigger the daemon's recurring actions",
}

var actionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recurring actions and their last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		actions, err := c.ListActions(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(actions))
		for _, a := range actions {
			took := "-"
			if !a.LastRun.IsZero() {
				took = a.LastTook.String()
			}
			rows = append(rows, []string{
				a.Name,
				a.Spec,
				strconv.FormatInt(a.Runs, 10),
				strconv.FormatBool(a.Running),
				formatTime(a.LastRun),
				took,
				orDash(a.LastError),
			})
		}
		renderTable(cmd.OutOrStdout(), []string{"Name", "Schedule", "Runs", "Running", "Last run", "Took", "Last error"}, rows)
		return nil
	},
}

var actionRunCmd = &cobra.Command{
	Use:   "run NAME",
	Short: "Run a recurring action now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer c.Close()

		if err := c.RunAction(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Ran %s\n", args[0])
		return nil
	},
}

func init() {
	actionCmd.AddCommand(actionListCmd)
	actionCmd.AddCommand(actionRunCmd)
	rootCmd.AddCommand(actionCmd)
}
