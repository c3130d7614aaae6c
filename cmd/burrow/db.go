package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Offline maintenance of the state database",
	Long: `Offline maintenance of the state database.

These commands open the database file directly. Stop the daemon first:
the file is locked while it runs.`,
}

var dbInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Count records per bucket and report undecodable ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Inspect()
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(stats))
		corrupt := 0
		for _, st := range stats {
			rows = append(rows, []string{st.Bucket, strconv.Itoa(st.Records), orDash(strings.Join(st.Corrupt, ","))})
			corrupt += len(st.Corrupt)
		}
		renderTable(cmd.OutOrStdout(), []string{"Bucket", "Records", "Corrupt keys"}, rows)
		if corrupt > 0 {
			return fmt.Errorf("%d corrupt records found", corrupt)
		}
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a consistent copy of the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = filepath.Join(dataDir, "burrow.db.backup")
		}

		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create backup file: %w", err)
		}
		n, err := store.Backup(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Backup written: %s (%d bytes)\n", out, n)
		return nil
	},
}

func init() {
	dbCmd.PersistentFlags().String("data-dir", "/var/lib/burrow", "Data directory holding burrow.db")
	dbBackupCmd.Flags().String("out", "", "Backup file (default: <data-dir>/burrow.db.backup)")

	dbCmd.AddCommand(dbInspectCmd)
	dbCmd.AddCommand(dbBackupCmd)
	rootCmd.AddCommand(dbCmd)
}
