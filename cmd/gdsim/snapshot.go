package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gdsim/internal/bootstrap"
	"gdsim/internal/config"
	"gdsim/internal/domain"
	"gdsim/internal/terminal"
)

func newSnapshotCmd(loadedConfig func() config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect or discard the stored interrupted session",
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored session snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadedConfig()
			snapshots, err := bootstrap.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer snapshots.Close()

			snapshot, ok, err := snapshots.Load(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored session.")
				return nil
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snapshot)
			}
			printSnapshot(cmd.OutOrStdout(), cfg.Store.Driver, snapshot)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "print the raw snapshot as JSON")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard the stored session snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshots, err := bootstrap.OpenStore(loadedConfig())
			if err != nil {
				return err
			}
			defer snapshots.Close()

			if err := snapshots.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stored session cleared.")
			return nil
		},
	}

	cmd.AddCommand(showCmd, clearCmd)
	return cmd
}

func printSnapshot(out io.Writer, driver string, snapshot domain.Snapshot) {
	fmt.Fprintf(out, "session:   %s (%s store)\n", snapshot.SessionID, driver)
	fmt.Fprintf(out, "topic:     %s\n", snapshot.Topic)
	fmt.Fprintf(out, "turns:     %d\n", snapshot.TurnCount)
	fmt.Fprintf(out, "remaining: %s\n", terminal.FormatRemaining(snapshot.RemainingSeconds))
	fmt.Fprintf(out, "messages:  %d\n", snapshot.TranscriptLength)
	fmt.Fprintf(out, "saved:     %s\n", snapshot.SavedAt.Format("2006-01-02 15:04:05 MST"))
}
