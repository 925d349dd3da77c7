package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/spf13/cobra"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage attendance snapshots",
}

var snapshotsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete snapshots from previous days",
	Long: `Delete every attendance snapshot not taken today (in ATTENDANCE_TIMEZONE).
The server does this at startup and daily at SNAPSHOT_PURGE_AT.`,
	Args: cobra.NoArgs,
	RunE: runSnapshotsPurge,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(snapshotsPurgeCmd)
}

func runSnapshotsPurge(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	store := attendance.NewSnapshotStore(cfg.Snapshots.Dir, cfg.Snapshots.Size)
	svc := attendance.NewService(attendance.Options{Snapshots: store, Config: cfg.Attendance})

	removed, err := svc.PurgeSnapshots()
	if err != nil {
		return fmt.Errorf("purging snapshots: %w", err)
	}
	fmt.Printf("Removed %d snapshots from %s\n", removed, store.Dir())
	return nil
}
