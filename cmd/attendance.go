package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect attendance records",
}

var attendanceTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List the students recognized today",
	Long: `List today's arrivals or departures, most recent first.

Examples:
  face-attendance attendance today
  face-attendance attendance today --mode departure --json`,
	Args: cobra.NoArgs,
	RunE: runAttendanceToday,
}

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List the configured cameras",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		for _, cam := range cfg.Cameras {
			device := cam.Device
			if device == "" {
				device = fmt.Sprintf("index %d", cam.Index)
			}
			fmt.Printf("%d  %-10s mirror=%-5t %s\n", cam.Index, cam.Name, cam.Mirror, device)
		}
	},
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	rootCmd.AddCommand(camerasCmd)
	attendanceCmd.AddCommand(attendanceTodayCmd)

	attendanceTodayCmd.Flags().String("mode", "arrival", "Attendance mode (arrival or departure)")
	attendanceTodayCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAttendanceToday(cmd *cobra.Command, args []string) error {
	mode, err := database.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	svc := attendance.NewService(attendance.Options{
		Store:       b.store,
		Students:    b.students,
		Snapshots:   attendance.NewSnapshotStore(cfg.Snapshots.Dir, cfg.Snapshots.Size),
		SnapshotURL: func(ref string) string { return "/snapshots/" + ref },
		Config:      cfg.Attendance,
	})
	entries, err := svc.TodayAttendance(ctx, mode)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(entries)
	}

	fmt.Printf("%s, %s: %d students\n", svc.Today(), mode, len(entries))
	loc := svc.Location()
	for _, e := range entries {
		at := e.TimeIn
		if mode == database.ModeDeparture {
			at = e.TimeOut
		}
		fmt.Printf("  %s  %-12s  %-30s %s\n", at.In(loc).Format("15:04"), e.StudentID, e.Name, e.GradeSection)
	}
	return nil
}
