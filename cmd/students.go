package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Manage student records",
}

var studentsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy active students from the school database to PostgreSQL",
	Long: `Copy every active student from the school database (LEGACY_DATABASE_URL)
into the local PostgreSQL students table. The server can then run without a
connection to the school database.

Examples:
  face-attendance students sync
  face-attendance students sync --json`,
	Args: cobra.NoArgs,
	RunE: runStudentsSync,
}

func init() {
	rootCmd.AddCommand(studentsCmd)
	studentsCmd.AddCommand(studentsSyncCmd)

	studentsSyncCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// StudentsSyncResult represents the result of a student sync
type StudentsSyncResult struct {
	Success bool `json:"success"`
	Synced  int  `json:"synced"`
	Errors  int  `json:"errors"`
}

func runStudentsSync(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	if cfg.Legacy.DatabaseURL == "" {
		return errors.New("LEGACY_DATABASE_URL environment variable is required")
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	students, err := b.legacyDirectory().ListActive(ctx)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(students),
			progressbar.OptionSetDescription("Syncing students"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("students"),
			progressbar.OptionFullWidth(),
		)
	}

	result := StudentsSyncResult{Success: true}
	for _, s := range students {
		if err := b.local.SaveStudent(ctx, s); err != nil {
			result.Errors++
			if !jsonOutput {
				fmt.Printf("\nWarning: %v\n", err)
			}
		} else {
			result.Synced++
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	result.Success = result.Errors == 0

	if jsonOutput {
		return outputJSON(result)
	}
	fmt.Printf("\nSynced %d students (%d errors)\n", result.Synced, result.Errors)
	return nil
}
