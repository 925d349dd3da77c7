package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the face gallery",
}

var galleryBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compute and cache encodings for every reference photo",
	Long: `Compute face encodings for every reference photo in GALLERY_DIR and store
them in the PostgreSQL encoding cache, so the server starts without calling the
embedding service for unchanged photos.

Examples:
  # Build with a progress bar
  face-attendance gallery build

  # JSON output for scripting
  face-attendance gallery build --json`,
	Args: cobra.NoArgs,
	RunE: runGalleryBuild,
}

var galleryMatchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Identify the faces in an image against the gallery",
	Long: `Detect every face in an image and report the nearest enrolled student.
Useful for checking reference photos and tuning GALLERY_MATCH_THRESHOLD.

Examples:
  face-attendance gallery match snapshot.jpg
  face-attendance gallery match snapshot.jpg --threshold 0.45`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryMatch,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryBuildCmd)
	galleryCmd.AddCommand(galleryMatchCmd)

	galleryBuildCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
	galleryMatchCmd.Flags().Float64("threshold", 0, "Override GALLERY_MATCH_THRESHOLD")
	galleryMatchCmd.Flags().Bool("json", false, "Output as JSON")
}

// GalleryBuildResult represents the result of a gallery build
type GalleryBuildResult struct {
	Success       bool     `json:"success"`
	Images        int      `json:"images"`
	Loaded        int      `json:"loaded"`
	Cached        int      `json:"cached"`
	Skipped       []string `json:"skipped"`
	DurationMs    int64    `json:"duration_ms"`
	DurationHuman string   `json:"duration_human,omitempty"`
}

func runGalleryBuild(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	startTime := time.Now()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	faces, _ := newGallery(cfg, b.encodings)
	images, err := faces.ReferenceImages()
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Found %d reference photos in %s\n", len(images), cfg.Gallery.Dir)
		bar = progressbar.NewOptions(len(images),
			progressbar.OptionSetDescription("Encoding faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	result, err := faces.LoadAll(ctx, func(studentID string, err error) {
		if bar != nil {
			bar.Add(1)
		}
	})
	if err != nil {
		return err
	}

	duration := time.Since(startTime)
	out := GalleryBuildResult{
		Success:       true,
		Images:        len(images),
		Loaded:        result.Loaded,
		Cached:        result.Cached,
		Skipped:       result.Skipped,
		DurationMs:    duration.Milliseconds(),
		DurationHuman: duration.Round(time.Millisecond).String(),
	}
	if out.Skipped == nil {
		out.Skipped = []string{}
	}

	if jsonOutput {
		return outputJSON(out)
	}

	fmt.Printf("\nGallery build complete in %s\n", out.DurationHuman)
	fmt.Printf("  Encoded:  %d (%d from cache)\n", out.Loaded, out.Cached)
	fmt.Printf("  Skipped:  %d\n", len(out.Skipped))
	for _, id := range out.Skipped {
		fmt.Printf("    - %s\n", id)
	}
	return nil
}

// GalleryMatch is one face found by gallery match
type GalleryMatch struct {
	StudentID string  `json:"student_id,omitempty"`
	Label     string  `json:"label"`
	Distance  float64 `json:"distance"`
	Matched   bool    `json:"matched"`
	BBox      []int   `json:"bbox"`
}

func runGalleryMatch(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	cfg := config.Load()
	if threshold := mustGetFloat64(cmd, "threshold"); threshold > 0 {
		cfg.Gallery.Threshold = threshold
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	img, err := embedding.Decode(data)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	faces, client := newGallery(cfg, b.encodings)
	if _, err := faces.LoadAll(ctx, nil); err != nil {
		return err
	}

	detected, err := client.DetectFaces(ctx, img)
	if err != nil {
		return fmt.Errorf("detecting faces: %w", err)
	}

	matches := make([]GalleryMatch, 0, len(detected))
	for _, f := range detected {
		m := faces.Query(f.Embedding)
		box := facematch.ScaleBox(f.BBox, 1, img.Bounds())
		matches = append(matches, GalleryMatch{
			StudentID: m.StudentID(),
			Label:     m.Label(),
			Distance:  m.Distance(),
			Matched:   m.IsMatched(),
			BBox:      []int{box.Min.X, box.Min.Y, box.Max.X, box.Max.Y},
		})
	}

	if jsonOutput {
		return outputJSON(matches)
	}

	fmt.Printf("Found %d faces (gallery: %d students, threshold %.2f)\n", len(matches), faces.Count(), faces.Threshold())
	for i, m := range matches {
		fmt.Printf("  %d. %-14s distance %.3f  box %v\n", i+1, m.Label, m.Distance, m.BBox)
	}
	return nil
}

// outputJSON writes data as indented JSON to stdout.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
