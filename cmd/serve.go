package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/camera/opencv"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/events"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/retention"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance server",
	Long: `Start the Face Attendance server.
The server opens cameras on demand, streams them with recognition overlays,
records arrivals and departures, and pushes updates to dashboards.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("skip-gallery", false, "Start with an empty gallery (load later via POST /api/v1/gallery/reload)")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// initGallery loads every reference image. A failed load leaves the gallery empty,
// which only means every face is Unknown.
func initGallery(ctx context.Context, g *gallery.Gallery, dir string) {
	fmt.Printf("Loading face gallery from %s...\n", dir)
	result, err := g.LoadAll(ctx, nil)
	if err != nil {
		fmt.Printf("Warning: failed to load gallery: %v\n", err)
		fmt.Printf("Recognition will report every face as Unknown until the gallery is reloaded\n")
		return
	}
	fmt.Printf("Gallery ready with %d students (%d from cache, %d skipped)\n", result.Loaded, result.Cached, len(result.Skipped))
}

// initEventSinks attaches the optional MQTT and ClickHouse sinks to the hub.
func initEventSinks(ctx context.Context, hub *events.Hub, cfg *config.Config) {
	if cfg.MQTT.Broker != "" {
		sink, err := events.NewMQTTSink(cfg.MQTT)
		if err != nil {
			fmt.Printf("Warning: MQTT sink disabled: %v\n", err)
		} else {
			hub.AddSink(sink)
			fmt.Printf("Publishing attendance events to MQTT topic %s\n", cfg.MQTT.Topic)
		}
	}
	if cfg.ClickHouse.Addr != "" {
		sink, err := events.NewClickHouseSink(ctx, cfg.ClickHouse)
		if err != nil {
			fmt.Printf("Warning: ClickHouse sink disabled: %v\n", err)
		} else {
			hub.AddSink(sink)
			fmt.Printf("Recording attendance events in ClickHouse at %s\n", cfg.ClickHouse.Addr)
		}
	}
}

// initNotifier creates the guardian email queue. It is disabled when email is
// turned off or no SMTP host is configured.
func initNotifier(cfg *config.Config, loc *time.Location) *notify.Queue {
	var sender notify.Sender
	switch {
	case !cfg.Email.Enabled:
		fmt.Printf("Guardian notifications disabled\n")
	case cfg.Email.Host == "":
		fmt.Printf("Warning: SMTP_HOST not set, guardian notifications disabled\n")
	default:
		smtp, err := notify.NewSMTPSender(cfg.Email)
		if err != nil {
			fmt.Printf("Warning: guardian notifications disabled: %v\n", err)
		} else {
			sender = smtp
			fmt.Printf("Guardian notifications via %s:%d\n", cfg.Email.Host, cfg.Email.Port)
		}
	}
	return notify.NewQueue(cfg.Email, sender, loc)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	faces, client := newGallery(cfg, b.encodings)
	if !mustGetBool(cmd, "skip-gallery") {
		initGallery(ctx, faces, cfg.Gallery.Dir)
	}

	hub := events.NewHub()
	initEventSinks(ctx, hub, cfg)

	loc := cfg.Attendance.Location()
	mailer := initNotifier(cfg, loc)

	snapshots := attendance.NewSnapshotStore(cfg.Snapshots.Dir, cfg.Snapshots.Size)
	svc := attendance.NewService(attendance.Options{
		Store:       b.store,
		Students:    b.students,
		Snapshots:   snapshots,
		Notifier:    mailer,
		Publisher:   hub,
		SnapshotURL: func(ref string) string { return "/snapshots/" + ref },
		Config:      cfg.Attendance,
	})

	engine := recognition.NewEngine(client, faces, svc, cfg.Recognition)
	cameras := camera.NewManager(cfg.Cameras, opencv.Open, cfg.Recognition.FrameDelay)

	purge, err := retention.New(svc, cfg.Snapshots.PurgeAt, loc)
	if err != nil {
		return fmt.Errorf("configuring snapshot retention: %w", err)
	}
	if _, err := purge.RunNow(); err != nil {
		fmt.Printf("Warning: startup snapshot cleanup failed: %v\n", err)
	}

	mailer.Start()
	svc.Start()
	purge.Start()
	fmt.Printf("Snapshot cleanup scheduled daily at %s (next: %s)\n", cfg.Snapshots.PurgeAt, purge.NextRun().Format(time.RFC3339))

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, port, host, web.Deps{
		Cameras:     cameras,
		Engine:      engine,
		Gallery:     faces,
		Attendance:  svc,
		Events:      hub,
		SnapshotDir: snapshots.Dir(),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-sigChan
		fmt.Println("\nShutting down...")

		// Cameras first: this ends the video streams and stops new sightings.
		cameras.StopAll()
		svc.Stop()
		// Closing the hub disconnects SSE and WebSocket clients and flushes the sinks.
		hub.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}

		mailer.Stop()
		purge.Stop()
	}()

	fmt.Printf("Starting Face Attendance on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-stopped
	return nil
}
