package config

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed cameras.yaml
var camerasYAML []byte

type Config struct {
	Embedding   EmbeddingConfig
	Database    DatabaseConfig
	Legacy      LegacyConfig
	Gallery     GalleryConfig
	Recognition RecognitionConfig
	Stream      StreamConfig
	Attendance  AttendanceConfig
	Snapshots   SnapshotConfig
	Email       EmailConfig
	MQTT        MQTTConfig
	ClickHouse  ClickHouseConfig
	Cameras     []CameraConfig
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // defaults to 128
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL (required by serve)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// LegacyConfig points at the school-management database that owns student records.
type LegacyConfig struct {
	DatabaseURL string // MariaDB DSN (e.g., school:school@tcp(mariadb:3306)/school?parseTime=true)
}

type GalleryConfig struct {
	Dir       string  // directory of {studentID}.jpg reference photos
	Threshold float64 // maximum euclidean distance accepted as a match
}

type RecognitionConfig struct {
	EveryN     int     // run detection on every Nth streamed frame
	Resize     float64 // downscale factor applied before detection
	Timeout    time.Duration
	FrameDelay time.Duration // capture loop pacing
}

type StreamConfig struct {
	JPEGQuality int
	FrameRate   int // frames per second pushed to each client
}

type AttendanceConfig struct {
	Timezone           string
	AllowDepartureOnly bool          // departure without arrival creates a record
	Cooldown           time.Duration // per student and mode debounce
	QueueSize          int
	Workers            int
}

type SnapshotConfig struct {
	Dir     string
	Size    int    // edge length of the square snapshot in pixels
	PurgeAt string // daily purge time, HH:MM in the attendance timezone
}

type EmailConfig struct {
	Enabled       bool
	Host          string
	Port          int
	Username      string
	Password      string
	Sender        string
	SubjectPrefix string
	QueueSize     int
	Workers       int
}

type MQTTConfig struct {
	Broker   string // e.g., tcp://localhost:1883, disabled when empty
	ClientID string
	Username string
	Password string
	Topic    string
}

type ClickHouseConfig struct {
	Addr     string // host:port, disabled when empty
	Database string
	Username string
	Password string
}

// CameraConfig describes one physical camera.
type CameraConfig struct {
	Index  int    `yaml:"index"`
	Name   string `yaml:"name"`
	Mirror bool   `yaml:"mirror"`
	Device string `yaml:"device,omitempty"` // optional device path or URL, overrides Index when set
}

type camerasFile struct {
	Cameras []CameraConfig `yaml:"cameras"`
}

// Location returns the attendance timezone, falling back to the process local zone.
func (c *AttendanceConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Warning: unknown ATTENDANCE_TIMEZONE %q, using local time", c.Timezone)
		return time.Local
	}
	return loc
}

// Camera returns the camera definition for the given index.
func (c *Config) Camera(index int) (CameraConfig, bool) {
	for _, cam := range c.Cameras {
		if cam.Index == index {
			return cam, true
		}
	}
	return CameraConfig{}, false
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, returning defaultVal when unset or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envDuration accepts Go durations ("750ms") or plain seconds ("10").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// ParseCameras decodes a cameras YAML document.
func ParseCameras(data []byte) ([]CameraConfig, error) {
	var f camerasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing cameras: %w", err)
	}
	seen := make(map[int]bool, len(f.Cameras))
	for _, cam := range f.Cameras {
		if cam.Index < 0 {
			return nil, fmt.Errorf("camera %q has negative index", cam.Name)
		}
		if seen[cam.Index] {
			return nil, fmt.Errorf("duplicate camera index %d", cam.Index)
		}
		seen[cam.Index] = true
	}
	return f.Cameras, nil
}

func loadCameras() []CameraConfig {
	if path := os.Getenv("CAMERAS_FILE"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
		if err == nil {
			cams, err := ParseCameras(data)
			if err == nil {
				return cams
			}
			log.Printf("Warning: %v, using built-in cameras", err)
		} else {
			log.Printf("Warning: reading CAMERAS_FILE: %v, using built-in cameras", err)
		}
	}

	cams, err := ParseCameras(camerasYAML)
	if err != nil {
		// Embedded file, only broken by a bad build.
		panic("failed to parse embedded cameras.yaml: " + err.Error())
	}
	return cams
}

func Load() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: envInt("EMBEDDING_DIM", 128),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Legacy: LegacyConfig{
			DatabaseURL: os.Getenv("LEGACY_DATABASE_URL"),
		},
		Gallery: GalleryConfig{
			Dir:       envString("GALLERY_DIR", "media/student_faces"),
			Threshold: envFloat("GALLERY_MATCH_THRESHOLD", 0.5),
		},
		Recognition: RecognitionConfig{
			EveryN:     envInt("RECOGNITION_EVERY_N", 5),
			Resize:     envFloat("RECOGNITION_RESIZE", 0.2),
			Timeout:    envDuration("RECOGNITION_DISPLAY_TIMEOUT", time.Second),
			FrameDelay: envDuration("CAMERA_FRAME_DELAY", 10*time.Millisecond),
		},
		Stream: StreamConfig{
			JPEGQuality: envInt("STREAM_JPEG_QUALITY", 70),
			FrameRate:   envInt("STREAM_FPS", 25),
		},
		Attendance: AttendanceConfig{
			Timezone:           os.Getenv("ATTENDANCE_TIMEZONE"),
			AllowDepartureOnly: envBool("ATTENDANCE_ALLOW_DEPARTURE_ONLY", true),
			Cooldown:           envDuration("ATTENDANCE_COOLDOWN", 10*time.Second),
			QueueSize:          envInt("ATTENDANCE_QUEUE_SIZE", 64),
			Workers:            envInt("ATTENDANCE_WORKERS", 2),
		},
		Snapshots: SnapshotConfig{
			Dir:     envString("SNAPSHOT_DIR", "media/attendance"),
			Size:    envInt("SNAPSHOT_SIZE", 200),
			PurgeAt: envString("SNAPSHOT_PURGE_AT", "00:05"),
		},
		Email: EmailConfig{
			Enabled:       envBool("ATTENDANCE_EMAIL_ENABLED", true),
			Host:          os.Getenv("SMTP_HOST"),
			Port:          envInt("SMTP_PORT", 587),
			Username:      os.Getenv("SMTP_USERNAME"),
			Password:      os.Getenv("SMTP_PASSWORD"),
			Sender:        envString("ATTENDANCE_NOTIFICATION_SENDER", os.Getenv("SMTP_USERNAME")),
			SubjectPrefix: os.Getenv("MAIL_SUBJECT_PREFIX"),
			QueueSize:     envInt("EMAIL_QUEUE_SIZE", 100),
			Workers:       envInt("EMAIL_WORKERS", 2),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			ClientID: envString("MQTT_CLIENT_ID", "face-attendance"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
			Topic:    envString("MQTT_TOPIC", "attendance/updates"),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     os.Getenv("CLICKHOUSE_ADDR"),
			Database: envString("CLICKHOUSE_DB", "default"),
			Username: envString("CLICKHOUSE_USER", "default"),
			Password: os.Getenv("CLICKHOUSE_PASS"),
		},
		Cameras: loadCameras(),
	}
}
