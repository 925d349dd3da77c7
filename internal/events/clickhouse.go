package events

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/kozaktomas/face-attendance/internal/config"
)

const recognitionEventsTable = `
CREATE TABLE IF NOT EXISTS recognition_events (
	id String,
	timestamp DateTime64(3),
	student_id String,
	display_name String,
	grade_section String,
	mode LowCardinality(String),
	image_url String
) ENGINE = MergeTree()
ORDER BY (timestamp, student_id)
`

// ClickHouseSink stores every event in the recognition_events table for reporting.
type ClickHouseSink struct {
	conn driver.Conn
}

// NewClickHouseSink connects and creates the events table if needed.
func NewClickHouseSink(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, recognitionEventsTable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create recognition_events table: %w", err)
	}
	log.Printf("Connected to ClickHouse at %s", cfg.Addr)

	return &ClickHouseSink{conn: conn}, nil
}

func (s *ClickHouseSink) Name() string {
	return "clickhouse"
}

func (s *ClickHouseSink) Write(ctx context.Context, event RecognitionEvent) error {
	err := s.conn.Exec(ctx, `
		INSERT INTO recognition_events (id, timestamp, student_id, display_name, grade_section, mode, image_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Timestamp,
		event.StudentID,
		event.DisplayName,
		event.GradeSection,
		string(event.Mode),
		event.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recognition event: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
