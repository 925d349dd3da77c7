package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// backends holds the database connections shared by the commands.
type backends struct {
	pool      *postgres.Pool
	legacy    *mariadb.Pool // nil unless LEGACY_DATABASE_URL is set
	store     *postgres.AttendanceRepository
	encodings *postgres.EncodingRepository
	local     *postgres.StudentRepository
	students  database.StudentDirectory
}

// openBackends connects to PostgreSQL (applying migrations) and, when configured,
// to the school database that owns the student records.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	b := &backends{
		pool:      pool,
		store:     postgres.NewAttendanceRepository(pool),
		encodings: postgres.NewEncodingRepository(pool),
		local:     postgres.NewStudentRepository(pool),
	}
	b.students = b.local

	if cfg.Legacy.DatabaseURL != "" {
		fmt.Printf("Connecting to school database...\n")
		legacy, err := mariadb.NewPool(cfg.Legacy.DatabaseURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to school database: %w", err)
		}
		b.legacy = legacy
		b.students = b.legacyDirectory()
		fmt.Printf("Student records: school database\n")
	} else {
		fmt.Printf("Student records: PostgreSQL\n")
	}
	return b, nil
}

// legacyDirectory returns the school database directory, or nil when not connected.
func (b *backends) legacyDirectory() *mariadb.StudentDirectory {
	if b.legacy == nil {
		return nil
	}
	return mariadb.NewStudentDirectory(b.legacy)
}

// Close closes every open pool.
func (b *backends) Close() {
	if b.legacy != nil {
		b.legacy.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// newGallery creates the gallery backed by the embedding service and the encoding cache.
func newGallery(cfg *config.Config, cache database.EncodingCache) (*gallery.Gallery, *embedding.Client) {
	client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim)
	return gallery.New(cfg.Gallery.Dir, cfg.Gallery.Threshold, cfg.Embedding.Dim, client, cache), client
}
