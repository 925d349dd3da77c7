// Package retention removes attendance snapshots from previous days.
package retention

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Purger deletes snapshots not dated today.
type Purger interface {
	PurgeSnapshots() (int, error)
}

// Scheduler runs the purge once a day.
type Scheduler struct {
	scheduler *gocron.Scheduler
	purger    Purger
}

// New schedules a daily purge at the given HH:MM in loc.
func New(purger Purger, at string, loc *time.Location) (*Scheduler, error) {
	s := &Scheduler{
		scheduler: gocron.NewScheduler(loc),
		purger:    purger,
	}
	if _, err := s.scheduler.Every(1).Day().At(at).Do(s.run); err != nil {
		return nil, fmt.Errorf("scheduling snapshot purge at %q: %w", at, err)
	}
	return s, nil
}

// RunNow purges immediately.
func (s *Scheduler) RunNow() (int, error) {
	removed, err := s.purger.PurgeSnapshots()
	if err != nil {
		return removed, fmt.Errorf("purging snapshots: %w", err)
	}
	log.Printf("retention: removed %d old snapshots", removed)
	return removed, nil
}

func (s *Scheduler) run() {
	if _, err := s.RunNow(); err != nil {
		log.Printf("retention: %v", err)
	}
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// NextRun returns the time of the next scheduled purge.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}
