package retention

import (
	"errors"
	"testing"
	"time"
)

type fakePurger struct {
	calls   int
	removed int
	err     error
}

func (p *fakePurger) PurgeSnapshots() (int, error) {
	p.calls++
	return p.removed, p.err
}

func TestScheduler_RunNow(t *testing.T) {
	p := &fakePurger{removed: 4}
	s, err := New(p, "00:05", time.UTC)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	removed, err := s.RunNow()
	if err != nil || removed != 4 {
		t.Errorf("expected 4 removed, got %d, %v", removed, err)
	}
	if p.calls != 1 {
		t.Errorf("expected one purge, got %d", p.calls)
	}
}

func TestScheduler_RunNowError(t *testing.T) {
	p := &fakePurger{err: errors.New("permission denied")}
	s, err := New(p, "00:05", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.RunNow(); err == nil {
		t.Error("expected error")
	}
}

func TestNew_InvalidTime(t *testing.T) {
	if _, err := New(&fakePurger{}, "25:99", time.UTC); err == nil {
		t.Error("expected error for invalid time")
	}
}

func TestScheduler_NextRun(t *testing.T) {
	s, err := New(&fakePurger{}, "00:05", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	next := s.NextRun().UTC()
	if next.Hour() != 0 || next.Minute() != 5 {
		t.Errorf("expected next run at 00:05, got %v", next)
	}
	if !next.After(time.Now()) {
		t.Errorf("next run should be in the future, got %v", next)
	}
}
