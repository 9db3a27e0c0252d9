package app

import (
	"io"
	"log/slog"
	"testing"

	"github.com/ivanValieri/din-cash/internal/store"
)

func newTestScheduler(schedule string) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store.NewMemoryRepository(), nil, nil, logger, Options{})
	return NewScheduler(svc, logger, schedule)
}

func TestScheduler_StartRejectsInvalidSchedule(t *testing.T) {
	s := newTestScheduler("not a schedule")
	if err := s.Start(); err == nil {
		t.Fatal("expected invalid schedule to be rejected")
	}
}

func TestScheduler_StartAndStop(t *testing.T) {
	s := newTestScheduler("@every 1h")
	if err := s.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	s.RunReconciliation()
	<-s.Stop().Done()
}
