package claude

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSaver_CoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	s := newSaver(50*time.Millisecond, func() { calls.Add(1) })
	defer s.Stop()

	for i := 0; i < 20; i++ {
		s.Schedule()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 save after burst, got %d", got)
	}
}

func TestSaver_FlushRunsImmediatelyAndDisarms(t *testing.T) {
	var calls atomic.Int32
	s := newSaver(100*time.Millisecond, func() { calls.Add(1) })
	defer s.Stop()

	s.Schedule()
	s.Flush()
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected flush to run the save, got %d calls", got)
	}

	time.Sleep(200 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("pending timer fired after flush: %d calls", got)
	}
}

func TestSaver_StopPreventsPendingSave(t *testing.T) {
	var calls atomic.Int32
	s := newSaver(50*time.Millisecond, func() { calls.Add(1) })

	s.Schedule()
	s.Stop()

	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("expected no saves after Stop, got %d", got)
	}
}
