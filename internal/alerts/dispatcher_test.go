package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type windowSource struct {
	mu      sync.Mutex
	alerts  []Alert
	windows [][2]time.Time
}

func (s *windowSource) DueAlerts(_ context.Context, after, until time.Time) ([]Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, [2]time.Time{after, until})
	var due []Alert
	for _, alert := range s.alerts {
		if alert.At.After(after) && !alert.At.After(until) {
			due = append(due, alert)
		}
	}
	return due, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	delivered []string
	failFor   string
}

func (n *recordingNotifier) Notify(_ context.Context, alert Alert) error {
	if alert.ItemID == n.failFor {
		return errors.New("push gateway down")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = append(n.delivered, alert.ItemID)
	return nil
}

func TestDispatcher_TickDeliversEachAlertOnce(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, time.January, 29, 8, 0, 0, 0, tokyo)
	now := start
	source := &windowSource{alerts: []Alert{
		{ItemID: "early", At: start.Add(-time.Minute)},
		{ItemID: "first", At: start.Add(30 * time.Second)},
		{ItemID: "broken", At: start.Add(45 * time.Second)},
		{ItemID: "second", At: start.Add(90 * time.Second)},
	}}
	notifier := &recordingNotifier{failFor: "broken"}

	dispatcher, err := NewDispatcher(source, notifier, DispatcherConfig{
		Location: tokyo,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	ctx := context.Background()
	now = start.Add(time.Minute)
	if err := dispatcher.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	// A tick that does not advance the clock scans nothing.
	if err := dispatcher.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	now = start.Add(2 * time.Minute)
	if err := dispatcher.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if len(notifier.delivered) != 2 || notifier.delivered[0] != "first" || notifier.delivered[1] != "second" {
		t.Fatalf("unexpected deliveries: %v", notifier.delivered)
	}
	if len(source.windows) != 2 || !source.windows[1][0].Equal(start.Add(time.Minute)) {
		t.Fatalf("unexpected scan windows: %v", source.windows)
	}
}

func TestDispatcher_RejectsInvalidSchedule(t *testing.T) {
	t.Parallel()

	_, err := NewDispatcher(&windowSource{}, &recordingNotifier{}, DispatcherConfig{Schedule: "every now and then"})
	if err == nil {
		t.Fatal("expected schedule error")
	}
	if _, err := NewDispatcher(nil, &recordingNotifier{}, DispatcherConfig{}); err == nil {
		t.Fatal("expected error without a source")
	}
}

func TestDispatcher_StartStop(t *testing.T) {
	t.Parallel()

	dispatcher, err := NewDispatcher(&windowSource{}, LogNotifier{}, DispatcherConfig{Schedule: "@every 1h"})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	dispatcher.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := dispatcher.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
