package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/item-scheduler/internal/recurrence"
)

// DefaultSchedule is the cron spec used when none is configured.
const DefaultSchedule = "@every 1m"

// Alert is one reminder that falls due at At.
type Alert struct {
	ItemID         string
	SeriesID       string
	Title          string
	OccurrenceDate recurrence.Date
	Due            time.Time
	At             time.Time
}

// Source lists the alerts whose instant lies in (after, until].
type Source interface {
	DueAlerts(ctx context.Context, after, until time.Time) ([]Alert, error)
}

// Notifier delivers one alert.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier delivers alerts as structured log lines.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, alert Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "alert due",
		"item_id", alert.ItemID,
		"series_id", alert.SeriesID,
		"title", alert.Title,
		"occurrence_date", alert.OccurrenceDate.String(),
		"due", alert.Due,
		"at", alert.At,
	)
	return nil
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Schedule string
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

// Dispatcher scans for due alerts on a cron schedule and hands each one to a
// Notifier exactly once per process lifetime.
type Dispatcher struct {
	source   Source
	notifier Notifier
	schedule string
	now      func() time.Time
	logger   *slog.Logger
	cron     *cron.Cron

	mu       sync.Mutex
	lastTick time.Time
}

// NewDispatcher creates a dispatcher. Alerts due before the first tick are
// not delivered.
func NewDispatcher(source Source, notifier Notifier, config DispatcherConfig) (*Dispatcher, error) {
	if source == nil || notifier == nil {
		return nil, errors.New("alerts: dispatcher requires a source and a notifier")
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "alerts")

	d := &Dispatcher{
		source:   source,
		notifier: notifier,
		schedule: config.Schedule,
		now:      config.Now,
		logger:   logger,
		lastTick: config.Now(),
	}
	d.cron = cron.New(
		cron.WithLocation(config.Location),
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: logger})),
	)
	if _, err := d.cron.AddFunc(config.Schedule, func() {
		if err := d.Tick(context.Background()); err != nil {
			logger.Error("alert scan failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("alerts: invalid schedule %q: %w", config.Schedule, err)
	}
	return d, nil
}

// Start begins running the schedule in the background.
func (d *Dispatcher) Start() {
	d.logger.Info("alert dispatcher started", "schedule", d.schedule)
	d.cron.Start()
}

// Stop halts the schedule and waits for a running scan to finish or ctx to
// expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	done := d.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick delivers every alert due since the previous tick. Delivery failures
// are logged and do not stop the remaining alerts.
func (d *Dispatcher) Tick(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !now.After(d.lastTick) {
		return nil
	}

	due, err := d.source.DueAlerts(ctx, d.lastTick, now)
	if err != nil {
		return err
	}
	d.lastTick = now

	delivered := 0
	for _, alert := range due {
		if err := d.notifier.Notify(ctx, alert); err != nil {
			d.logger.ErrorContext(ctx, "alert delivery failed", "item_id", alert.ItemID, "error", err)
			continue
		}
		delivered++
	}
	if len(due) > 0 {
		d.logger.DebugContext(ctx, "alert scan complete", "due", len(due), "delivered", delivered)
	}
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
