package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one scheduled tick. The context carries the job's timeout.
type JobFunc func(ctx context.Context) error

// CronDriver runs jobs on cron schedules inside a long-lived process. Ticks of the
// same job never overlap; a tick that finds the previous one still running is skipped.
type CronDriver struct {
	cron   *cron.Cron
	jobs   map[string]func()
	logger *slog.Logger
}

// NewCronDriver creates a cron driver evaluating specs in loc.
func NewCronDriver(loc *time.Location, logger *slog.Logger) *CronDriver {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	return &CronDriver{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   make(map[string]func()),
		logger: logger,
	}
}

// AddJob registers fn under name on spec (standard five-field syntax or descriptors
// such as @every 15m).
func (d *CronDriver) AddJob(name, spec string, timeout time.Duration, fn JobFunc) error {
	if _, exists := d.jobs[name]; exists {
		return fmt.Errorf("cron job %q already registered", name)
	}
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		d.logger.Info("Running cron job", "job", name)
		if err := fn(ctx); err != nil {
			d.logger.Error("Cron job failed", "job", name, "duration", time.Since(start).String(), "error", err)
			return
		}
		d.logger.Info("Cron job completed", "job", name, "duration", time.Since(start).String())
	}
	if _, err := d.cron.AddFunc(spec, run); err != nil {
		return fmt.Errorf("failed to schedule cron job %q: %w", name, err)
	}
	d.jobs[name] = run
	return nil
}

// Trigger runs a registered job once, synchronously, outside its schedule.
func (d *CronDriver) Trigger(name string) error {
	run, ok := d.jobs[name]
	if !ok {
		return fmt.Errorf("cron job %q not registered", name)
	}
	run()
	return nil
}

// Start begins running jobs in the background.
func (d *CronDriver) Start() {
	d.logger.Info("Starting cron driver", "jobs", len(d.jobs))
	d.cron.Start()
}

// Stop prevents new ticks and waits for running ones until ctx is done.
func (d *CronDriver) Stop(ctx context.Context) error {
	done := d.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron jobs still running at shutdown: %w", ctx.Err())
	}
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
