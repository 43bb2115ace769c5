package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/dispatch"
	"github.com/chris/membership-settlement/pkg/idempotency"
	"github.com/chris/membership-settlement/pkg/metrics"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// Dispatcher delivers a rendered message over the given channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, channels []models.Channel, msg *dispatch.Message) *dispatch.Result
}

// Runner evaluates every active rule against its subscribers once per call.
type Runner struct {
	Store       storage.ReminderBackend
	Guard       idempotency.Guard
	Dispatcher  Dispatcher
	Links       config.Links
	Window      time.Duration
	MaxAttempts int
	Concurrency int
	// StaleAfter is how long a PENDING log may hold its claim before a later pass
	// takes it over. Zero never takes over.
	StaleAfter time.Duration
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

func NewRunner(store storage.ReminderBackend, guard idempotency.Guard, d Dispatcher, cfg config.Reminder, links config.Links, logger *slog.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Store:       store,
		Guard:       guard,
		Dispatcher:  d,
		Links:       links,
		Window:      cfg.DueWindow,
		MaxAttempts: max(cfg.MaxAttempts, 1),
		Concurrency: max(cfg.Concurrency, 1),
		StaleAfter:  cfg.RunTimeout,
		Logger:      logger,
		Metrics:     m,
	}
}

// Summary is the JSON report of one pass.
type Summary struct {
	Rules     int      `json:"rules"`
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
	Items     []Item   `json:"items"`
}

// Item is the outcome for one due (rule, user) pair.
type Item struct {
	RuleId   string                `json:"rule_id"`
	UserId   string                `json:"user_id"`
	Status   models.ReminderStatus `json:"status,omitempty"`
	Channels []models.Channel      `json:"channels,omitempty"`
	Error    string                `json:"error,omitempty"`
}

type collector struct {
	mu sync.Mutex
	s  Summary
}

func (c *collector) add(fn func(s *Summary)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.s)
}

// Run evaluates all active rules at now. Rules run concurrently; a failure for one
// subject is recorded and the pass moves on. The error is non-nil only when the
// rules themselves cannot be listed.
func (r *Runner) Run(ctx context.Context, now time.Time) (Summary, error) {
	start := time.Now()
	defer func() { r.Metrics.ObserveRun(time.Since(start)) }()

	c := &collector{s: Summary{Errors: []string{}, Items: []Item{}}}

	rules, err := r.Store.ListActiveRules(ctx)
	if err != nil {
		c.s.Errors = append(c.s.Errors, err.Error())
		return c.s, fmt.Errorf("failed to list active rules: %w", err)
	}
	c.s.Rules = len(rules)
	r.Logger.Info("Starting reminder pass", "rules", len(rules), "now", now)

	var g errgroup.Group
	g.SetLimit(r.Concurrency)
	for i := range rules {
		rule := &rules[i]
		g.Go(func() error {
			r.runRule(ctx, rule, now, c)
			return nil
		})
	}
	_ = g.Wait()

	r.Logger.Info("Reminder pass finished",
		"processed", c.s.Processed, "sent", c.s.Sent, "failed", c.s.Failed,
		"skipped", c.s.Skipped, "errors", len(c.s.Errors))
	return c.s, nil
}

func (r *Runner) runRule(ctx context.Context, rule *models.ReminderRule, now time.Time, c *collector) {
	logger := r.Logger.With("rule_id", rule.Id)
	fail := func(userID string, err error) {
		logger.Error("Reminder evaluation failed", "user_id", userID, "error", err)
		c.add(func(s *Summary) {
			s.Errors = append(s.Errors, fmt.Sprintf("%s/%s: %v", rule.Id, userID, err))
			s.Items = append(s.Items, Item{RuleId: rule.Id, UserId: userID, Error: err.Error()})
		})
	}

	item, err := r.Store.GetCatalogItem(ctx, models.Category(rule.Target.Kind), rule.Target.ItemId)
	if err != nil {
		fail("", fmt.Errorf("failed to load rule target %s: %w", rule.Target.ItemId, err))
		return
	}

	grants, err := r.Store.ListEntitlementsByGrant(ctx, models.GrantKey(rule.Target.Kind, rule.Target.ItemId))
	if err != nil {
		fail("", fmt.Errorf("failed to list subscribers: %w", err))
		return
	}

	for i := range grants {
		grant := &grants[i]
		if err := ctx.Err(); err != nil {
			fail(grant.UserId, fmt.Errorf("pass cancelled: %w", err))
			return
		}
		if !grant.EndsAt.After(now) {
			continue
		}

		subject, err := r.subject(ctx, grant, item)
		if err != nil {
			fail(grant.UserId, err)
			continue
		}

		c.add(func(s *Summary) { s.Processed++ })
		decision, err := Evaluate(rule, subject, now, r.Window)
		if err != nil {
			fail(grant.UserId, err)
			// An invalid rule fails the same way for every subject.
			return
		}
		if !decision.Due {
			c.add(func(s *Summary) { s.Skipped++ })
			r.Metrics.ObserveReminder("not_due")
			continue
		}

		out, err := r.deliver(ctx, rule, subject, decision.Target, now)
		if err != nil {
			fail(grant.UserId, err)
			continue
		}
		c.add(func(s *Summary) {
			switch out.Status {
			case models.ReminderSent:
				s.Sent++
				s.Items = append(s.Items, *out)
			case models.ReminderFailed:
				s.Failed++
				s.Items = append(s.Items, *out)
			default:
				s.Skipped++
			}
		})
	}
}

func (r *Runner) subject(ctx context.Context, grant *models.Entitlement, item *models.CatalogItem) (*models.Subject, error) {
	profile, err := r.Store.GetUserProfile(ctx, grant.UserId)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
		profile = &models.UserProfile{UserId: grant.UserId}
	}
	return &models.Subject{
		UserId:    grant.UserId,
		Profile:   *profile,
		ItemTitle: item.Label,
		EventAt:   grant.StartsAt,
		Deadline:  grant.EndsAt,
	}, nil
}

// deliver runs claim, dispatch and log for one due pair. A returned Item with an
// empty status means the pair was skipped.
func (r *Runner) deliver(ctx context.Context, rule *models.ReminderRule, subject *models.Subject, target, now time.Time) (*Item, error) {
	out := &Item{RuleId: rule.Id, UserId: subject.UserId}

	// 1. The log row is the durable record; a SENT row is final.
	attempts := 0
	prev, err := r.Store.GetReminderLog(ctx, rule.Id, subject.UserId)
	switch {
	case err == nil:
		if r.stalePending(prev, now) && prev.Attempts >= r.MaxAttempts {
			r.Metrics.ObserveReminder("exhausted")
			return out, nil
		}
		if prev.Status == models.ReminderSent || prev.Status == models.ReminderDelivered {
			r.Metrics.ObserveReminder("already_sent")
			return out, nil
		}
		if prev.Status == models.ReminderFailed && prev.Attempts >= r.MaxAttempts {
			r.Metrics.ObserveReminder("exhausted")
			return out, nil
		}
		attempts = prev.Attempts
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to read reminder log: %w", err)
	}

	// 2. Claim the pair across workers.
	key := idempotency.ReminderKey(rule.Id, subject.UserId)
	claimed, err := r.Guard.TryClaim(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to claim reminder: %w", err)
	}
	if !claimed && prev != nil && r.stalePending(prev, now) {
		// The worker that wrote this PENDING row died before recording an outcome.
		r.Logger.Warn("Taking over stale reminder claim", "rule_id", rule.Id, "user_id", subject.UserId, "claimed_at", prev.ClaimedAt)
		if err := r.Guard.Release(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to release stale reminder claim: %w", err)
		}
		if claimed, err = r.Guard.TryClaim(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to claim reminder: %w", err)
		}
	}
	if !claimed {
		r.Metrics.ObserveReminder("claimed")
		return out, nil
	}

	claimedAt := now
	logEntry := &models.ReminderLog{
		RuleId:      rule.Id,
		UserId:      subject.UserId,
		Status:      models.ReminderPending,
		Attempts:    attempts + 1,
		ScheduledAt: target,
		ClaimedAt:   &claimedAt,
	}
	if err := r.Store.PutReminderLog(ctx, logEntry); err != nil {
		return nil, r.releaseOnError(ctx, key, fmt.Errorf("failed to write pending log: %w", err))
	}

	// 3. Render and dispatch.
	tc := dispatch.NewTemplateContext(subject, rule.Target.ItemId, r.Links, now)
	result := r.Dispatcher.Dispatch(ctx, rule.EnabledChannels(), dispatch.RenderRule(rule, subject, tc))

	// 4. Record the outcome.
	logEntry.Status = result.Status()
	logEntry.Channels = result.Succeeded
	at := now
	if logEntry.Status == models.ReminderSent {
		logEntry.SentAt = &at
	} else {
		logEntry.FailedAt = &at
		if result.LastError != nil {
			logEntry.LastError = result.LastError.Error()
		}
	}
	if err := r.Store.PutReminderLog(ctx, logEntry); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return out, nil
		}
		// Keep the claim after a successful send so the pair is not sent twice.
		if logEntry.Status == models.ReminderSent {
			return nil, fmt.Errorf("failed to write sent log: %w", err)
		}
		return nil, r.releaseOnError(ctx, key, fmt.Errorf("failed to write failed log: %w", err))
	}

	var sent, failed int64
	if logEntry.Status == models.ReminderSent {
		sent = 1
	} else {
		failed = 1
		if logEntry.Attempts < r.MaxAttempts {
			if err := r.Guard.Release(ctx, key); err != nil {
				r.Logger.Error("Failed to release reminder claim", "rule_id", rule.Id, "user_id", subject.UserId, "error", err)
			}
		}
	}
	if err := r.Store.IncrementRuleCounters(ctx, rule.Id, sent, failed); err != nil {
		r.Logger.Warn("Failed to update rule counters", "rule_id", rule.Id, "error", err)
	}
	r.Metrics.ObserveReminder(string(logEntry.Status))

	out.Status = logEntry.Status
	out.Channels = logEntry.Channels
	out.Error = logEntry.LastError
	return out, nil
}

// stalePending reports whether l is a PENDING row whose claim is older than StaleAfter.
func (r *Runner) stalePending(l *models.ReminderLog, now time.Time) bool {
	if r.StaleAfter <= 0 || l.Status != models.ReminderPending || l.ClaimedAt == nil {
		return false
	}
	return now.Sub(*l.ClaimedAt) > r.StaleAfter
}

func (r *Runner) releaseOnError(ctx context.Context, key string, err error) error {
	if relErr := r.Guard.Release(ctx, key); relErr != nil {
		r.Logger.Error("Failed to release reminder claim", "key", key, "error", relErr)
	}
	return err
}
