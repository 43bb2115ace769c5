package reminder

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chris/membership-settlement/pkg/channels/email"
	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/dispatch"
	"github.com/chris/membership-settlement/pkg/idempotency"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	channel models.Channel
	err     error
	calls   atomic.Int32
	last    atomic.Pointer[dispatch.Message]
}

func (s *fakeSender) Channel() models.Channel { return s.channel }

func (s *fakeSender) Send(_ context.Context, msg *dispatch.Message) error {
	s.calls.Add(1)
	s.last.Store(msg)
	return s.err
}

var runAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seedRunner(t *testing.T, maxAttempts int, senders ...dispatch.Sender) (*Runner, *memory.Store, *idempotency.MemoryGuard) {
	t.Helper()
	store := memory.New()
	store.PutCatalogItem(models.CatalogItem{Id: "course-1", Category: models.CategoryCourse, Label: "Export Basics"})
	store.PutUserProfile(models.UserProfile{UserId: "u1", Name: "Sari", Email: "sari@example.com"})
	store.PutEntitlement(models.Entitlement{
		UserId:   "u1",
		GrantKey: models.GrantKey(models.EntitlementCourse, "course-1"),
		Kind:     models.EntitlementCourse,
		ItemId:   "course-1",
		StartsAt: runAt.AddDate(0, 0, -1),
		EndsAt:   runAt.AddDate(1, 0, 0),
	})
	store.PutRule(models.ReminderRule{
		Id:           "rule-1",
		Title:        "Continue your course",
		Target:       models.ReminderTarget{Kind: models.EntitlementCourse, ItemId: "course-1"},
		TriggerType:  models.AFTER_EVENT,
		DelayAmount:  1,
		DelayUnit:    models.Days,
		EmailEnabled: true,
		PushEnabled:  true,
		InAppEnabled: true,
		Email:        models.EmailContent{Subject: "Hi {name}", Body: "Keep going with {plan_name}"},
		Push:         models.PushContent{Body: "{plan_name} is waiting"},
		InApp:        models.InAppContent{Body: "Continue {plan_name}"},
		IsActive:     true,
	})

	guard := idempotency.NewMemoryGuard()
	d := dispatch.New(time.Second, nil, nil, senders...)
	cfg := config.Reminder{DueWindow: 15 * time.Minute, MaxAttempts: maxAttempts, Concurrency: 2}
	links := config.Links{Dashboard: "https://app.example.com/dashboard", Payment: "https://app.example.com/checkout"}
	return NewRunner(store, guard, d, cfg, links, nil, nil), store, guard
}

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("At Most Once Across Passes", func(t *testing.T) {
		email := &fakeSender{channel: models.ChannelEmail}
		push := &fakeSender{channel: models.ChannelPush}
		inApp := &fakeSender{channel: models.ChannelInApp}
		runner, store, _ := seedRunner(t, 3, email, push, inApp)

		first, err := runner.Run(ctx, runAt)
		require.NoError(t, err)
		second, err := runner.Run(ctx, runAt.Add(5*time.Minute))
		require.NoError(t, err)

		assert.Equal(t, 1, first.Rules)
		assert.Equal(t, 1, first.Sent)
		assert.Equal(t, 0, second.Sent)
		assert.Equal(t, 1, second.Skipped)
		assert.Equal(t, int32(1), email.calls.Load())

		log, err := store.GetReminderLog(ctx, "rule-1", "u1")
		require.NoError(t, err)
		assert.Equal(t, models.ReminderSent, log.Status)
		assert.Equal(t, 1, log.Attempts)
		require.NotNil(t, log.SentAt)

		rule, ok := store.GetRule("rule-1")
		require.True(t, ok)
		assert.Equal(t, int64(1), rule.SentCount)
		assert.Equal(t, int64(0), rule.FailedCount)

		msg := email.last.Load()
		require.NotNil(t, msg)
		assert.Equal(t, "Hi Sari", msg.Email.Subject)
		assert.Equal(t, "Keep going with Export Basics", msg.Email.Body)
	})

	t.Run("Channel Isolation", func(t *testing.T) {
		email := &fakeSender{channel: models.ChannelEmail, err: errors.New("smtp down")}
		push := &fakeSender{channel: models.ChannelPush}
		inApp := &fakeSender{channel: models.ChannelInApp}
		runner, store, _ := seedRunner(t, 3, email, push, inApp)

		summary, err := runner.Run(ctx, runAt)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Sent)
		require.Len(t, summary.Items, 1)
		assert.Equal(t, []models.Channel{models.ChannelPush, models.ChannelInApp}, summary.Items[0].Channels)

		log, err := store.GetReminderLog(ctx, "rule-1", "u1")
		require.NoError(t, err)
		assert.Equal(t, models.ReminderSent, log.Status)
		assert.Equal(t, []models.Channel{models.ChannelPush, models.ChannelInApp}, log.Channels)
	})

	t.Run("Retries Until Max Attempts", func(t *testing.T) {
		email := &fakeSender{channel: models.ChannelEmail, err: errors.New("smtp down")}
		push := &fakeSender{channel: models.ChannelPush, err: errors.New("no subscribers")}
		inApp := &fakeSender{channel: models.ChannelInApp, err: errors.New("table missing")}
		runner, store, _ := seedRunner(t, 2, email, push, inApp)

		for i := 0; i < 3; i++ {
			_, err := runner.Run(ctx, runAt.Add(time.Duration(i)*time.Minute))
			require.NoError(t, err)
		}

		assert.Equal(t, int32(2), email.calls.Load())
		log, err := store.GetReminderLog(ctx, "rule-1", "u1")
		require.NoError(t, err)
		assert.Equal(t, models.ReminderFailed, log.Status)
		assert.Equal(t, 2, log.Attempts)
		assert.NotEmpty(t, log.LastError)
		require.NotNil(t, log.FailedAt)

		rule, _ := store.GetRule("rule-1")
		assert.Equal(t, int64(2), rule.FailedCount)
	})

	t.Run("Claimed By Another Worker", func(t *testing.T) {
		email := &fakeSender{channel: models.ChannelEmail}
		runner, store, guard := seedRunner(t, 3, email)
		claimed, err := guard.TryClaim(ctx, idempotency.ReminderKey("rule-1", "u1"))
		require.NoError(t, err)
		require.True(t, claimed)

		summary, err := runner.Run(ctx, runAt)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Skipped)
		assert.Equal(t, int32(0), email.calls.Load())
		_, err = store.GetReminderLog(ctx, "rule-1", "u1")
		assert.Error(t, err)
	})

	t.Run("Not Due", func(t *testing.T) {
		email := &fakeSender{channel: models.ChannelEmail}
		runner, _, _ := seedRunner(t, 3, email)

		summary, err := runner.Run(ctx, runAt.Add(2*time.Hour))

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, 1, summary.Skipped)
		assert.Equal(t, int32(0), email.calls.Load())
	})

	t.Run("Expired Grants Are Ignored", func(t *testing.T) {
		email := &fakeSender{channel: models.ChannelEmail}
		runner, store, _ := seedRunner(t, 3, email)
		store.PutEntitlement(models.Entitlement{
			UserId:   "u1",
			GrantKey: models.GrantKey(models.EntitlementCourse, "course-1"),
			Kind:     models.EntitlementCourse,
			ItemId:   "course-1",
			StartsAt: runAt.AddDate(0, 0, -1),
			EndsAt:   runAt.Add(-time.Minute),
		})

		summary, err := runner.Run(ctx, runAt)

		require.NoError(t, err)
		assert.Equal(t, 0, summary.Processed)
		assert.Equal(t, int32(0), email.calls.Load())
	})

	t.Run("Missing Target Is Reported", func(t *testing.T) {
		email := &fakeSender{channel: models.ChannelEmail}
		runner, store, _ := seedRunner(t, 3, email)
		store.PutRule(models.ReminderRule{
			Id:           "rule-2",
			Target:       models.ReminderTarget{Kind: models.EntitlementMembership, ItemId: "plan-gone"},
			TriggerType:  models.AFTER_EVENT,
			DelayUnit:    models.Days,
			EmailEnabled: true,
			IsActive:     true,
		})

		summary, err := runner.Run(ctx, runAt)

		require.NoError(t, err)
		assert.Equal(t, 2, summary.Rules)
		assert.Equal(t, 1, summary.Sent)
		require.Len(t, summary.Errors, 1)
		assert.Contains(t, summary.Errors[0], "rule-2")
	})

	t.Run("Unconfigured Email Is A Failure", func(t *testing.T) {
		sender := email.New(config.SendGridProvider{FromEmail: "no-reply@example.com"}, false, nil)
		runner, store, guard := seedRunner(t, 3, sender)
		rule, ok := store.GetRule("rule-1")
		require.True(t, ok)
		rule.PushEnabled, rule.InAppEnabled = false, false
		store.PutRule(rule)

		summary, err := runner.Run(ctx, runAt)

		require.NoError(t, err)
		assert.Equal(t, 0, summary.Sent)
		assert.Equal(t, 1, summary.Failed)
		log, err := store.GetReminderLog(ctx, "rule-1", "u1")
		require.NoError(t, err)
		assert.Equal(t, models.ReminderFailed, log.Status)
		assert.Empty(t, log.Channels)
		assert.Contains(t, log.LastError, email.ErrNotConfigured.Error())

		// The claim is released so a configured pass can still deliver.
		claimed, err := guard.TryClaim(ctx, idempotency.ReminderKey("rule-1", "u1"))
		require.NoError(t, err)
		assert.True(t, claimed)
	})
}

func TestRunner_StalePending(t *testing.T) {
	ctx := context.Background()

	seedPending := func(t *testing.T, guard *idempotency.MemoryGuard, store *memory.Store, claimedAt time.Time, attempts int) {
		t.Helper()
		claimed, err := guard.TryClaim(ctx, idempotency.ReminderKey("rule-1", "u1"))
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, store.PutReminderLog(ctx, &models.ReminderLog{
			RuleId:    "rule-1",
			UserId:    "u1",
			Status:    models.ReminderPending,
			Attempts:  attempts,
			ClaimedAt: &claimedAt,
		}))
	}

	t.Run("Taken Over After Run Timeout", func(t *testing.T) {
		sender := &fakeSender{channel: models.ChannelEmail}
		runner, store, guard := seedRunner(t, 3, sender)
		runner.StaleAfter = 10 * time.Minute
		seedPending(t, guard, store, runAt.Add(-time.Hour), 1)

		summary, err := runner.Run(ctx, runAt)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Sent)
		assert.Equal(t, int32(1), sender.calls.Load())
		log, err := store.GetReminderLog(ctx, "rule-1", "u1")
		require.NoError(t, err)
		assert.Equal(t, models.ReminderSent, log.Status)
		assert.Equal(t, 2, log.Attempts)
	})

	t.Run("Recent Claim Is Respected", func(t *testing.T) {
		sender := &fakeSender{channel: models.ChannelEmail}
		runner, store, guard := seedRunner(t, 3, sender)
		runner.StaleAfter = 10 * time.Minute
		seedPending(t, guard, store, runAt.Add(-time.Minute), 1)

		summary, err := runner.Run(ctx, runAt)

		require.NoError(t, err)
		assert.Equal(t, 0, summary.Sent)
		assert.Equal(t, int32(0), sender.calls.Load())
	})

	t.Run("Never Taken Over Without Threshold", func(t *testing.T) {
		sender := &fakeSender{channel: models.ChannelEmail}
		runner, store, guard := seedRunner(t, 3, sender)
		seedPending(t, guard, store, runAt.Add(-24*time.Hour), 1)

		summary, err := runner.Run(ctx, runAt)

		require.NoError(t, err)
		assert.Equal(t, 0, summary.Sent)
		assert.Equal(t, int32(0), sender.calls.Load())
	})

	t.Run("Exhausted Stale Claim Is Left Alone", func(t *testing.T) {
		sender := &fakeSender{channel: models.ChannelEmail}
		runner, store, guard := seedRunner(t, 3, sender)
		runner.StaleAfter = 10 * time.Minute
		seedPending(t, guard, store, runAt.Add(-time.Hour), 3)

		summary, err := runner.Run(ctx, runAt)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Skipped)
		assert.Equal(t, int32(0), sender.calls.Load())
	})
}
