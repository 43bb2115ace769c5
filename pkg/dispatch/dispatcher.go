// Package dispatch delivers one rendered message over several independent channels.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chris/membership-settlement/pkg/metrics"
	"github.com/chris/membership-settlement/pkg/models"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoChannels           = errors.New("no channels enabled")
	ErrChannelNotConfigured = errors.New("channel not configured")
	ErrDeliveryFailed       = errors.New("delivery failed on every channel")
)

const defaultChannelTimeout = 10 * time.Second

// Message is the rendered content for one recipient.
type Message struct {
	UserId    string
	SourceId  string
	Recipient models.UserProfile
	Email     models.EmailContent
	Push      models.PushContent
	InApp     models.InAppContent
	Chat      models.ChatContent
}

// Sender delivers a message over one channel.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, msg *Message) error
}

// Result aggregates the outcome of every attempted channel.
type Result struct {
	Succeeded []models.Channel
	Failed    map[models.Channel]error
	LastError error
}

// Status is SENT when at least one channel succeeded, FAILED otherwise.
func (r *Result) Status() models.ReminderStatus {
	if len(r.Succeeded) > 0 {
		return models.ReminderSent
	}
	return models.ReminderFailed
}

type Dispatcher struct {
	senders map[models.Channel]Sender
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(timeout time.Duration, logger *slog.Logger, m *metrics.Metrics, senders ...Sender) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultChannelTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		senders: make(map[models.Channel]Sender, len(senders)),
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
	for _, s := range senders {
		d.senders[s.Channel()] = s
	}
	return d
}

// Supports reports whether a sender is registered for the channel.
func (d *Dispatcher) Supports(c models.Channel) bool {
	_, ok := d.senders[c]
	return ok
}

// Dispatch attempts every channel concurrently. A failing, slow or panicking
// channel never prevents the others from being attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, channels []models.Channel, msg *Message) *Result {
	result := &Result{Failed: make(map[models.Channel]error)}
	if len(channels) == 0 {
		result.LastError = ErrNoChannels
		return result
	}

	errs := make([]error, len(channels))
	var g errgroup.Group
	for i, ch := range channels {
		g.Go(func() error {
			errs[i] = d.attempt(ctx, ch, msg)
			return nil
		})
	}
	_ = g.Wait()

	// Collect in dispatch order so that LastError is deterministic.
	for i, ch := range channels {
		if errs[i] == nil {
			result.Succeeded = append(result.Succeeded, ch)
			continue
		}
		result.Failed[ch] = errs[i]
		result.LastError = fmt.Errorf("%s: %w", ch, errs[i])
	}
	return result
}

func (d *Dispatcher) attempt(ctx context.Context, ch models.Channel, msg *Message) error {
	sender, ok := d.senders[ch]
	if !ok {
		return ErrChannelNotConfigured
	}

	start := time.Now()
	err := d.send(ctx, sender, msg)
	result := "sent"
	if err != nil {
		result = "failed"
		d.logger.Warn("Channel delivery failed", "channel", ch, "user_id", msg.UserId, "source_id", msg.SourceId, "error", err)
	}
	d.metrics.ObserveChannel(string(ch), result, time.Since(start))
	return err
}

func (d *Dispatcher) send(ctx context.Context, sender Sender, msg *Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- sender.Send(ctx, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timed out after %s: %w", d.timeout, ctx.Err())
	}
}
