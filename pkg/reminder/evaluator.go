// Package reminder decides which subscribers are due for a rule and drives the
// claim, dispatch and log cycle for each of them.
package reminder

import (
	"errors"
	"fmt"
	"slices"
	"time"
	_ "time/tzdata"

	"github.com/chris/membership-settlement/pkg/models"
)

var ErrInvalidRule = errors.New("invalid reminder rule")

// SkipReason explains why a subject is not due.
type SkipReason string

const (
	ReasonConditional   SkipReason = "conditional"
	ReasonNoAnchor      SkipReason = "no_anchor"
	ReasonExcludedDay   SkipReason = "excluded_day"
	ReasonWeekend       SkipReason = "weekend"
	ReasonOutsideWindow SkipReason = "outside_window"
)

// Decision is the result of evaluating one rule for one subject.
type Decision struct {
	Due    bool
	Target time.Time
	Reason SkipReason
}

// Evaluate reports whether subject is due for rule at now. A subject is due when the
// target time is within window of now on either side.
func Evaluate(rule *models.ReminderRule, subject *models.Subject, now time.Time, window time.Duration) (Decision, error) {
	target, reason, err := TargetTime(rule, subject)
	if err != nil {
		return Decision{}, err
	}
	if reason != "" {
		return Decision{Target: target, Reason: reason}, nil
	}
	diff := now.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	if diff > window {
		return Decision{Target: target, Reason: ReasonOutsideWindow}, nil
	}
	return Decision{Due: true, Target: target}, nil
}

// TargetTime computes when the rule should fire for subject. A non-empty reason
// means the occurrence is dropped; excluded days are not moved to the next allowed day.
func TargetTime(rule *models.ReminderRule, subject *models.Subject) (time.Time, SkipReason, error) {
	loc, err := location(rule.Timezone)
	if err != nil {
		return time.Time{}, "", err
	}
	if rule.DelayAmount < 0 {
		return time.Time{}, "", fmt.Errorf("%w: negative delay on rule %s", ErrInvalidRule, rule.Id)
	}

	var target time.Time
	switch rule.TriggerType {
	case models.AFTER_EVENT:
		if subject.EventAt.IsZero() {
			return time.Time{}, ReasonNoAnchor, nil
		}
		target, err = shift(subject.EventAt.In(loc), rule.DelayAmount, rule.DelayUnit)
	case models.BEFORE_DEADLINE:
		if subject.Deadline.IsZero() {
			return time.Time{}, ReasonNoAnchor, nil
		}
		target, err = shift(subject.Deadline.In(loc), -rule.DelayAmount, rule.DelayUnit)
	case models.ON_SPECIFIC_DATE:
		if rule.SpecificDate == nil || rule.SpecificDate.IsZero() {
			return time.Time{}, ReasonNoAnchor, nil
		}
		target = rule.SpecificDate.In(loc)
	case models.CONDITIONAL:
		return time.Time{}, ReasonConditional, nil
	default:
		return time.Time{}, "", fmt.Errorf("%w: unknown trigger type %q on rule %s", ErrInvalidRule, rule.TriggerType, rule.Id)
	}
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: rule %s: %v", ErrInvalidRule, rule.Id, err)
	}

	if rule.PreferredTime != "" && (rule.DelayUnit.IsDayBased() || rule.TriggerType == models.ON_SPECIFIC_DATE) {
		clock, err := time.Parse("15:04", rule.PreferredTime)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("%w: preferred time %q on rule %s", ErrInvalidRule, rule.PreferredTime, rule.Id)
		}
		target = time.Date(target.Year(), target.Month(), target.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	}

	if len(rule.DaysOfWeek) > 0 && !slices.Contains(rule.DaysOfWeek, isoWeekday(target)) {
		return target, ReasonExcludedDay, nil
	}
	if rule.AvoidWeekends && (target.Weekday() == time.Saturday || target.Weekday() == time.Sunday) {
		return target, ReasonWeekend, nil
	}
	return target, "", nil
}

func shift(t time.Time, amount int, unit models.DelayUnit) (time.Time, error) {
	switch unit {
	case models.Minutes:
		return t.Add(time.Duration(amount) * time.Minute), nil
	case models.Hours:
		return t.Add(time.Duration(amount) * time.Hour), nil
	case models.Days:
		return t.AddDate(0, 0, amount), nil
	case models.Weeks:
		return t.AddDate(0, 0, 7*amount), nil
	default:
		return time.Time{}, fmt.Errorf("unknown delay unit %q", unit)
	}
}

func location(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidRule, name, err)
	}
	return loc, nil
}

// isoWeekday maps Monday to 1 and Sunday to 7.
func isoWeekday(t time.Time) int {
	if wd := t.Weekday(); wd != time.Sunday {
		return int(wd)
	}
	return 7
}
