package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aicarpool/carpool/pkg/observability"
)

// UsageStore is the storage port for period counters. Rows are created
// lazily: a period key that has never been written reads as zero usage, so
// rollover needs no reset operation.
type UsageStore interface {
	// AddUsage atomically increments the day and month counters for the
	// subject. Must be safe for concurrent callers on the same subject.
	AddUsage(ctx context.Context, subject Subject, dayKey, monthKey string, tokens int64, cost float64) error

	// PeriodUsage returns the accumulated usage for the given day and month
	// keys. Missing rows read as zero.
	PeriodUsage(ctx context.Context, subject Subject, dayKey, monthKey string) (day Usage, month Usage, err error)
}

// LimitsSource resolves the configured limits and thresholds for a subject.
// Group limits come from the group's resource binding; account limits from
// the account directory.
type LimitsSource interface {
	Limits(ctx context.Context, subject Subject) (Limits, Thresholds, error)
}

// Tracker tracks daily and monthly token/cost consumption per subject
// against configured limits. Period keys derive from wall-clock time at each
// read or write.
type Tracker struct {
	store   UsageStore
	limits  LimitsSource
	now     func() time.Time
	metrics *observability.Metrics
}

// NewTracker creates a tracker. now may be nil to use wall-clock time.
func NewTracker(store UsageStore, limits LimitsSource, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: store, limits: limits, now: now}
}

// SetMetrics attaches usage and threshold metrics. Call before serving
// traffic; recording is skipped when no metrics are attached.
func (t *Tracker) SetMetrics(m *observability.Metrics) {
	t.metrics = m
}

// RecordUsage increments the current day and month counters for the subject.
// Each call represents one real usage event.
func (t *Tracker) RecordUsage(ctx context.Context, subject Subject, tokens int64, cost float64) error {
	if tokens < 0 || cost < 0 {
		return fmt.Errorf("usage increments must be non-negative")
	}
	now := t.now()
	if err := t.store.AddUsage(ctx, subject, DayKey(now), MonthKey(now), tokens, cost); err != nil {
		return fmt.Errorf("failed to record usage for %s: %w", subject.Key(), err)
	}
	if t.metrics != nil {
		t.metrics.QuotaUsageRecordsTotal.WithLabelValues(string(subject.Kind)).Inc()
	}
	return nil
}

// Remaining computes limit minus current-period usage, floored at zero.
func (t *Tracker) Remaining(ctx context.Context, subject Subject) (Remaining, error) {
	limits, _, err := t.limits.Limits(ctx, subject)
	if err != nil {
		return Remaining{}, fmt.Errorf("failed to resolve limits for %s: %w", subject.Key(), err)
	}
	return t.RemainingWithLimits(ctx, subject, limits)
}

// RemainingWithLimits is Remaining for callers that already hold the
// subject's limits, saving the limits lookup on hot selection paths.
func (t *Tracker) RemainingWithLimits(ctx context.Context, subject Subject, limits Limits) (Remaining, error) {
	now := t.now()
	day, month, err := t.store.PeriodUsage(ctx, subject, DayKey(now), MonthKey(now))
	if err != nil {
		return Remaining{}, fmt.Errorf("failed to read usage for %s: %w", subject.Key(), err)
	}

	rem := Remaining{
		DailyTokens:   limits.DailyTokens - day.Tokens,
		MonthlyBudget: limits.MonthlyBudget - month.Cost,
	}
	if rem.DailyTokens < 0 {
		rem.DailyTokens = 0
	}
	if rem.MonthlyBudget < 0 {
		rem.MonthlyBudget = 0
	}
	// A zero limit means unlimited; report zero headroom rather than a
	// negative number. Exhausted() ignores unlimited dimensions.
	if limits.DailyTokens == 0 {
		rem.DailyTokens = 0
	}
	if limits.MonthlyBudget == 0 {
		rem.MonthlyBudget = 0
	}
	return rem, nil
}

// ThresholdState compares current usage percentage against the subject's
// warning and alert thresholds.
func (t *Tracker) ThresholdState(ctx context.Context, subject Subject) (ThresholdState, error) {
	limits, thresholds, err := t.limits.Limits(ctx, subject)
	if err != nil {
		return StateOK, fmt.Errorf("failed to resolve limits for %s: %w", subject.Key(), err)
	}

	now := t.now()
	day, month, err := t.store.PeriodUsage(ctx, subject, DayKey(now), MonthKey(now))
	if err != nil {
		return StateOK, fmt.Errorf("failed to read usage for %s: %w", subject.Key(), err)
	}

	pct := usagePercent(day, month, limits)
	state := StateOK
	switch {
	case thresholds.AlertPercent > 0 && pct >= float64(thresholds.AlertPercent):
		state = StateAlert
	case thresholds.WarningPercent > 0 && pct >= float64(thresholds.WarningPercent):
		state = StateWarning
	}
	if t.metrics != nil && subject.Kind == SubjectGroup {
		t.metrics.QuotaThresholdState.
			WithLabelValues(strconv.FormatInt(subject.ID, 10)).
			Set(stateGaugeValue(state))
	}
	return state, nil
}

func stateGaugeValue(state ThresholdState) float64 {
	switch state {
	case StateAlert:
		return 2
	case StateWarning:
		return 1
	default:
		return 0
	}
}

// usagePercent returns the worse of the daily-token and monthly-cost usage
// percentages. Unlimited dimensions contribute nothing.
func usagePercent(day, month Usage, limits Limits) float64 {
	var pct float64
	if limits.DailyTokens > 0 {
		p := float64(day.Tokens) / float64(limits.DailyTokens) * 100
		if p > pct {
			pct = p
		}
	}
	if limits.MonthlyBudget > 0 {
		p := month.Cost / limits.MonthlyBudget * 100
		if p > pct {
			pct = p
		}
	}
	return pct
}
