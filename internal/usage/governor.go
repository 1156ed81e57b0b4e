package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/Domusgpt/parserator-sub000/internal/logger"
)

// Denial reasons, in enforcement order. ReasonUnavailable is the fail-closed
// outcome when the counter store itself cannot be consulted.
const (
	ReasonRPM         = "rpm_limit_exceeded"
	ReasonDaily       = "daily_limit_exceeded"
	ReasonMonthly     = "monthly_limit_exceeded"
	ReasonTokens      = "token_limit_exceeded"
	ReasonUnavailable = "quota_store_unavailable"
)

// QuotaError reports a denied admission.
type QuotaError struct {
	Reason     string
	Subject    string
	Tier       string
	Limit      int64
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	if e.Reason == ReasonUnavailable {
		return fmt.Sprintf("usage check unavailable for %s", e.Subject)
	}
	return fmt.Sprintf("%s for %s (tier %s, limit %d)", e.Reason, e.Subject, e.Tier, e.Limit)
}

// Snapshot reports a subject's current consumption against its tier.
type Snapshot struct {
	Subject       string `json:"subject"`
	Tier          string `json:"tier"`
	MinuteCount   int64  `json:"minuteCount"`
	DailyCount    int64  `json:"dailyCount"`
	MonthlyCount  int64  `json:"monthlyCount"`
	MonthlyTokens int64  `json:"monthlyTokens"`
	Limits        Tier   `json:"limits"`
}

// Governor enforces tier limits against a counter store. Admission runs
// before orchestration; consumption is recorded after the response.
type Governor struct {
	store Store
	tiers map[string]Tier
	now   func() time.Time
}

// GovernorOption configures the Governor.
type GovernorOption func(*Governor)

// WithTiers replaces the built-in tier table.
func WithTiers(tiers map[string]Tier) GovernorOption {
	return func(g *Governor) { g.tiers = tiers }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) GovernorOption {
	return func(g *Governor) { g.now = now }
}

// NewGovernor creates a Governor backed by the given store.
func NewGovernor(store Store, opts ...GovernorOption) *Governor {
	g := &Governor{
		store: store,
		tiers: BuiltinTiers(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TierFor resolves a tier name, falling back to anonymous for unknown names.
func (g *Governor) TierFor(name string) Tier {
	if tier, ok := g.tiers[name]; ok {
		return tier
	}
	return g.tiers[TierAnonymous]
}

// Admit checks a subject against its tier limits in order RPM, daily,
// monthly, tokens; the first failing dimension determines the denial. The
// RPM counter is incremented as part of the check; daily/monthly/token
// counters are read here and incremented later via Record. Store errors
// deny the request: quota enforcement fails closed.
func (g *Governor) Admit(ctx context.Context, subject, tierName string) *QuotaError {
	tier := g.TierFor(tierName)
	now := g.now().UTC()

	if tier.RPMLimit != Unlimited {
		allowed, err := g.store.IncrementIfBelow(ctx, minuteKey(subject, now), tier.RPMLimit)
		if err != nil {
			return g.unavailable(subject, tier, err)
		}
		if !allowed {
			return g.deny(subject, tier, ReasonRPM, tier.RPMLimit, untilNextMinute(now))
		}
	}

	if tier.DailyLimit != Unlimited {
		count, err := g.store.Get(ctx, dayKey(subject, now))
		if err != nil {
			return g.unavailable(subject, tier, err)
		}
		if count >= tier.DailyLimit {
			return g.deny(subject, tier, ReasonDaily, tier.DailyLimit, untilNextDay(now))
		}
	}

	if tier.MonthlyLimit != Unlimited {
		count, err := g.store.Get(ctx, monthKey(subject, now))
		if err != nil {
			return g.unavailable(subject, tier, err)
		}
		if count >= tier.MonthlyLimit {
			return g.deny(subject, tier, ReasonMonthly, tier.MonthlyLimit, untilNextMonth(now))
		}
	}

	if tier.TokenMonthlyLimit != Unlimited {
		tokens, err := g.store.Get(ctx, tokenKey(subject, now))
		if err != nil {
			return g.unavailable(subject, tier, err)
		}
		if tokens >= tier.TokenMonthlyLimit {
			return g.deny(subject, tier, ReasonTokens, tier.TokenMonthlyLimit, untilNextMonth(now))
		}
	}

	return nil
}

// Record accumulates one completed request and its token spend. It runs off
// the response path, so failures are logged rather than surfaced.
func (g *Governor) Record(ctx context.Context, subject string, tokensUsed int) {
	now := g.now().UTC()

	increments := []struct {
		key   string
		delta int64
	}{
		{dayKey(subject, now), 1},
		{monthKey(subject, now), 1},
		{tokenKey(subject, now), int64(tokensUsed)},
	}
	for _, inc := range increments {
		if inc.delta == 0 {
			continue
		}
		if err := g.store.IncrementBy(ctx, inc.key, inc.delta); err != nil {
			logger.Error("failed to record usage", "subject", subject, "key", inc.key, "error", err)
		}
	}
}

// Usage reports current consumption for a subject.
func (g *Governor) Usage(ctx context.Context, subject, tierName string) (Snapshot, error) {
	tier := g.TierFor(tierName)
	now := g.now().UTC()

	snap := Snapshot{Subject: subject, Tier: tier.Name, Limits: tier}
	reads := []struct {
		key  string
		dest *int64
	}{
		{minuteKey(subject, now), &snap.MinuteCount},
		{dayKey(subject, now), &snap.DailyCount},
		{monthKey(subject, now), &snap.MonthlyCount},
		{tokenKey(subject, now), &snap.MonthlyTokens},
	}
	for _, r := range reads {
		value, err := g.store.Get(ctx, r.key)
		if err != nil {
			return Snapshot{}, fmt.Errorf("reading usage for %s: %w", subject, err)
		}
		*r.dest = value
	}
	return snap, nil
}

func (g *Governor) deny(subject string, tier Tier, reason string, limit int64, retryAfter time.Duration) *QuotaError {
	logger.Warn("request denied by usage governor",
		"subject", subject,
		"tier", tier.Name,
		"reason", reason,
		"limit", limit)
	return &QuotaError{
		Reason:     reason,
		Subject:    subject,
		Tier:       tier.Name,
		Limit:      limit,
		RetryAfter: retryAfter,
	}
}

func (g *Governor) unavailable(subject string, tier Tier, err error) *QuotaError {
	logger.Error("quota store unavailable, denying request", "subject", subject, "error", err)
	return &QuotaError{
		Reason:     ReasonUnavailable,
		Subject:    subject,
		Tier:       tier.Name,
		RetryAfter: 30 * time.Second,
	}
}

func minuteKey(subject string, now time.Time) string {
	return fmt.Sprintf("rpm:%s:%s", subject, now.Format("200601021504"))
}

func dayKey(subject string, now time.Time) string {
	return fmt.Sprintf("daily:%s:%s", subject, now.Format("2006-01-02"))
}

func monthKey(subject string, now time.Time) string {
	return fmt.Sprintf("monthly:%s:%s", subject, now.Format("2006-01"))
}

func tokenKey(subject string, now time.Time) string {
	return fmt.Sprintf("tokens:%s:%s", subject, now.Format("2006-01"))
}

func untilNextMinute(now time.Time) time.Duration {
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

func untilNextDay(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return next.Sub(now)
}

func untilNextMonth(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return next.Sub(now)
}
