package usage

import (
	"time"

	"sparkchat/internal/config"
	"sparkchat/internal/models"
)

// DenyReason explains a refused generation.
type DenyReason string

const (
	// DenyFreeLimit means the free tier is spent and the account is not premium.
	DenyFreeLimit DenyReason = "free_limit_reached"
	// DenyRenewalDue means the premium period has lapsed and needs renewing.
	DenyRenewalDue DenyReason = "renewal_due"
)

// Decision is the outcome of a generation gate check.
type Decision struct {
	Allowed       bool
	Reason        DenyReason
	RemainingFree int
	PromptUpgrade bool
}

// Stats is the user-facing usage snapshot.
type Stats struct {
	GenerationsTotal int       `json:"generations_total"`
	RemainingFree    int       `json:"remaining_free"`
	IsPremium        bool      `json:"is_premium"`
	SongsThisPeriod  int       `json:"songs_this_period"`
	PeriodStartAt    time.Time `json:"period_start_at,omitempty"`
	TotalCostCents   int       `json:"total_cost_cents"`
	PromptUpgrade    bool      `json:"prompt_upgrade"`
}

// Gate applies the freemium policy. It is pure over the record and clock;
// persistence lives in Store.
type Gate struct {
	cfg config.FreemiumConfig
	now func() time.Time
}

func NewGate(cfg config.FreemiumConfig) *Gate {
	return &Gate{cfg: cfg, now: time.Now}
}

// NewGateAt fixes the clock, for deterministic policy tests.
func NewGateAt(cfg config.FreemiumConfig, now func() time.Time) *Gate {
	return &Gate{cfg: cfg, now: now}
}

// Check decides whether one more generation may start for this record.
func (g *Gate) Check(rec *models.UsageRecord) Decision {
	d := Decision{
		RemainingFree: g.RemainingFree(rec),
		PromptUpgrade: g.ShouldPromptUpgrade(rec),
	}

	if rec.IsPremium {
		if g.NeedsRenewal(rec) {
			d.Reason = DenyRenewalDue
			return d
		}
		d.Allowed = true
		return d
	}

	if rec.GenerationsTotal < g.cfg.FreeSongsLimit {
		d.Allowed = true
		return d
	}

	if g.cfg.AllowWithoutPayment {
		d.Allowed = true
		return d
	}

	d.Reason = DenyFreeLimit
	return d
}

// RecordGeneration applies one successful generation to a copy of the
// record and returns it along with whether this one fell inside the free
// tier. The charge, if any, is based on the count before this generation.
func (g *Gate) RecordGeneration(rec *models.UsageRecord) (models.UsageRecord, bool) {
	updated := *rec
	freeTier := updated.GenerationsTotal < g.cfg.FreeSongsLimit
	if !freeTier {
		updated.TotalCostCents += g.cfg.CostPerSongCents
	}
	updated.GenerationsTotal++
	if updated.IsPremium {
		updated.SongsThisPeriod++
	}
	updated.LastGeneratedAt = g.now()
	return updated, freeTier
}

// NeedsRenewal reports whether a premium record's period has lapsed, by
// age or by song count.
func (g *Gate) NeedsRenewal(rec *models.UsageRecord) bool {
	if !rec.IsPremium {
		return false
	}
	if rec.PeriodStartAt.IsZero() {
		return true
	}
	age := g.now().Sub(rec.PeriodStartAt)
	if age >= time.Duration(g.cfg.PeriodDays)*24*time.Hour {
		return true
	}
	return rec.SongsThisPeriod >= g.cfg.PeriodSongLimit
}

// RemainingFree is how many free-tier generations are left, never negative.
func (g *Gate) RemainingFree(rec *models.UsageRecord) int {
	remaining := g.cfg.FreeSongsLimit - rec.GenerationsTotal
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ShouldPromptUpgrade reports whether the client should surface an upgrade
// nudge: near the end of the free tier but not past it.
func (g *Gate) ShouldPromptUpgrade(rec *models.UsageRecord) bool {
	if rec.IsPremium {
		return false
	}
	return rec.GenerationsTotal >= g.cfg.UpgradePromptAt &&
		rec.GenerationsTotal < g.cfg.FreeSongsLimit
}

// CostCents is the per-song charge applied past the free tier.
func (g *Gate) CostCents() int {
	return g.cfg.CostPerSongCents
}

// Snapshot renders the user-facing stats for a record.
func (g *Gate) Snapshot(rec *models.UsageRecord) Stats {
	return Stats{
		GenerationsTotal: rec.GenerationsTotal,
		RemainingFree:    g.RemainingFree(rec),
		IsPremium:        rec.IsPremium,
		SongsThisPeriod:  rec.SongsThisPeriod,
		PeriodStartAt:    rec.PeriodStartAt,
		TotalCostCents:   rec.TotalCostCents,
		PromptUpgrade:    g.ShouldPromptUpgrade(rec),
	}
}
