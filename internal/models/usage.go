package models

import "time"

// UsageRecord holds per-user freemium accounting. Created at first use,
// mutated after every successful generation, reset but never deleted.
type UsageRecord struct {
	UserID           int64     `json:"user_id"`
	GenerationsTotal int       `json:"generations_total"`
	IsPremium        bool      `json:"is_premium"`
	PeriodStartAt    time.Time `json:"period_start_at"`
	SongsThisPeriod  int       `json:"songs_this_period"`
	TotalCostCents   int       `json:"total_cost_cents"`
	LastGeneratedAt  time.Time `json:"last_generated_at"`
}
