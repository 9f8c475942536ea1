package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"sparkchat/internal/models"
	"sparkchat/internal/redis"
)

const snapshotCacheTTL = 10 * time.Minute

// Store persists usage records. A record is created lazily on first load
// so new users start with a zeroed ledger.
type Store struct {
	db    *sql.DB
	cache *redis.Client
	now   func() time.Time
}

func NewStore(db *sql.DB, cache *redis.Client) *Store {
	return &Store{db: db, cache: cache, now: time.Now}
}

func snapshotKey(userID int64) string {
	return fmt.Sprintf("usage:%d", userID)
}

// Load fetches the user's record, creating an empty one on first use.
func (s *Store) Load(ctx context.Context, userID int64) (*models.UsageRecord, error) {
	rec := &models.UsageRecord{UserID: userID}
	var periodStart, lastGenerated sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT generations_total, is_premium, period_start_at, songs_this_period, total_cost_cents, last_generated_at
		 FROM usage_records WHERE user_id = ?`, userID,
	).Scan(&rec.GenerationsTotal, &rec.IsPremium, &periodStart, &rec.SongsThisPeriod, &rec.TotalCostCents, &lastGenerated)

	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO usage_records (user_id) VALUES (?)`, userID,
		); err != nil {
			return nil, fmt.Errorf("create usage record: %w", err)
		}
		return rec, nil
	case err != nil:
		return nil, fmt.Errorf("load usage record: %w", err)
	}

	if periodStart.Valid {
		rec.PeriodStartAt = periodStart.Time
	}
	if lastGenerated.Valid {
		rec.LastGeneratedAt = lastGenerated.Time
	}
	return rec, nil
}

// Save writes the record back and refreshes the cached snapshot.
func (s *Store) Save(ctx context.Context, rec *models.UsageRecord) error {
	var periodStart, lastGenerated interface{}
	if !rec.PeriodStartAt.IsZero() {
		periodStart = rec.PeriodStartAt
	}
	if !rec.LastGeneratedAt.IsZero() {
		lastGenerated = rec.LastGeneratedAt
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE usage_records
		 SET generations_total = ?, is_premium = ?, period_start_at = ?, songs_this_period = ?, total_cost_cents = ?, last_generated_at = ?
		 WHERE user_id = ?`,
		rec.GenerationsTotal, rec.IsPremium, periodStart, rec.SongsThisPeriod, rec.TotalCostCents, lastGenerated, rec.UserID,
	)
	if err != nil {
		return fmt.Errorf("save usage record: %w", err)
	}

	s.cacheSnapshot(ctx, rec)
	return nil
}

// ActivatePremium flips the record to premium and starts a fresh period.
// Renewing an already premium account uses the same reset.
func (s *Store) ActivatePremium(ctx context.Context, userID int64) (*models.UsageRecord, error) {
	rec, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec.IsPremium = true
	rec.PeriodStartAt = s.now()
	rec.SongsThisPeriod = 0
	if err := s.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) cacheSnapshot(ctx context.Context, rec *models.UsageRecord) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, snapshotKey(rec.UserID), raw, snapshotCacheTTL); err != nil {
		log.Printf("usage snapshot cache failed: %v", err)
	}
}

// CachedSnapshot returns the cached record when present. Callers that need
// authoritative data should use Load.
func (s *Store) CachedSnapshot(ctx context.Context, userID int64) (*models.UsageRecord, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, snapshotKey(userID))
	if err != nil {
		return nil, false
	}
	var rec models.UsageRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false
	}
	return &rec, true
}
