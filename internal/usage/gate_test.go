package usage

import (
	"testing"
	"time"

	"sparkchat/internal/config"
	"sparkchat/internal/models"
)

func testFreemiumConfig() config.FreemiumConfig {
	return config.FreemiumConfig{
		FreeSongsLimit:   5,
		CostPerSongCents: 2,
		PeriodSongLimit:  50,
		PeriodDays:       30,
		UpgradePromptAt:  4,
	}
}

var gateClock = func() time.Time {
	return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
}

func TestCheckFreeTier(t *testing.T) {
	g := NewGateAt(testFreemiumConfig(), gateClock)

	rec := &models.UsageRecord{UserID: 1}
	d := g.Check(rec)
	if !d.Allowed {
		t.Fatalf("fresh account should be allowed")
	}
	if d.RemainingFree != 5 {
		t.Fatalf("expected 5 remaining, got %d", d.RemainingFree)
	}

	rec.GenerationsTotal = 5
	d = g.Check(rec)
	if d.Allowed {
		t.Fatalf("spent free tier should be denied")
	}
	if d.Reason != DenyFreeLimit {
		t.Fatalf("expected reason %s, got %s", DenyFreeLimit, d.Reason)
	}
	if d.RemainingFree != 0 {
		t.Fatalf("expected 0 remaining, got %d", d.RemainingFree)
	}
}

func TestCheckAllowWithoutPayment(t *testing.T) {
	cfg := testFreemiumConfig()
	cfg.AllowWithoutPayment = true
	g := NewGateAt(cfg, gateClock)

	rec := &models.UsageRecord{UserID: 1, GenerationsTotal: 99}
	if d := g.Check(rec); !d.Allowed {
		t.Fatalf("AllowWithoutPayment should bypass the free limit")
	}
}

func TestCheckPremiumRenewal(t *testing.T) {
	g := NewGateAt(testFreemiumConfig(), gateClock)

	rec := &models.UsageRecord{
		UserID:        1,
		IsPremium:     true,
		PeriodStartAt: gateClock().Add(-24 * time.Hour),
	}
	if d := g.Check(rec); !d.Allowed {
		t.Fatalf("active premium should be allowed")
	}

	rec.PeriodStartAt = gateClock().Add(-31 * 24 * time.Hour)
	if d := g.Check(rec); d.Allowed || d.Reason != DenyRenewalDue {
		t.Fatalf("lapsed period should deny with renewal_due, got %+v", d)
	}

	rec.PeriodStartAt = gateClock().Add(-24 * time.Hour)
	rec.SongsThisPeriod = 50
	if d := g.Check(rec); d.Allowed || d.Reason != DenyRenewalDue {
		t.Fatalf("song cap should deny with renewal_due, got %+v", d)
	}

	rec.SongsThisPeriod = 0
	rec.PeriodStartAt = time.Time{}
	if d := g.Check(rec); d.Allowed || d.Reason != DenyRenewalDue {
		t.Fatalf("premium with no period start should deny with renewal_due, got %+v", d)
	}
}

func TestRecordGenerationChargesPastFreeTier(t *testing.T) {
	g := NewGateAt(testFreemiumConfig(), gateClock)

	rec := models.UsageRecord{UserID: 1, GenerationsTotal: 4}
	updated, freeTier := g.RecordGeneration(&rec)
	if !freeTier {
		t.Fatalf("fifth song is still free")
	}
	if updated.GenerationsTotal != 5 || updated.TotalCostCents != 0 {
		t.Fatalf("unexpected record after free generation: %+v", updated)
	}
	if rec.GenerationsTotal != 4 {
		t.Fatalf("RecordGeneration must not mutate its input")
	}

	updated2, freeTier := g.RecordGeneration(&updated)
	if freeTier {
		t.Fatalf("sixth song is past the free tier")
	}
	if updated2.TotalCostCents != 2 {
		t.Fatalf("expected 2 cents charged, got %d", updated2.TotalCostCents)
	}
	if !updated2.LastGeneratedAt.Equal(gateClock()) {
		t.Fatalf("LastGeneratedAt not stamped")
	}
}

func TestRecordGenerationCountsPremiumSongs(t *testing.T) {
	g := NewGateAt(testFreemiumConfig(), gateClock)

	rec := models.UsageRecord{UserID: 1, IsPremium: true, GenerationsTotal: 10, SongsThisPeriod: 3}
	updated, _ := g.RecordGeneration(&rec)
	if updated.SongsThisPeriod != 4 {
		t.Fatalf("expected SongsThisPeriod 4, got %d", updated.SongsThisPeriod)
	}
}

func TestShouldPromptUpgrade(t *testing.T) {
	g := NewGateAt(testFreemiumConfig(), gateClock)

	cases := []struct {
		total   int
		premium bool
		want    bool
	}{
		{0, false, false},
		{3, false, false},
		{4, false, true},
		{5, false, false},
		{4, true, false},
	}
	for _, tc := range cases {
		rec := &models.UsageRecord{GenerationsTotal: tc.total, IsPremium: tc.premium}
		if got := g.ShouldPromptUpgrade(rec); got != tc.want {
			t.Fatalf("total=%d premium=%v: got %v, want %v", tc.total, tc.premium, got, tc.want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	g := NewGateAt(testFreemiumConfig(), gateClock)

	rec := &models.UsageRecord{UserID: 1, GenerationsTotal: 4, TotalCostCents: 0}
	s := g.Snapshot(rec)
	if s.GenerationsTotal != 4 || s.RemainingFree != 1 || !s.PromptUpgrade {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
}
