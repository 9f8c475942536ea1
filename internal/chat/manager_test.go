package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sparkchat/internal/config"
	"sparkchat/internal/music"
	"sparkchat/internal/usage"
)

type blockingSync struct {
	release chan struct{}
}

func (b *blockingSync) SubmitAndWait(ctx context.Context, prompt string) (music.TrackData, error) {
	<-b.release
	return music.TrackData{Bytes: []byte("audio"), MimeType: "audio/mpeg", DurationSeconds: 30}, nil
}

func newTestManager(t *testing.T, fp *fakeProvider, sb *blockingSync) (*Manager, int64) {
	t.Helper()
	db := openTestDB(t)
	userID := insertUser(t, db, "alice")

	orc, _, _ := newTestOrchestrator(t, fp)

	backend := &music.Backend{ID: "stable", Sync: sb, MimeType: "audio/mpeg", DurationSeconds: 30}
	gate := usage.NewGate(config.FreemiumConfig{FreeSongsLimit: 5, CostPerSongCents: 2, PeriodSongLimit: 50, PeriodDays: 30, UpgradePromptAt: 4})
	musicOrc := music.NewOrchestrator(backend, gate, usage.NewStore(db, nil), music.NewLibrary(db, t.TempDir(), 50), false)

	return NewManager(orc, musicOrc), userID
}

func TestRunTurnRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	fp := &fakeProvider{replies: map[string]string{"gemini": "slow reply"}, release: release}
	orc, _, userID := newTestOrchestrator(t, fp)
	m := NewManager(orc, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer wg.Done()
		close(started)
		if _, err := m.RunTurn(ctx, TurnInput{UserID: userID, PersonalityID: "default", Content: "first"}); err != nil {
			t.Errorf("first turn: %v", err)
		}
	}()

	<-started
	// Wait for the first turn to reach the provider and hold the slot.
	for {
		m.mu.Lock()
		busy := m.turnBusy[turnKey{userID: userID, personalityID: "default"}]
		m.mu.Unlock()
		if busy {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, err := m.RunTurn(ctx, TurnInput{UserID: userID, PersonalityID: "default", Content: "second"})
	if !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight, got %v", err)
	}

	close(release)
	wg.Wait()

	// The slot frees up once the first turn completes.
	if _, err := m.RunTurn(ctx, TurnInput{UserID: userID, PersonalityID: "default", Content: "third"}); err != nil {
		t.Fatalf("turn after release: %v", err)
	}
}

func TestRunMusicRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	m, userID := newTestManager(t, &fakeProvider{replies: map[string]string{}}, &blockingSync{release: release})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := m.RunMusic(ctx, userID, "calm piano", false); err != nil {
			t.Errorf("first generation: %v", err)
		}
	}()

	for {
		m.mu.Lock()
		busy := m.musicBusy[userID]
		m.mu.Unlock()
		if busy {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, err := m.RunMusic(ctx, userID, "another", false)
	if !errors.Is(err, ErrMusicInFlight) {
		t.Fatalf("expected ErrMusicInFlight, got %v", err)
	}

	close(release)
	wg.Wait()
}
