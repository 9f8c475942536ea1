package music

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sparkchat/internal/config"
	"sparkchat/internal/usage"
)

type fakeSync struct {
	prompts []string
	// errs is consumed one call at a time; nil entries mean success.
	errs []error
	data TrackData
}

func (f *fakeSync) SubmitAndWait(ctx context.Context, prompt string) (TrackData, error) {
	f.prompts = append(f.prompts, prompt)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return TrackData{}, err
		}
	}
	return f.data, nil
}

type fakeAsync struct {
	statuses  []JobStatus
	pollCalls int
	audio     []byte
}

func (f *fakeAsync) Submit(ctx context.Context, prompt string) (string, error) {
	return "job-1", nil
}

func (f *fakeAsync) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	if f.pollCalls >= len(f.statuses) {
		return JobStatus{State: JobPending}, nil
	}
	status := f.statuses[f.pollCalls]
	f.pollCalls++
	return status, nil
}

func (f *fakeAsync) Download(ctx context.Context, outputRef string) ([]byte, error) {
	if outputRef != "https://cdn.example/audio.mp3" {
		return nil, fmt.Errorf("unexpected output ref %q", outputRef)
	}
	return f.audio, nil
}

func stubPollSleep(t *testing.T) {
	t.Helper()
	orig := pollSleep
	pollSleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { pollSleep = orig })
}

func testBackend(id string) *Backend {
	return &Backend{
		ID:              id,
		MimeType:        "audio/mpeg",
		DurationSeconds: 30,
		PollInterval:    2 * time.Second,
		PollMaxAttempts: 3,
		FilterMarkers:   []string{"flagged", "safety"},
	}
}

func testGate() *usage.Gate {
	return usage.NewGate(config.FreemiumConfig{
		FreeSongsLimit:   5,
		CostPerSongCents: 2,
		PeriodSongLimit:  50,
		PeriodDays:       30,
		UpgradePromptAt:  4,
	})
}

func newTestOrchestrator(t *testing.T, backend *Backend, enhance bool) (*Orchestrator, *usage.Store, int64) {
	t.Helper()
	db := openTestDB(t)
	userID := insertUser(t, db, "alice")
	usageStore := usage.NewStore(db, nil)
	lib := NewLibrary(db, t.TempDir(), 50)
	return NewOrchestrator(backend, testGate(), usageStore, lib, enhance), usageStore, userID
}

func TestGenerateSyncSuccess(t *testing.T) {
	backend := testBackend("stable")
	sync := &fakeSync{data: testTrackData()}
	backend.Sync = sync
	orc, usageStore, userID := newTestOrchestrator(t, backend, true)
	ctx := context.Background()

	result, err := orc.Generate(ctx, userID, "some jazz", false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Track == nil || result.Track.Prompt != "some jazz" {
		t.Fatalf("track keeps the original prompt, got %+v", result.Track)
	}
	if result.PromptUsed == "some jazz" {
		t.Fatalf("prompt should have been enhanced before submission")
	}
	if len(sync.prompts) != 1 || sync.prompts[0] != result.PromptUsed {
		t.Fatalf("backend saw %v, want the enhanced prompt", sync.prompts)
	}
	if result.Stats.GenerationsTotal != 1 || result.Stats.RemainingFree != 4 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}

	rec, err := usageStore.Load(ctx, userID)
	if err != nil {
		t.Fatalf("reload usage: %v", err)
	}
	if rec.GenerationsTotal != 1 {
		t.Fatalf("usage not persisted, got %d", rec.GenerationsTotal)
	}
}

func TestGenerateRawSkipsEnhancement(t *testing.T) {
	backend := testBackend("stable")
	sync := &fakeSync{data: testTrackData()}
	backend.Sync = sync
	orc, _, userID := newTestOrchestrator(t, backend, true)

	result, err := orc.Generate(context.Background(), userID, "some jazz", true)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.PromptUsed != "some jazz" {
		t.Fatalf("raw mode must not rewrite the prompt, got %q", result.PromptUsed)
	}
	if len(sync.prompts) != 1 || sync.prompts[0] != "some jazz" {
		t.Fatalf("backend saw %v", sync.prompts)
	}
}

func TestGenerateDeniedBeforeBackend(t *testing.T) {
	backend := testBackend("stable")
	sync := &fakeSync{data: testTrackData()}
	backend.Sync = sync
	orc, usageStore, userID := newTestOrchestrator(t, backend, true)
	ctx := context.Background()

	rec, err := usageStore.Load(ctx, userID)
	if err != nil {
		t.Fatalf("load usage: %v", err)
	}
	rec.GenerationsTotal = 5
	if err := usageStore.Save(ctx, rec); err != nil {
		t.Fatalf("save usage: %v", err)
	}

	_, err = orc.Generate(ctx, userID, "anything", false)
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if limitErr.Decision.Reason != usage.DenyFreeLimit {
		t.Fatalf("unexpected deny reason %s", limitErr.Decision.Reason)
	}
	if len(sync.prompts) != 0 {
		t.Fatalf("backend must not be touched when denied")
	}
}

func TestGenerateFilterRetryWithOriginal(t *testing.T) {
	backend := testBackend("stable")
	sync := &fakeSync{
		data: testTrackData(),
		errs: []error{errors.New("request rejected by safety system"), nil},
	}
	backend.Sync = sync
	orc, _, userID := newTestOrchestrator(t, backend, true)

	result, err := orc.Generate(context.Background(), userID, "some jazz", false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !result.Retried {
		t.Fatalf("expected a filter retry")
	}
	if result.PromptUsed != "some jazz" {
		t.Fatalf("retry should use the original prompt, got %q", result.PromptUsed)
	}
	if len(sync.prompts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(sync.prompts))
	}
	if sync.prompts[0] == "some jazz" || sync.prompts[1] != "some jazz" {
		t.Fatalf("attempts should be enhanced then original: %v", sync.prompts)
	}
}

func TestGenerateFilteredErrorClassified(t *testing.T) {
	backend := testBackend("stable")
	backend.Sync = &fakeSync{errs: []error{errors.New("content flagged")}}
	orc, usageStore, userID := newTestOrchestrator(t, backend, true)
	ctx := context.Background()

	_, err := orc.Generate(ctx, userID, "anything", true)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Kind != FailureFiltered {
		t.Fatalf("expected filtered kind, got %s", genErr.Kind)
	}

	rec, err := usageStore.Load(ctx, userID)
	if err != nil {
		t.Fatalf("load usage: %v", err)
	}
	if rec.GenerationsTotal != 0 {
		t.Fatalf("failed generation must not be counted")
	}
}

func TestGenerateAsyncSuccess(t *testing.T) {
	stubPollSleep(t)
	backend := testBackend("replicate")
	backend.Async = &fakeAsync{
		statuses: []JobStatus{
			{State: JobPending},
			{State: JobSucceeded, OutputRef: "https://cdn.example/audio.mp3"},
		},
		audio: []byte("async audio"),
	}
	orc, _, userID := newTestOrchestrator(t, backend, false)

	result, err := orc.Generate(context.Background(), userID, "epic theme", false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Track.MimeType != "audio/mpeg" || result.Track.DurationSeconds != 30 {
		t.Fatalf("track metadata should come from the backend config: %+v", result.Track)
	}
}

func TestGenerateAsyncFailure(t *testing.T) {
	stubPollSleep(t)
	backend := testBackend("replicate")
	backend.Async = &fakeAsync{
		statuses: []JobStatus{{State: JobFailed, Reason: "model exploded"}},
	}
	orc, _, userID := newTestOrchestrator(t, backend, false)

	_, err := orc.Generate(context.Background(), userID, "epic theme", false)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Kind != FailureProvider {
		t.Fatalf("expected provider kind, got %s", genErr.Kind)
	}
}

func TestGenerateAsyncTimeout(t *testing.T) {
	stubPollSleep(t)
	backend := testBackend("replicate")
	backend.Async = &fakeAsync{} // never leaves pending
	orc, _, userID := newTestOrchestrator(t, backend, false)

	_, err := orc.Generate(context.Background(), userID, "epic theme", false)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Kind != FailureTimeout {
		t.Fatalf("expected timeout kind, got %s", genErr.Kind)
	}
}

func TestGenerateChargesPastFreeTier(t *testing.T) {
	backend := testBackend("stable")
	backend.Sync = &fakeSync{data: testTrackData()}
	orc, usageStore, userID := newTestOrchestrator(t, backend, false)
	ctx := context.Background()

	rec, err := usageStore.Load(ctx, userID)
	if err != nil {
		t.Fatalf("load usage: %v", err)
	}
	rec.IsPremium = true
	rec.PeriodStartAt = time.Now()
	rec.GenerationsTotal = 5
	if err := usageStore.Save(ctx, rec); err != nil {
		t.Fatalf("save usage: %v", err)
	}

	result, err := orc.Generate(ctx, userID, "a blues jam", false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Track.FreeTier {
		t.Fatalf("sixth track is not free tier")
	}
	if result.Track.CostCents != 2 {
		t.Fatalf("expected 2 cents on the track, got %d", result.Track.CostCents)
	}
	if result.Stats.TotalCostCents != 2 {
		t.Fatalf("expected 2 cents total, got %d", result.Stats.TotalCostCents)
	}
}

func TestGenerateStorageFailureDoesNotConsumeUsage(t *testing.T) {
	backend := testBackend("stable")
	backend.Sync = &fakeSync{data: testTrackData()}

	db := openTestDB(t)
	userID := insertUser(t, db, "alice")
	usageStore := usage.NewStore(db, nil)
	// Point the library at a path that cannot become a directory.
	badBase := writeBlockingFile(t)
	lib := NewLibrary(db, badBase, 50)
	orc := NewOrchestrator(backend, testGate(), usageStore, lib, false)
	ctx := context.Background()

	_, err := orc.Generate(ctx, userID, "anything", false)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Kind != FailureProvider {
		t.Fatalf("expected provider kind, got %s", genErr.Kind)
	}

	rec, err := usageStore.Load(ctx, userID)
	if err != nil {
		t.Fatalf("load usage: %v", err)
	}
	if rec.GenerationsTotal != 0 {
		t.Fatalf("storage failure must not consume a generation, got %d", rec.GenerationsTotal)
	}
}

func writeBlockingFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocking file: %v", err)
	}
	return path
}
