package music

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"sparkchat/internal/models"
	"sparkchat/internal/usage"
)

// LimitError is returned before any backend work when the usage gate
// refuses the generation.
type LimitError struct {
	Decision usage.Decision
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("generation not allowed: %s", e.Decision.Reason)
}

// FailureKind classifies a failed generation for the client.
type FailureKind string

const (
	FailureFiltered FailureKind = "filtered"
	FailureProvider FailureKind = "provider"
	FailureTimeout  FailureKind = "timeout"
)

// GenerationError is a failed generation with a user-presentable message.
type GenerationError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *GenerationError) Unwrap() error { return e.Err }

var errGenerationTimeout = errors.New("music generation timed out")

// pollSleep waits between poll attempts. A variable so tests can collapse
// the wait.
var pollSleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Result is a finished generation: the stored track plus the usage
// snapshot after accounting.
type Result struct {
	Track      *models.GeneratedTrack `json:"track"`
	Stats      usage.Stats            `json:"stats"`
	PromptUsed string                 `json:"prompt_used"`
	Retried    bool                   `json:"retried"`
}

// Orchestrator runs one music generation end to end: gate check, prompt
// enhancement, backend call with filter retry, track storage, usage
// accounting, and library eviction.
type Orchestrator struct {
	backend        *Backend
	gate           *usage.Gate
	usageStore     *usage.Store
	library        *Library
	enhancePrompts bool
}

func NewOrchestrator(backend *Backend, gate *usage.Gate, usageStore *usage.Store, library *Library, enhancePrompts bool) *Orchestrator {
	return &Orchestrator{
		backend:        backend,
		gate:           gate,
		usageStore:     usageStore,
		library:        library,
		enhancePrompts: enhancePrompts,
	}
}

// Generate produces one track for the user. useRaw skips prompt
// enhancement entirely. Usage is only recorded after the track is safely
// stored; a storage failure must not consume a generation.
func (o *Orchestrator) Generate(ctx context.Context, userID int64, prompt string, useRaw bool) (*Result, error) {
	rec, err := o.usageStore.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	if dec := o.gate.Check(rec); !dec.Allowed {
		return nil, &LimitError{Decision: dec}
	}

	finalPrompt := prompt
	if !useRaw && o.enhancePrompts {
		finalPrompt = EnhancePrompt(prompt)
	}

	retried := false
	data, runErr := o.run(ctx, finalPrompt)
	if runErr != nil && !useRaw && finalPrompt != prompt && o.backend.Filtered(runErr) {
		log.Printf("backend %s flagged enhanced prompt, retrying with original", o.backend.ID)
		retried = true
		finalPrompt = prompt
		data, runErr = o.run(ctx, finalPrompt)
	}
	if runErr != nil {
		return nil, o.classify(runErr)
	}

	updated, freeTier := o.gate.RecordGeneration(rec)
	costCents := 0
	if !freeTier {
		costCents = o.gate.CostCents()
	}

	track, err := o.library.Save(ctx, userID, prompt, data, freeTier, costCents)
	if err != nil {
		return nil, &GenerationError{
			Kind:    FailureProvider,
			Message: "Generated audio could not be saved. Please try again.",
			Err:     err,
		}
	}

	if err := o.usageStore.Save(ctx, &updated); err != nil {
		// The track is already stored; losing the counter update is the
		// lesser failure. Log and keep going.
		log.Printf("record generation for user %d: %v", userID, err)
	}

	if err := o.library.EnforceLimit(ctx, userID); err != nil {
		log.Printf("enforce library limit for user %d: %v", userID, err)
	}

	return &Result{
		Track:      track,
		Stats:      o.gate.Snapshot(&updated),
		PromptUsed: finalPrompt,
		Retried:    retried,
	}, nil
}

func (o *Orchestrator) run(ctx context.Context, prompt string) (TrackData, error) {
	if o.backend.Sync != nil {
		return o.backend.Sync.SubmitAndWait(ctx, prompt)
	}
	if o.backend.Async == nil {
		return TrackData{}, fmt.Errorf("backend %s has no transport", o.backend.ID)
	}

	jobID, err := o.backend.Async.Submit(ctx, prompt)
	if err != nil {
		return TrackData{}, err
	}

	for attempt := 0; attempt < o.backend.PollMaxAttempts; attempt++ {
		if err := pollSleep(ctx, o.backend.PollInterval); err != nil {
			return TrackData{}, err
		}

		status, err := o.backend.Async.Poll(ctx, jobID)
		if err != nil {
			return TrackData{}, err
		}

		switch status.State {
		case JobSucceeded:
			audio, err := o.backend.Async.Download(ctx, status.OutputRef)
			if err != nil {
				return TrackData{}, err
			}
			return TrackData{
				Bytes:           audio,
				MimeType:        o.backend.MimeType,
				DurationSeconds: o.backend.DurationSeconds,
			}, nil
		case JobFailed:
			return TrackData{}, fmt.Errorf("generation failed: %s", status.Reason)
		}
		// JobPending keeps polling.
	}

	return TrackData{}, errGenerationTimeout
}

func (o *Orchestrator) classify(err error) *GenerationError {
	switch {
	case errors.Is(err, errGenerationTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		timeoutSecs := int(o.backend.PollInterval.Seconds()) * o.backend.PollMaxAttempts
		return &GenerationError{
			Kind:    FailureTimeout,
			Message: fmt.Sprintf("Music generation timed out after %d seconds. Please try again.", timeoutSecs),
			Err:     err,
		}
	case o.backend.Filtered(err):
		return &GenerationError{
			Kind:    FailureFiltered,
			Message: "The AI's content filter flagged your prompt. Try rephrasing it with different words.",
			Err:     err,
		}
	default:
		return &GenerationError{
			Kind:    FailureProvider,
			Message: "Music generation failed. Please try again.",
			Err:     err,
		}
	}
}
