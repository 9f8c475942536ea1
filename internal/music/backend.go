package music

import (
	"context"
	"strings"
	"time"
)

// TrackData is a finished generation: raw audio plus its metadata.
type TrackData struct {
	Bytes           []byte
	MimeType        string
	DurationSeconds int
}

// JobState is the lifecycle of an async generation job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobStatus is one poll observation of an async job.
type JobStatus struct {
	State JobState
	// OutputRef locates the finished audio when State is JobSucceeded.
	OutputRef string
	// Reason carries the backend's failure text when State is JobFailed.
	Reason string
}

// SyncBackend produces audio in a single blocking call.
type SyncBackend interface {
	SubmitAndWait(ctx context.Context, prompt string) (TrackData, error)
}

// AsyncBackend follows the submit, poll, download shape.
type AsyncBackend interface {
	Submit(ctx context.Context, prompt string) (jobID string, err error)
	Poll(ctx context.Context, jobID string) (JobStatus, error)
	Download(ctx context.Context, outputRef string) ([]byte, error)
}

// Backend bundles one configured generation backend with its polling and
// filter-classification parameters. Exactly one of Sync or Async is set.
type Backend struct {
	ID              string
	Sync            SyncBackend
	Async           AsyncBackend
	MimeType        string
	DurationSeconds int
	PollInterval    time.Duration
	PollMaxAttempts int
	// FilterMarkers are substrings of backend error text that indicate a
	// content-filter rejection rather than an operational failure.
	FilterMarkers []string
}

// Filtered reports whether an error reads like a content-filter rejection
// for this backend.
func (b *Backend) Filtered(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range b.FilterMarkers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
