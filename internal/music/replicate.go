package music

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sparkchat/internal/config"
)

// placeholderLyrics is sent when the user only described a style; the
// model requires a lyrics field.
const placeholderLyrics = `[Verse]
La la la la la
Oh oh oh oh oh
Yeah yeah yeah yeah

[Chorus]
La la la la la
Oh oh oh oh oh
Yeah yeah yeah yeah

[Verse]
La la la la la
Oh oh oh oh oh
Yeah yeah yeah yeah

[Chorus]
La la la la la
Oh oh oh oh oh
Yeah yeah yeah yeah`

const defaultStyle = "Pop, catchy melody, modern production"

// ReplicateBackend drives a Replicate-hosted music model through its
// async predictions API: create a prediction, poll it, download the output.
type ReplicateBackend struct {
	baseURL        string
	model          string
	apiKey         string
	maxLyricsChars int
	httpClient     *http.Client
}

func NewReplicateBackend(cfg config.MusicBackendConfig, maxLyricsChars int) *ReplicateBackend {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	return &ReplicateBackend{
		baseURL:        strings.TrimRight(baseURL, "/"),
		model:          cfg.Model,
		apiKey:         cfg.APIKey,
		maxLyricsChars: maxLyricsChars,
		httpClient:     &http.Client{Timeout: 120 * time.Second},
	}
}

// splitPrompt separates lyrics from style. The wire format is
// "lyrics|style"; a single segment is classified by shape: section tags,
// multiple lines, or length mean lyrics, anything else is a style
// description.
func splitPrompt(prompt string) (lyrics, style string) {
	parts := strings.SplitN(strings.TrimSpace(prompt), "|", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}

	single := strings.TrimSpace(parts[0])
	lower := strings.ToLower(single)
	hasStructure := strings.Contains(lower, "[verse]") ||
		strings.Contains(lower, "[chorus]") ||
		strings.Contains(lower, "[bridge]")
	lines := strings.Count(single, "\n") + 1
	hasMultipleLines := lines >= 4
	hasNewlines := strings.Contains(single, "\n")
	isLongText := len(single) > 100

	if hasStructure || (hasMultipleLines && hasNewlines) || isLongText {
		return single, ""
	}
	return "", single
}

// Submit creates a prediction and returns its id.
func (r *ReplicateBackend) Submit(ctx context.Context, prompt string) (string, error) {
	lyrics, style := splitPrompt(prompt)
	if lyrics == "" {
		lyrics = placeholderLyrics
	} else if r.maxLyricsChars > 0 && len(lyrics) > r.maxLyricsChars {
		lyrics = lyrics[:r.maxLyricsChars]
	}
	if style == "" {
		style = defaultStyle
	}

	body, err := json.Marshal(map[string]interface{}{
		"input": map[string]string{
			"lyrics": lyrics,
			"prompt": style,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal prediction request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s/predictions", r.baseURL, r.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create prediction: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read prediction response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("create prediction: %s: %s", resp.Status, respBody)
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode prediction response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("prediction response missing id")
	}
	return parsed.ID, nil
}

// Poll fetches the prediction's status once.
func (r *ReplicateBackend) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	url := fmt.Sprintf("%s/predictions/%s", r.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return JobStatus{}, err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return JobStatus{}, fmt.Errorf("check prediction: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return JobStatus{}, fmt.Errorf("read prediction status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return JobStatus{}, fmt.Errorf("check prediction: %s: %s", resp.Status, respBody)
	}

	var parsed struct {
		Status string          `json:"status"`
		Output json.RawMessage `json:"output"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return JobStatus{}, fmt.Errorf("decode prediction status: %w", err)
	}

	switch parsed.Status {
	case "succeeded":
		outputURL := extractOutputURL(parsed.Output)
		if outputURL == "" {
			return JobStatus{State: JobFailed, Reason: "no output URL in response"}, nil
		}
		return JobStatus{State: JobSucceeded, OutputRef: outputURL}, nil
	case "failed", "canceled":
		reason := parsed.Error
		if reason == "" {
			reason = "unknown error"
		}
		return JobStatus{State: JobFailed, Reason: reason}, nil
	default:
		// starting, processing, or anything unrecognized keeps waiting.
		return JobStatus{State: JobPending}, nil
	}
}

// extractOutputURL handles both output shapes: a bare string or an array
// of URLs.
func extractOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

// Download fetches the finished audio bytes.
func (r *ReplicateBackend) Download(ctx context.Context, outputRef string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outputRef, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download audio: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
