package music

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sparkchat/internal/config"
)

// StableAudioBackend calls the Stability AI text-to-audio endpoint, which
// returns the finished audio in a single blocking response.
type StableAudioBackend struct {
	baseURL         string
	apiKey          string
	durationSeconds int
	httpClient      *http.Client
}

func NewStableAudioBackend(cfg config.MusicBackendConfig) *StableAudioBackend {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.stability.ai"
	}
	return &StableAudioBackend{
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiKey:          cfg.APIKey,
		durationSeconds: cfg.DurationSeconds,
		httpClient:      &http.Client{Timeout: 180 * time.Second},
	}
}

// SubmitAndWait generates audio in one call.
func (s *StableAudioBackend) SubmitAndWait(ctx context.Context, prompt string) (TrackData, error) {
	// The endpoint accepts 30-90 second durations.
	duration := s.durationSeconds
	if duration < 30 {
		duration = 30
	}
	if duration > 90 {
		duration = 90
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("prompt", prompt); err != nil {
		return TrackData{}, fmt.Errorf("build form: %w", err)
	}
	if err := form.WriteField("output_format", "mp3"); err != nil {
		return TrackData{}, fmt.Errorf("build form: %w", err)
	}
	if err := form.WriteField("duration", strconv.Itoa(duration)); err != nil {
		return TrackData{}, fmt.Errorf("build form: %w", err)
	}
	if err := form.Close(); err != nil {
		return TrackData{}, fmt.Errorf("build form: %w", err)
	}

	url := s.baseURL + "/v2beta/audio/stable-audio-2/text-to-audio"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return TrackData{}, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "audio/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return TrackData{}, fmt.Errorf("stable audio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return TrackData{}, fmt.Errorf("stable audio: %s: %s", resp.Status, errBody)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return TrackData{}, fmt.Errorf("read audio body: %w", err)
	}
	if len(audio) == 0 {
		return TrackData{}, fmt.Errorf("stable audio returned empty body")
	}

	return TrackData{
		Bytes:           audio,
		MimeType:        "audio/mpeg",
		DurationSeconds: duration,
	}, nil
}
