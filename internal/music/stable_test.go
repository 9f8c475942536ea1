package music

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sparkchat/internal/config"
)

func TestStableAudioSubmitAndWait(t *testing.T) {
	var gotPath, gotAccept, gotAuth string
	var gotPrompt, gotFormat, gotDuration string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotPrompt = r.FormValue("prompt")
		gotFormat = r.FormValue("output_format")
		gotDuration = r.FormValue("duration")
		w.Write([]byte("stable audio bytes"))
	}))
	defer srv.Close()

	backend := NewStableAudioBackend(config.MusicBackendConfig{
		BaseURL:         srv.URL,
		APIKey:          "stable-key",
		DurationSeconds: 45,
	})

	data, err := backend.SubmitAndWait(context.Background(), "calm piano piece")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if string(data.Bytes) != "stable audio bytes" {
		t.Fatalf("unexpected audio %q", data.Bytes)
	}
	if data.MimeType != "audio/mpeg" || data.DurationSeconds != 45 {
		t.Fatalf("unexpected track data: %+v", data)
	}

	if gotPath != "/v2beta/audio/stable-audio-2/text-to-audio" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAccept != "audio/*" {
		t.Fatalf("unexpected accept header %q", gotAccept)
	}
	if gotAuth != "Bearer stable-key" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotPrompt != "calm piano piece" || gotFormat != "mp3" || gotDuration != "45" {
		t.Fatalf("unexpected form fields: prompt=%q format=%q duration=%q", gotPrompt, gotFormat, gotDuration)
	}
}

func TestStableAudioClampsDuration(t *testing.T) {
	var gotDuration string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		gotDuration = r.FormValue("duration")
		w.Write([]byte("audio"))
	}))
	defer srv.Close()

	short := NewStableAudioBackend(config.MusicBackendConfig{BaseURL: srv.URL, DurationSeconds: 5})
	if _, err := short.SubmitAndWait(context.Background(), "x"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotDuration != "30" {
		t.Fatalf("short durations clamp to 30, got %s", gotDuration)
	}

	long := NewStableAudioBackend(config.MusicBackendConfig{BaseURL: srv.URL, DurationSeconds: 600})
	if _, err := long.SubmitAndWait(context.Background(), "x"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotDuration != "90" {
		t.Fatalf("long durations clamp to 90, got %s", gotDuration)
	}
}

func TestStableAudioErrorIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":["your prompt was flagged by our content moderation system"]}`))
	}))
	defer srv.Close()

	backend := NewStableAudioBackend(config.MusicBackendConfig{BaseURL: srv.URL})
	_, err := backend.SubmitAndWait(context.Background(), "whatever")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "flagged") {
		t.Fatalf("error should carry the response body: %v", err)
	}
}

func TestStableAudioEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	backend := NewStableAudioBackend(config.MusicBackendConfig{BaseURL: srv.URL})
	if _, err := backend.SubmitAndWait(context.Background(), "whatever"); err == nil {
		t.Fatalf("empty body should be an error")
	}
}
