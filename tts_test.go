package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func testSynthesizer(t *testing.T) *Synthesizer {
	t.Helper()
	return NewSynthesizer(&Env{
		ElevenLabsAPIKey:  "key-123",
		ElevenLabsVoiceID: "voice-9",
		ElevenLabsModelID: "eleven_multilingual_v2",
		Stability:         0.6,
		Similarity:        0.85,
		Speed:             1.12,
		SpeakerBoost:      true,
	}, t.TempDir(), testLogger(t))
}

func TestSynthesize(t *testing.T) {
	var gotAuth string
	var gotReq ttsRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("xi-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if !strings.Contains(r.URL.Path, "voice-9") {
			t.Errorf("voice id missing from path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("fake-mp3-bytes"))
	}))
	defer server.Close()

	s := testSynthesizer(t)
	// Redirect the provider base at the test server via a request rewrite.
	s.client = &http.Client{Transport: rewriteHost(nil, server.URL)}

	path, err := s.Synthesize(context.Background(), "abc12345", "A script long enough to synthesize without complaint.")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if string(data) != "fake-mp3-bytes" {
		t.Errorf("output content: %q", data)
	}
	if !strings.HasSuffix(path, "abc12345.mp3") {
		t.Errorf("output path should be named after the project: %q", path)
	}

	if gotAuth != "key-123" {
		t.Errorf("api key header = %q", gotAuth)
	}
	if gotReq.ModelID != "eleven_multilingual_v2" {
		t.Errorf("model id = %q", gotReq.ModelID)
	}
	if gotReq.VoiceSettings.Stability != 0.6 || !gotReq.VoiceSettings.UseSpeakerBoost {
		t.Errorf("voice settings not forwarded: %+v", gotReq.VoiceSettings)
	}
}

func TestSynthesizeProviderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	s := testSynthesizer(t)
	s.client = &http.Client{Transport: rewriteHost(nil, server.URL)}

	_, err := s.Synthesize(context.Background(), "abc12345", "A script long enough to synthesize without complaint.")

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if !strings.Contains(provErr.Error(), "quota exceeded") {
		t.Errorf("provider detail lost: %v", provErr)
	}
}

func TestSynthesizeRejectsPlaceholder(t *testing.T) {
	s := testSynthesizer(t)

	for _, script := range []string{"", PlaceholderScript} {
		_, err := s.Synthesize(context.Background(), "abc12345", script)
		var provErr *ProviderError
		if !errors.As(err, &provErr) {
			t.Errorf("script %q: expected *ProviderError, got %v", script, err)
		}
	}
}

// rewriteHost redirects requests for the real provider host to the test
// server so the production URL constant stays untouched.
func rewriteHost(base http.RoundTripper, target string) http.RoundTripper {
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		rewritten, err := http.NewRequestWithContext(r.Context(), r.Method, target+r.URL.Path+"?"+r.URL.RawQuery, r.Body)
		if err != nil {
			return nil, err
		}
		rewritten.Header = r.Header
		if base == nil {
			base = http.DefaultTransport
		}
		return base.RoundTrip(rewritten)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
