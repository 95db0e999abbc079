package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

// voiceSettings mirrors the provider's voice_settings payload.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	Speed           float64 `json:"speed"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesizer turns project scripts into mp3 files through the ElevenLabs
// text-to-speech API.
type Synthesizer struct {
	apiKey   string
	voiceID  string
	modelID  string
	settings voiceSettings
	tempDir  string
	client   *http.Client
	log      *zap.SugaredLogger
}

func NewSynthesizer(env *Env, tempDir string, log *zap.SugaredLogger) *Synthesizer {
	return &Synthesizer{
		apiKey:  env.ElevenLabsAPIKey,
		voiceID: env.ElevenLabsVoiceID,
		modelID: env.ElevenLabsModelID,
		settings: voiceSettings{
			Stability:       env.Stability,
			SimilarityBoost: env.Similarity,
			Style:           env.Style,
			Speed:           env.Speed,
			UseSpeakerBoost: env.SpeakerBoost,
		},
		tempDir: tempDir,
		client:  &http.Client{Timeout: 2 * time.Minute},
		log:     log,
	}
}

// Synthesize generates speech for the script and writes it to
// {tempDir}/{projectID}.mp3, returning the file path. Provider failures come
// back as *ProviderError so callers can record them without guessing.
func (s *Synthesizer) Synthesize(ctx context.Context, projectID, script string) (string, error) {
	if script == "" || script == PlaceholderScript {
		return "", &ProviderError{Provider: "elevenlabs", Err: fmt.Errorf("no usable script for project %s", projectID)}
	}

	body, err := json.Marshal(ttsRequest{
		Text:          script,
		ModelID:       s.modelID,
		VoiceSettings: s.settings,
	})
	if err != nil {
		return "", &ProviderError{Provider: "elevenlabs", Err: err}
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=mp3_44100_192", elevenLabsBaseURL, s.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: "elevenlabs", Err: err}
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	s.log.Infow("requesting speech synthesis", "project", projectID, "chars", len(script))

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: "elevenlabs", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &ProviderError{
			Provider: "elevenlabs",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(detail)),
		}
	}

	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return "", err
	}
	outPath := filepath.Join(s.tempDir, projectID+".mp3")
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}

	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(outPath)
		return "", &ProviderError{Provider: "elevenlabs", Err: copyErr}
	}
	if closeErr != nil {
		os.Remove(outPath)
		return "", closeErr
	}
	if n == 0 {
		os.Remove(outPath)
		return "", &ProviderError{Provider: "elevenlabs", Err: fmt.Errorf("empty audio response")}
	}

	s.log.Infow("audio generated", "project", projectID, "path", outPath, "bytes", n)
	return outPath, nil
}
