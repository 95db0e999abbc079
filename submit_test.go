package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

func writeTempAudio(t *testing.T, name string, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func TestValidateAudioFile(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		size     int64
		wantErr  bool
	}{
		{"valid mp3", "take.mp3", 4 << 20, false},
		{"valid wav", "take.wav", 40 << 20, false},
		{"uppercase extension accepted", "TAKE.MP3", 1 << 20, false},
		{"at the size limit", "big.mp3", 100 << 20, false},
		{"over the size limit", "huge.mp3", 150 << 20, true},
		{"wrong extension", "take.flac", 1 << 20, true},
		{"no extension", "take", 1 << 20, true},
		{"empty file", "empty.mp3", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempAudio(t, tt.fileName, tt.size)
			err := validateAudioFile(path)

			if tt.wantErr {
				var invalid *InvalidFileError
				if !errors.As(err, &invalid) {
					t.Fatalf("expected *InvalidFileError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateAudioFileMissing(t *testing.T) {
	err := validateAudioFile(filepath.Join(t.TempDir(), "nope.mp3"))
	var invalid *InvalidFileError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidFileError for missing file, got %v", err)
	}
}

func TestPickBudgetLayout(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  budgetLayout
	}{
		{"quote layout", "Client is looking for a quote", layoutQuote},
		{"quote layout uppercase", "LOOKING FOR A QUOTE", layoutQuote},
		{"zero budget", "Budget: $0", layoutZeroBudget},
		{"bare zero", "0", layoutZeroBudget},
		{"missing label defaults to zero budget", "", layoutZeroBudget},
		{"unrecognized label defaults to zero budget", "$250 - $500", layoutZeroBudget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pickBudgetLayout(tt.label); got != tt.want {
				t.Errorf("pickBudgetLayout(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}

func TestMatchesUploadResponse(t *testing.T) {
	tests := []struct {
		name  string
		entry NetworkEntry
		want  bool
	}{
		{
			name:  "assembly response with 2xx",
			entry: NetworkEntry{URL: "https://api.voice123.com/upload/assembly/123", Status: 200},
			want:  true,
		},
		{
			name:  "offer update with 204",
			entry: NetworkEntry{URL: "https://api.voice123.com/offers/9", Status: 204},
			want:  true,
		},
		{
			name:  "proposal post request before response arrives",
			entry: NetworkEntry{URL: "https://api.voice123.com/proposal", Method: "POST"},
			want:  true,
		},
		{
			name:  "offer patch request",
			entry: NetworkEntry{URL: "https://api.voice123.com/offers/9", Method: "PATCH"},
			want:  true,
		},
		{
			name:  "matching url but server error",
			entry: NetworkEntry{URL: "https://api.voice123.com/upload", Status: 500},
			want:  false,
		},
		{
			name:  "matching url but plain GET request",
			entry: NetworkEntry{URL: "https://api.voice123.com/offers/9", Method: "GET"},
			want:  false,
		},
		{
			name:  "unrelated analytics call",
			entry: NetworkEntry{URL: "https://analytics.example.com/track", Status: 200},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesUploadResponse(tt.entry); got != tt.want {
				t.Errorf("matchesUploadResponse(%+v) = %v, want %v", tt.entry, got, tt.want)
			}
		})
	}
}

func TestAudioMIME(t *testing.T) {
	if got := audioMIME("take.wav"); got != "audio/wav" {
		t.Errorf("wav mime = %q", got)
	}
	if got := audioMIME("take.mp3"); got != "audio/mpeg" {
		t.Errorf("mp3 mime = %q", got)
	}
	if got := audioMIME("take.WAV"); got != "audio/wav" {
		t.Errorf("uppercase wav mime = %q", got)
	}
}

func TestSubmitWithFormatRetry(t *testing.T) {
	tests := []struct {
		name           string
		startFormat    string
		submitResults  []error
		transcodeErr   error
		wantSubmits    int
		wantTranscodes int
		wantRetryAsMP3 bool
		wantErr        error
	}{
		{
			name:           "wav rejection retried once as mp3",
			startFormat:    "wav",
			submitResults:  []error{errFormatRejected, nil},
			wantSubmits:    2,
			wantTranscodes: 1,
			wantRetryAsMP3: true,
		},
		{
			name:           "wav rejected twice gives up",
			startFormat:    "wav",
			submitResults:  []error{errFormatRejected, errFormatRejected},
			wantSubmits:    2,
			wantTranscodes: 1,
			wantRetryAsMP3: true,
			wantErr:        ErrSubmissionUnconfirmed,
		},
		{
			name:          "mp3 rejection is not retried",
			startFormat:   "mp3",
			submitResults: []error{errFormatRejected},
			wantSubmits:   1,
			wantErr:       ErrSubmissionUnconfirmed,
		},
		{
			name:          "unconfirmed outcome is not retried",
			startFormat:   "wav",
			submitResults: []error{ErrSubmissionUnconfirmed},
			wantSubmits:   1,
			wantErr:       ErrSubmissionUnconfirmed,
		},
		{
			name:           "fallback transcode failure surfaces as unconfirmed",
			startFormat:    "wav",
			submitResults:  []error{errFormatRejected},
			transcodeErr:   errors.New("ffmpeg exploded"),
			wantSubmits:    1,
			wantTranscodes: 1,
			wantErr:        ErrSubmissionUnconfirmed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var submitFormats []string
			var transcodes int

			u := &Uploader{log: zap.NewNop().Sugar()}
			u.submitOnce = func(_ context.Context, _ *rod.Page, a *uploadAttempt) error {
				submitFormats = append(submitFormats, a.format)
				return tt.submitResults[len(submitFormats)-1]
			}
			u.toFormat = func(_ context.Context, path, format string) (string, error) {
				transcodes++
				if tt.transcodeErr != nil {
					return "", tt.transcodeErr
				}
				return path + "." + format, nil
			}

			attempt := &uploadAttempt{filePath: "/tmp/take." + tt.startFormat, format: tt.startFormat}
			err := u.submitWithFormatRetry(context.Background(), nil, attempt)

			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if len(submitFormats) != tt.wantSubmits {
				t.Errorf("submit attempts = %d, want %d", len(submitFormats), tt.wantSubmits)
			}
			if transcodes != tt.wantTranscodes {
				t.Errorf("transcodes = %d, want %d", transcodes, tt.wantTranscodes)
			}
			if tt.wantRetryAsMP3 {
				if submitFormats[len(submitFormats)-1] != "mp3" {
					t.Errorf("retry format = %q, want mp3", submitFormats[len(submitFormats)-1])
				}
				if len(attempt.tempFiles) != 1 {
					t.Errorf("temp files = %d, want the fallback mp3 tracked for cleanup", len(attempt.tempFiles))
				}
			}
		})
	}
}

func TestRaceOutcomeFirstSignalWins(t *testing.T) {
	signals := make(chan outcomeSignal, 8)
	signals <- outcomeSignal{kind: outcomeNetworkMatch, detail: "https://api.voice123.com/upload"}
	signals <- outcomeSignal{kind: outcomeNavigation}

	sig, err := raceOutcome(context.Background(), signals, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.kind != outcomeNetworkMatch {
		t.Errorf("signal = %v, want the first one queued", outcomeName(sig.kind))
	}
}

func TestRaceOutcomeValidationError(t *testing.T) {
	signals := make(chan outcomeSignal, 1)
	signals <- outcomeSignal{kind: outcomeValidationError}

	if _, err := raceOutcome(context.Background(), signals, time.Second); err != errFormatRejected {
		t.Fatalf("error = %v, want format rejection", err)
	}
}

func TestRaceOutcomeSilenceIsUnconfirmed(t *testing.T) {
	signals := make(chan outcomeSignal)

	if _, err := raceOutcome(context.Background(), signals, 20*time.Millisecond); !errors.Is(err, ErrSubmissionUnconfirmed) {
		t.Fatalf("error = %v, want ErrSubmissionUnconfirmed", err)
	}
}

func TestRaceOutcomeContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := raceOutcome(ctx, make(chan outcomeSignal), time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestUploadAttemptUseFile(t *testing.T) {
	a := &uploadAttempt{}
	a.useFile("/tmp/audio/take.WAV")
	if a.format != "wav" {
		t.Errorf("format = %q, want wav", a.format)
	}
	a.useFile("/tmp/audio/take.normalized.mp3")
	if a.format != "mp3" {
		t.Errorf("format = %q, want mp3", a.format)
	}
}
