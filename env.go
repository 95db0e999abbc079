package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Env is the fixed set of named environment variables the tool needs.
// Required entries are enumerated in full before exit when missing; nothing
// is worse than fixing one variable at a time across three restarts.
type Env struct {
	PortalEmail    string
	PortalPassword string

	BrowserlessAPIKey string // optional; empty means launch a local browser

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModelID string

	// Voice tuning, all optional with provider-sensible defaults.
	Stability    float64
	Similarity   float64
	Style        float64
	Speed        float64
	SpeakerBoost bool

	SheetPath string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	// Optional selector overrides, one per DOM touchpoint.
	ScriptSelector        string
	DescriptionSelector   string
	ClientSelector        string
	AttachmentSelector    string
	AcceptBtnSelector     string
	FileInputSelector     string
	SubmitButtonSelector  string
	UploadSuccessSelector string
}

var requiredEnvVars = []string{
	"VOICE123_EMAIL",
	"VOICE123_PASSWORD",
	"ELEVENLABS_API_KEY",
	"ELEVENLABS_VOICE_ID",
	"SHEET_PATH",
	"S3_ENDPOINT",
	"S3_REGION",
	"S3_BUCKET",
	"S3_ACCESS_KEY",
	"S3_SECRET_KEY",
}

// LoadEnv reads .env if present, then validates and collects the variable
// set. A missing required variable is a fatal startup error; the full list
// of missing names is reported at once.
func LoadEnv() (*Env, error) {
	// .env is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	var missing []string
	for _, name := range requiredEnvVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables:\n  %s",
			strings.Join(missing, "\n  "))
	}

	env := &Env{
		PortalEmail:    os.Getenv("VOICE123_EMAIL"),
		PortalPassword: os.Getenv("VOICE123_PASSWORD"),

		BrowserlessAPIKey: os.Getenv("BROWSERLESS_API_KEY"),

		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		ElevenLabsModelID: envOr("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),

		Stability:    envFloat("ELEVENLABS_STABILITY", 0.6),
		Similarity:   envFloat("ELEVENLABS_SIMILARITY", 0.85),
		Style:        envFloat("ELEVENLABS_STYLE_EXAGGERATION", 0.5),
		Speed:        envFloat("ELEVENLABS_SPEED", 1.12),
		SpeakerBoost: envBool("ELEVENLABS_SPEAKER_BOOST", true),

		SheetPath: os.Getenv("SHEET_PATH"),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Region:    os.Getenv("S3_REGION"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),

		ScriptSelector:        os.Getenv("SCRIPT_SELECTOR"),
		DescriptionSelector:   os.Getenv("DESCRIPTION_SELECTOR"),
		ClientSelector:        os.Getenv("CLIENT_SELECTOR"),
		AttachmentSelector:    os.Getenv("ATTACHMENT_SELECTOR"),
		AcceptBtnSelector:     os.Getenv("ACCEPT_BTN_SELECTOR"),
		FileInputSelector:     os.Getenv("FILE_INPUT_SELECTOR"),
		SubmitButtonSelector:  os.Getenv("SUBMIT_BUTTON_SELECTOR"),
		UploadSuccessSelector: os.Getenv("UPLOAD_SUCCESS_SELECTOR"),
	}

	return env, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envFloat(name string, fallback float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
