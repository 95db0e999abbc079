package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.BaseURL != "https://voice123.com" {
		t.Errorf("unexpected base url: %q", config.BaseURL)
	}
	if !config.Headless {
		t.Error("default should run headless")
	}
	if config.UploadRetries != 3 {
		t.Errorf("upload retries = %d, want 3", config.UploadRetries)
	}
	if config.Timeouts.Navigation().Seconds() != 15 {
		t.Errorf("navigation timeout = %v, want 15s", config.Timeouts.Navigation())
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if config.BaseURL != DefaultConfig().BaseURL {
		t.Errorf("unexpected base url: %q", config.BaseURL)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config should have been written: %v", err)
	}
}

func TestConfigSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := DefaultConfig()
	original.Headless = false
	original.InviteDelaySeconds = 7
	original.Timeouts.FieldSeconds = 9
	original.Selectors.Upload.FileInput = []string{`#custom-input`}

	if err := original.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Headless {
		t.Error("headless flag lost in round trip")
	}
	if loaded.InviteDelaySeconds != 7 {
		t.Errorf("invite delay = %d, want 7", loaded.InviteDelaySeconds)
	}
	if loaded.Timeouts.FieldSeconds != 9 {
		t.Errorf("field timeout = %d, want 9", loaded.Timeouts.FieldSeconds)
	}
	if len(loaded.Selectors.Upload.FileInput) != 1 || loaded.Selectors.Upload.FileInput[0] != `#custom-input` {
		t.Errorf("selector override lost: %v", loaded.Selectors.Upload.FileInput)
	}
}

func TestConfigValidateEmptySelectors(t *testing.T) {
	config := DefaultConfig()
	config.Selectors.Upload.FileInput = nil
	config.Selectors.Project.Script = []string{"  "}

	err := config.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "upload.file_input") {
		t.Errorf("error should name the empty list: %v", err)
	}
	if !strings.Contains(err.Error(), "project.script") {
		t.Errorf("error should name the blank entry: %v", err)
	}
}

func TestConfigValidateTimeouts(t *testing.T) {
	config := DefaultConfig()
	config.Timeouts.NavigationSeconds = 0

	if err := config.Validate(); err == nil {
		t.Fatal("expected validation error for zero timeout")
	}
}

func TestApplySelectorOverrides(t *testing.T) {
	config := DefaultConfig()
	defaultFirst := config.Selectors.Upload.FileInput[0]

	config.ApplySelectorOverrides(&Env{
		FileInputSelector: `#hotfix-input`,
		ScriptSelector:    `.hotfix-script`,
	})

	fi := config.Selectors.Upload.FileInput
	if fi[0] != `#hotfix-input` {
		t.Errorf("override should be the first candidate, got %q", fi[0])
	}
	if fi[1] != defaultFirst {
		t.Errorf("shipped candidates should survive after the override, got %v", fi)
	}
	if config.Selectors.Project.Script[0] != `.hotfix-script` {
		t.Errorf("script override not applied: %v", config.Selectors.Project.Script)
	}
	if config.Selectors.Upload.SubmitButton[0] == "" {
		t.Error("empty override must not be prepended")
	}
}
