package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mvoisin/hibiki/internal/hibiki/config"
)

const validYAML = `
system_message: "You are a helpful assistant."
daily_limit: 10
model: gpt-3.5-turbo
provider:
  endpoint: https://api.openai.com/v1
  timeout: 30s
  max_tokens: 1024
matrix:
  homeserver: https://matrix.example.com
  user_id: "@hibiki:example.com"
  rooms:
    - "!abc123:example.com"
    - "!def456:example.com"
http_addr: ":8080"
database_path: ./hibiki.db
max_message_bytes: 4000
`

func TestParseValid(t *testing.T) {
	f, err := config.Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if f.SystemMessage != "You are a helpful assistant." {
		t.Errorf("SystemMessage: got %q", f.SystemMessage)
	}
	if f.DailyLimit != 10 {
		t.Errorf("DailyLimit: got %d, want 10", f.DailyLimit)
	}
	if f.Provider.MaxTokens != 1024 {
		t.Errorf("Provider.MaxTokens: got %d, want 1024", f.Provider.MaxTokens)
	}
	if len(f.Matrix.Rooms) != 2 || f.Matrix.Rooms[0] != "!abc123:example.com" {
		t.Errorf("Matrix.Rooms: got %v", f.Matrix.Rooms)
	}
}

func TestParseEmptyFileMeansDefaults(t *testing.T) {
	f, err := config.Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse of empty file: %v", err)
	}
	if f.DailyLimit != 0 || f.SystemMessage != "" {
		t.Errorf("empty file should decode to zero values, got %+v", f)
	}
}

func TestParseRejectsUnknownKey(t *testing.T) {
	_, err := config.Parse([]byte("daily_limt: 5\n")) // typo'd key
	if err == nil {
		t.Fatal("expected a validation error for an unknown key")
	}
	if !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("error should come from schema validation, got: %v", err)
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero daily limit", "daily_limit: 0\n"},
		{"negative daily limit", "daily_limit: -3\n"},
		{"room missing sigil", "matrix:\n  rooms: [\"abc:example.com\"]\n"},
		{"user id missing sigil", "matrix:\n  user_id: \"hibiki:example.com\"\n"},
		{"endpoint not a url", "provider:\n  endpoint: not-a-url\n"},
		{"daily limit not a number", "daily_limit: ten\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := config.Parse([]byte(tc.yaml)); err == nil {
				t.Errorf("expected validation to reject %q", tc.yaml)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hibiki.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	f, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Model != "gpt-3.5-turbo" {
		t.Errorf("Model: got %q", f.Model)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
