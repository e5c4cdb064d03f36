// Package config loads the optional Hibiki configuration file.
//
// The file is YAML, validated against an embedded JSON schema before any
// field is consumed, so typos (an unknown key, a room ID missing its "!"
// sigil) fail at startup with a precise message instead of silently
// producing a half-configured bot. Secrets never live in the file: the
// provider API key and the Matrix access token are read from the
// environment by the caller.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// File mirrors the YAML configuration file. Zero values mean "not set";
// the caller layers defaults and environment overrides on top.
type File struct {
	SystemMessage   string   `yaml:"system_message"`
	DailyLimit      int      `yaml:"daily_limit"`
	Model           string   `yaml:"model"`
	Provider        Provider `yaml:"provider"`
	Matrix          Matrix   `yaml:"matrix"`
	HTTPAddr        string   `yaml:"http_addr"`
	DatabasePath    string   `yaml:"database_path"`
	MaxMessageBytes int      `yaml:"max_message_bytes"`
}

// Provider holds completion-API settings.
type Provider struct {
	Endpoint  string `yaml:"endpoint"`
	Timeout   string `yaml:"timeout"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Matrix holds homeserver settings.
type Matrix struct {
	Homeserver string   `yaml:"homeserver"`
	UserID     string   `yaml:"user_id"`
	Rooms      []string `yaml:"rooms"`
}

// Load reads, validates, and decodes the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and decodes a YAML configuration document.
func Parse(data []byte) (*File, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &f, nil
}

// validate checks the document against the embedded schema.
//
// The YAML is round-tripped through encoding/json first because the schema
// validator expects JSON-decoded values (string keys, float64 numbers).
func validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse: %w", err)
	}
	if doc == nil {
		// An empty file is a valid "all defaults" configuration.
		return nil
	}

	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: convert to JSON for validation: %w", err)
	}
	var v any
	if err := json.Unmarshal(jsonDoc, &v); err != nil {
		return fmt.Errorf("config: convert to JSON for validation: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}

// compileSchema compiles the embedded JSON schema.
func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("hibiki-config.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
		return nil, fmt.Errorf("config: load schema: %w", err)
	}
	schema, err := compiler.Compile("hibiki-config.json")
	if err != nil {
		return nil, fmt.Errorf("config: compile schema: %w", err)
	}
	return schema, nil
}
