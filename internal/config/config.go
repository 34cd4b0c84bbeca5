// Package config loads the tool configuration from a YAML file validated
// against an embedded JSON schema.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

//go:embed config.schema.json
var schemaJSON []byte

const schemaURL = "config.schema.json"

// Config holds every setting of the tools.
type Config struct {
	SectorSize  int           `yaml:"sector_size" json:"sector_size"`
	ValidateBPB bool          `yaml:"validate_bpb" json:"validate_bpb"`
	LogLevel    string        `yaml:"log_level" json:"log_level"`
	Lab         LabConfig     `yaml:"lab" json:"lab"`
	Extract     ExtractConfig `yaml:"extract" json:"extract"`
}

// LabConfig drives the lab preparation tool.
type LabConfig struct {
	// FileSlackTarget is the 8.3 path of the file whose slack receives a flag.
	FileSlackTarget string `yaml:"file_slack_target" json:"file_slack_target"`
	// MBRGapStartSector is the first sector written after the MBR.
	MBRGapStartSector uint64 `yaml:"mbr_gap_start_sector" json:"mbr_gap_start_sector"`
}

// ExtractConfig holds the defaults of the extract command.
type ExtractConfig struct {
	Compression string `yaml:"compression" json:"compression"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SectorSize:  512,
		ValidateBPB: true,
		LogLevel:    "info",
		Lab: LabConfig{
			FileSlackTarget:   "1/t.txt",
			MBRGapStartSector: 1,
		},
		Extract: ExtractConfig{Compression: "none"},
	}
}

// Load reads the configuration at path on top of the defaults. An empty
// path yields the defaults; a named file must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	if err := ValidateYAML(data); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ValidateYAML checks a YAML document against the configuration schema.
func ValidateYAML(data []byte) error {
	jsonData, err := k8syaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("failed to convert YAML to JSON: %w", err)
	}
	var doc any
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("failed to decode JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
