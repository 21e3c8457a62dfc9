package dsl

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Override mutates a parsed config before validation.
type Override func(*Config)

// Load parses YAML bytes into Config, applies overrides and validates it.
func Load(data []byte, overrides ...Override) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml: config is empty")
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	for _, override := range overrides {
		if override != nil {
			override(&cfg)
		}
	}
	if err := normalizeConfig(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
