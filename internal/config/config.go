package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/ara818/autocompleter/internal/autocomplete"
	"gopkg.in/yaml.v3"
)

// Build metadata, injected via -ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Config is the server configuration file.
type Config struct {
	RedisAddr string `yaml:"redis_address"`
	RedisDB   int    `yaml:"redis_db"`
	Addr      string `yaml:"address"`
	Port      string `yaml:"port"`

	// KeyRoot is the Redis namespace all index keys live under.
	// Empty selects the default.
	KeyRoot string `yaml:"key_root"`

	Settings  SettingsConfig            `yaml:"settings"`
	Providers map[string]OverrideConfig `yaml:"providers"`

	// Fixtures maps autocompleter names to dictionary fixture files.
	Fixtures map[string][]string `yaml:"fixtures"`
}

// SettingsConfig is the global settings tier as it appears on disk.
// Unset fields keep their defaults.
type SettingsConfig struct {
	MaxResults            *int    `yaml:"max_results"`
	MinLetters            *int    `yaml:"min_letters"`
	MaxExactMatchWords    *int    `yaml:"max_exact_match_words"`
	MoveExactMatchesToTop *bool   `yaml:"move_exact_matches_to_top"`
	CacheTimeoutSeconds   *int    `yaml:"cache_timeout_seconds"`
	JoinChars             *string `yaml:"join_chars"`
	CharacterFilter       *string `yaml:"character_filter"`
	FlattenSingleResults  *bool   `yaml:"flatten_single_results"`
}

// OverrideConfig is a per-provider settings layer as it appears on disk.
type OverrideConfig struct {
	MinLetters          *int    `yaml:"min_letters"`
	MaxExactMatchWords  *int    `yaml:"max_exact_match_words"`
	JoinChars           *string `yaml:"join_chars"`
	CharacterFilter     *string `yaml:"character_filter"`
	CacheTimeoutSeconds *int    `yaml:"cache_timeout_seconds"`
}

// Load reads and decodes the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// GlobalSettings merges the file's settings tier over the engine
// defaults.
func (c *Config) GlobalSettings() (autocomplete.Settings, error) {
	s := autocomplete.DefaultSettings()
	sc := c.Settings

	if sc.MaxResults != nil {
		s.MaxResults = *sc.MaxResults
	}
	if sc.MinLetters != nil {
		s.MinLetters = *sc.MinLetters
	}
	if sc.MaxExactMatchWords != nil {
		s.MaxExactMatchWords = *sc.MaxExactMatchWords
	}
	if sc.MoveExactMatchesToTop != nil {
		s.MoveExactMatchesToTop = *sc.MoveExactMatchesToTop
	}
	if sc.CacheTimeoutSeconds != nil {
		s.CacheTimeout = time.Duration(*sc.CacheTimeoutSeconds) * time.Second
	}
	if sc.JoinChars != nil {
		s.JoinChars = *sc.JoinChars
	}
	if sc.CharacterFilter != nil {
		re, err := regexp.Compile(*sc.CharacterFilter)
		if err != nil {
			return s, fmt.Errorf("character_filter: %w", err)
		}
		s.CharacterFilter = re
	}
	if sc.FlattenSingleResults != nil {
		s.FlattenSingleResults = *sc.FlattenSingleResults
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Override converts a per-provider file layer into an engine override.
func (oc OverrideConfig) Override() (autocomplete.Override, error) {
	var o autocomplete.Override
	o.MinLetters = oc.MinLetters
	o.MaxExactMatchWords = oc.MaxExactMatchWords
	o.JoinChars = oc.JoinChars
	if oc.CacheTimeoutSeconds != nil {
		o.CacheTimeout = autocomplete.Duration(time.Duration(*oc.CacheTimeoutSeconds) * time.Second)
	}
	if oc.CharacterFilter != nil {
		re, err := regexp.Compile(*oc.CharacterFilter)
		if err != nil {
			return o, fmt.Errorf("character_filter: %w", err)
		}
		o.CharacterFilter = re
	}
	return o, nil
}
