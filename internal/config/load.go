package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Load reads, decodes, and validates the config file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	jb, format, err := coerceToJSONBytes(path, raw)
	if err != nil {
		return Config{}, fmt.Errorf("decode config (%s): %w", format, err)
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config (%s): %w", format, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "./groupcast.db"
	}
	if strings.TrimSpace(c.Storage.KeyPath) == "" {
		c.Storage.KeyPath = "./groupcast.key"
	}
	if strings.TrimSpace(c.Telegram.SessionDir) == "" {
		c.Telegram.SessionDir = "./sessions"
	}
	if strings.TrimSpace(c.Templates.Dir) == "" {
		c.Templates.Dir = "."
	}
	if strings.TrimSpace(c.Pacing.MinDelay) == "" {
		c.Pacing.MinDelay = "2s"
	}
	if strings.TrimSpace(c.Pacing.MaxDelay) == "" {
		c.Pacing.MaxDelay = "4s"
	}
	if c.Pacing.RatePerSec <= 0 {
		c.Pacing.RatePerSec = 5
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	min, err := ParseDurationField("pacing.min_delay", c.Pacing.MinDelay)
	if err != nil {
		return err
	}
	max, err := ParseDurationField("pacing.max_delay", c.Pacing.MaxDelay)
	if err != nil {
		return err
	}
	if max < min {
		return fmt.Errorf("pacing.max_delay %q is below pacing.min_delay %q", c.Pacing.MaxDelay, c.Pacing.MinDelay)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if c.Pacing.FloodRetryMax < 0 {
		return fmt.Errorf("pacing.flood_retry_max must be >= 0")
	}
	if c.Schedule != nil && c.Schedule.Enabled {
		if strings.TrimSpace(c.Schedule.Spec) == "" {
			return fmt.Errorf("schedule.spec is required when schedule is enabled")
		}
		if strings.TrimSpace(c.Schedule.Tag) == "" {
			return fmt.Errorf("schedule.tag is required when schedule is enabled")
		}
	}
	return nil
}

// PacingDelays returns the parsed [min,max] pacing window.
// Config validation guarantees these parse and min <= max.
func (c Config) PacingDelays() (min, max time.Duration) {
	min, _ = ParseDurationField("pacing.min_delay", c.Pacing.MinDelay)
	max, _ = ParseDurationField("pacing.max_delay", c.Pacing.MaxDelay)
	return min, max
}

// ParseDurationField parses an optional Go duration string from config.
// Empty input is 0; negative durations are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// coerceToJSONBytes converts YAML config to JSON bytes so we can re-use the strict
// JSON decoder (DisallowUnknownFields) for both formats.
//
// Returns (jsonBytes, format, err) where format is "json" or "yaml".
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, "json", nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}

	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// normalizeYAML ensures all map keys are strings so the result can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
