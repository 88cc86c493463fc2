package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAMLWithDefaults(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
storage:
  path: ./data/gc.db
logging:
  level: debug
  console: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "./data/gc.db" {
		t.Fatalf("storage.path = %q", cfg.Storage.Path)
	}
	if cfg.Storage.KeyPath == "" || cfg.Telegram.SessionDir == "" {
		t.Fatal("defaults not applied")
	}
	min, max := cfg.PacingDelays()
	if min != 2*time.Second || max != 4*time.Second {
		t.Fatalf("default pacing = [%v, %v], want [2s, 4s]", min, max)
	}
	if cfg.Pacing.RatePerSec != 5 {
		t.Fatalf("default rate = %d, want 5", cfg.Pacing.RatePerSec)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
storage:
  path: ./gc.db
  flavour: vanilla
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "flavour") {
		t.Fatalf("err = %v, want unknown field error naming the key", err)
	}
}

func TestLoadRejectsInvertedPacing(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{
  "pacing": {"min_delay": "10s", "max_delay": "2s"}
}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for max_delay < min_delay")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
pacing:
  min_delay: "soonish"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
schedule:
  enabled: true
  spec: "0 9 * * *"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "schedule.tag") {
		t.Fatalf("err = %v, want missing schedule.tag error", err)
	}

	ok := writeTemp(t, "config2.yaml", `
schedule:
  enabled: true
  spec: "0 9 * * *"
  tag: standard
`)
	cfg, err := Load(ok)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schedule == nil || cfg.Schedule.Tag != "standard" {
		t.Fatalf("schedule = %+v", cfg.Schedule)
	}
}
