package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
crossing:
  id: "test-crossing"
  signals:
    - id: "light-a"
      display_name: "North"
      pair_role: "a"
    - id: "light-b"
      display_name: "South"
      pair_role: "b"
  amber_delay_ms: 1000
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 3001
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Crossing.ID != "test-crossing" {
		t.Errorf("Crossing.ID = %q, want %q", cfg.Crossing.ID, "test-crossing")
	}
	if len(cfg.Crossing.Signals) != 2 {
		t.Fatalf("len(Signals) = %d, want 2", len(cfg.Crossing.Signals))
	}
	if cfg.Crossing.Signals[0].DisplayName != "North" {
		t.Errorf("Signals[0].DisplayName = %q, want %q", cfg.Crossing.Signals[0].DisplayName, "North")
	}
	if got := cfg.Crossing.AmberDelay(); got != time.Second {
		t.Errorf("AmberDelay() = %v, want %v", got, time.Second)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	// Defaults survive a partial file
	if cfg.Telemetry.BaseTopic != "crossing/vehicles" {
		t.Errorf("Telemetry.BaseTopic = %q, want default", cfg.Telemetry.BaseTopic)
	}
	if cfg.Gate.PollInterval() != 5*time.Second {
		t.Errorf("Gate.PollInterval() = %v, want 5s", cfg.Gate.PollInterval())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_SignalValidation(t *testing.T) {
	tests := []struct {
		name    string
		signals string
		wantErr string
	}{
		{
			name: "single signal",
			signals: `
  signals:
    - id: "light-a"
      pair_role: "a"
`,
			wantErr: "exactly 2",
		},
		{
			name: "duplicate roles",
			signals: `
  signals:
    - id: "light-a"
      pair_role: "a"
    - id: "light-b"
      pair_role: "a"
`,
			wantErr: "distinct",
		},
		{
			name: "bad role",
			signals: `
  signals:
    - id: "light-a"
      pair_role: "x"
    - id: "light-b"
      pair_role: "b"
`,
			wantErr: "pair_role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "crossing:\n  id: \"c1\"" + tt.signals + "  amber_delay_ms: 500\n"
			_, err := Load(writeConfig(t, content))
			if err == nil {
				t.Fatal("Load() expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_GateValidation(t *testing.T) {
	content := `
gate:
  enabled: true
  document_url: ""
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error for enabled gate without URL, got nil")
	}
	if !strings.Contains(err.Error(), "gate.document_url") {
		t.Errorf("error = %v, want gate.document_url complaint", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CROSSING_DATABASE_PATH", "/env/override.db")
	t.Setenv("CROSSING_GATE_API_KEY", "env-key")

	cfg, err := Load(writeConfig(t, "crossing:\n  id: \"c1\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/env/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Gate.APIKey != "env-key" {
		t.Errorf("Gate.APIKey = %q, want env override", cfg.Gate.APIKey)
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}
