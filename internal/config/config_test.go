package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Cores != 8 {
		t.Errorf("expected Cores 8, got %d", config.Cores)
	}
	if config.Network.SnappingTolerance != 0.00001 {
		t.Errorf("expected SnappingTolerance 0.00001, got %v", config.Network.SnappingTolerance)
	}
	if config.Network.DiscardRedundant {
		t.Error("expected DiscardRedundant to be false by default")
	}

	// Output defaults
	out := config.Output
	if !out.FlowMap || !out.FlowGeoJSON || !out.OriginGeoJSON {
		t.Errorf("expected flow map and GeoJSON records on by default, got %+v", out)
	}
	if out.FlowCSV || out.OriginCSV || out.DiagnosticsMap || out.Ledger {
		t.Errorf("expected CSV, diagnostics and ledger off by default, got %+v", out)
	}

	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if config.Publish.Enabled {
		t.Error("expected publishing to be disabled by default")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
cores: 4
network:
  snapping_tolerance: 0.5
  discard_redundant: true
output:
  flow_map: false
  flow_csv: true
  diagnostics_map: true
  ledger: true
logging:
  level: debug
publish:
  enabled: true
  endpoint: minio.local:9000
  access_key: key
  secret_key: secret
  region: eu-west-1
  bucket: city-runs
  prefix: boston
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Cores != 4 {
		t.Errorf("expected Cores 4, got %d", config.Cores)
	}
	if config.Network.SnappingTolerance != 0.5 || !config.Network.DiscardRedundant {
		t.Errorf("network = %+v", config.Network)
	}
	if config.Output.FlowMap || !config.Output.FlowCSV || !config.Output.DiagnosticsMap || !config.Output.Ledger {
		t.Errorf("output = %+v", config.Output)
	}
	// Keys absent from the file keep their defaults.
	if !config.Output.FlowGeoJSON {
		t.Error("expected flow_geojson to keep its default")
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected Logging.Level 'debug', got '%s'", config.Logging.Level)
	}
	p := config.Publish
	if !p.Enabled || p.Endpoint != "minio.local:9000" || p.Bucket != "city-runs" || p.Prefix != "boston" {
		t.Errorf("publish = %v", p)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
publish:
  secret_key: ${TEST_MINIO_SECRET}
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("TEST_MINIO_SECRET", "expanded-secret-value")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.Publish.SecretKey != "expanded-secret-value" {
		t.Errorf("expected expanded secret, got '%s'", config.Publish.SecretKey)
	}
}

func TestLoad_HomeConfigAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.MkdirAll(filepath.Join(home, ".unaflow"), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".unaflow", "config.yaml"), []byte("cores: 2\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("UNAFLOW_LOG_LEVEL", "trace")
	t.Setenv("UNAFLOW_LEDGER", "1")
	t.Setenv("UNAFLOW_SNAPPING_TOLERANCE", "0.25")
	t.Setenv("UNAFLOW_PUBLISH_ENABLED", "true")
	t.Setenv("UNAFLOW_PUBLISH_BUCKET", "override")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Cores != 2 {
		t.Errorf("expected Cores 2 from file, got %d", config.Cores)
	}
	if config.Logging.Level != "trace" {
		t.Errorf("expected Logging.Level 'trace', got '%s'", config.Logging.Level)
	}
	if !config.Output.Ledger {
		t.Error("expected ledger enabled by env")
	}
	if config.Network.SnappingTolerance != 0.25 {
		t.Errorf("expected SnappingTolerance 0.25, got %v", config.Network.SnappingTolerance)
	}
	if !config.Publish.Enabled || config.Publish.Bucket != "override" {
		t.Errorf("publish = %v", config.Publish)
	}

	t.Setenv("UNAFLOW_CORES", "eight")
	if _, err := Load(); err == nil {
		t.Error("expected error for non-numeric UNAFLOW_CORES")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*UnaflowConfig)
		wantErr string
	}{
		{"valid", func(c *UnaflowConfig) {}, ""},
		{"empty level", func(c *UnaflowConfig) { c.Logging.Level = "" }, ""},
		{"zero cores", func(c *UnaflowConfig) { c.Cores = 0 }, "cores"},
		{"negative tolerance", func(c *UnaflowConfig) { c.Network.SnappingTolerance = -1 }, "snapping_tolerance"},
		{"bad level", func(c *UnaflowConfig) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"publish without bucket", func(c *UnaflowConfig) {
			c.Publish.Enabled = true
			c.Publish.AccessKey, c.Publish.SecretKey = "a", "b"
			c.Publish.Bucket = ""
		}, "publish"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestYAML_RedactsSecret(t *testing.T) {
	c := Default()
	c.Publish.SecretKey = "supersecretvalue"
	out, err := c.YAML()
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if strings.Contains(s, "supersecret") {
		t.Error("secret key leaked into YAML output")
	}
	if !strings.Contains(s, "snapping_tolerance") || !strings.Contains(s, "flow_map: true") {
		t.Errorf("unexpected YAML:\n%s", s)
	}
	if c.Publish.SecretKey != "supersecretvalue" {
		t.Error("YAML must not modify the config")
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("cores: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
