package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("CAREPULSE_DATA_DIR", "/var/lib/carepulse")
	cfg := DefaultConfig()

	if cfg.Engine.Timezone != "UTC" {
		t.Errorf("expected UTC, got %s", cfg.Engine.Timezone)
	}
	if cfg.Engine.LookbackDays != 7 {
		t.Errorf("expected lookback 7, got %d", cfg.Engine.LookbackDays)
	}
	if cfg.Sources.FailurePolicy != PolicyDegrade {
		t.Errorf("expected degrade policy, got %s", cfg.Sources.FailurePolicy)
	}
	if cfg.Sources.FetchTimeout() != 5*time.Second {
		t.Errorf("expected 5s fetch timeout, got %v", cfg.Sources.FetchTimeout())
	}
	if cfg.Storage.Path != filepath.Join("/var/lib/carepulse", "carepulse.db") {
		t.Errorf("unexpected storage path %s", cfg.Storage.Path)
	}
	if cfg.Signing.KeyPath != "" {
		t.Error("signing should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
}

func TestFindConfigFile(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("CAREPULSE_DATA_DIR", dataDir)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("APPDATA", t.TempDir())

	if path := FindConfigFile(); path != "" && filepath.Dir(path) == dataDir {
		t.Fatalf("found config in empty data dir: %s", path)
	}

	want := filepath.Join(dataDir, "config.yaml")
	if err := os.WriteFile(want, []byte("engine:\n  lookback_days: 14\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(); got != want {
		t.Errorf("FindConfigFile = %q, want %q", got, want)
	}
}

func TestSigningPassphrase(t *testing.T) {
	s := SigningConfig{}
	if s.Passphrase() != nil {
		t.Error("expected no passphrase without passphrase_env")
	}

	s.PassphraseEnv = "CAREPULSE_TEST_KEY_PASSPHRASE"
	t.Setenv(s.PassphraseEnv, "")
	if s.Passphrase() != nil {
		t.Error("expected no passphrase for empty variable")
	}
	t.Setenv(s.PassphraseEnv, "s3cret")
	if got := string(s.Passphrase()); got != "s3cret" {
		t.Errorf("Passphrase = %q", got)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != Version {
		t.Errorf("expected defaults, got version %d", cfg.Version)
	}
}

func TestLoadFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"config.toml": "[engine]\ntimezone = \"Europe/Berlin\"\nlookback_days = 14\n\n[sources]\nfailure_policy = \"abort\"\n",
		"config.json": `{"engine": {"timezone": "Europe/Berlin", "lookback_days": 14}, "sources": {"failure_policy": "abort"}}`,
		"config.yaml": "engine:\n  timezone: Europe/Berlin\n  lookback_days: 14\nsources:\n  failure_policy: abort\n",
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Engine.Timezone != "Europe/Berlin" || cfg.Engine.LookbackDays != 14 {
				t.Errorf("engine section not applied: %+v", cfg.Engine)
			}
			if cfg.Sources.FailurePolicy != PolicyAbort {
				t.Errorf("expected abort, got %s", cfg.Sources.FailurePolicy)
			}
			// Unset fields keep their defaults.
			if cfg.Sources.FetchTimeoutMs != 5000 {
				t.Errorf("expected default timeout, got %d", cfg.Sources.FetchTimeoutMs)
			}
		})
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[engine\ntimezone ="), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAREPULSE_TIMEZONE", "Asia/Tokyo")
	t.Setenv("CAREPULSE_LOOKBACK_DAYS", "30")
	t.Setenv("CAREPULSE_RULEBOOK", "/etc/carepulse/rules.yaml")
	t.Setenv("CAREPULSE_FAILURE_POLICY", "abort")
	t.Setenv("CAREPULSE_LOG_LEVEL", "debug")
	t.Setenv("CAREPULSE_SIGNING_KEY_PATH", "/keys/export")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Engine.Timezone != "Asia/Tokyo" {
		t.Errorf("timezone override not applied: %s", cfg.Engine.Timezone)
	}
	if cfg.Engine.LookbackDays != 30 {
		t.Errorf("lookback override not applied: %d", cfg.Engine.LookbackDays)
	}
	if cfg.Engine.RulebookPath != "/etc/carepulse/rules.yaml" {
		t.Errorf("rulebook override not applied: %s", cfg.Engine.RulebookPath)
	}
	if cfg.Sources.FailurePolicy != PolicyAbort {
		t.Errorf("policy override not applied: %s", cfg.Sources.FailurePolicy)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level override not applied: %s", cfg.Logging.Level)
	}
	if cfg.Signing.KeyPath != "/keys/export" {
		t.Errorf("key path override not applied: %s", cfg.Signing.KeyPath)
	}

	t.Setenv("CAREPULSE_LOOKBACK_DAYS", "many")
	cfg.ApplyEnvOverrides()
	if cfg.Engine.LookbackDays != 30 {
		t.Errorf("unparseable override should be ignored, got %d", cfg.Engine.LookbackDays)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.Timezone = "Mars/Olympus"
	cfg.Engine.LookbackDays = 0
	cfg.Sources.FailurePolicy = "retry"
	cfg.Logging.Level = "verbose"
	cfg.Signing.Algorithm = "rsa"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	want := []string{
		"engine.timezone", "engine.lookback_days", "sources.failure_policy",
		"logging.level", "signing.algorithm",
	}
	got := verrs.Fields()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("fields = %v, expected %v", got, want)
	}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty timezone", func(c *Config) { c.Engine.Timezone = "" }, "engine.timezone"},
		{"rulebook extension", func(c *Config) { c.Engine.RulebookPath = "rules.ini" }, "engine.rulebook_path"},
		{"zero timeout", func(c *Config) { c.Sources.FetchTimeoutMs = 0 }, "sources.fetch_timeout_ms"},
		{"storage type", func(c *Config) { c.Storage.Type = "postgres" }, "storage.type"},
		{"storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"log file", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
		{"log output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"audit path", func(c *Config) { c.Audit.FilePath = "" }, "audit.file_path"},
		{"version", func(c *Config) { c.Version = Version + 1 }, "version"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.mutate(cfg)
			var verrs ValidationErrors
			if !errors.As(cfg.Validate(), &verrs) {
				t.Fatal("expected validation errors")
			}
			if len(verrs) != 1 || verrs[0].Field != test.field {
				t.Errorf("expected single %s error, got %v", test.field, verrs)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Audit.Enabled = false
	cfg.Audit.FilePath = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled audit needs no path: %v", err)
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Engine.Timezone = "Europe/Paris"
	clone.Sources.FetchTimeoutMs = 1

	if cfg.Engine.Timezone != "UTC" || cfg.Sources.FetchTimeoutMs != 5000 {
		t.Error("modifying clone affected original")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	cfg.Engine.Timezone = "America/Chicago"
	cfg.Export.Persist = true

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Engine.Timezone != "America/Chicago" || !loaded.Export.Persist {
		t.Errorf("round trip lost values: %+v %+v", loaded.Engine, loaded.Export)
	}
}

func TestLoggerConfig(t *testing.T) {
	section := DefaultConfig().Logging
	section.Level = "warn"
	section.Format = "json"
	lc, err := section.LoggerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if lc.MaxSize != int64(section.MaxSizeMB) || lc.FilePath != section.FilePath {
		t.Errorf("logging config not copied: %+v", lc)
	}

	section.Level = "loud"
	if _, err := section.LoggerConfig(); err == nil {
		t.Error("expected level error")
	}

	ac := DefaultConfig().Audit.AuditLoggerConfig()
	if ac.MaxAge != 365 {
		t.Errorf("expected audit retention 365, got %d", ac.MaxAge)
	}
}

func TestLoaderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[engine]\nlookback_days = 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan *Config, 1)
	loader.OnChange(func(old, new *Config) {
		if old.Engine.LookbackDays == 7 && new.Engine.LookbackDays == 28 {
			changed <- new
		}
	})
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer loader.Close()

	if err := os.WriteFile(path, []byte("[engine]\nlookback_days = 28\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.Engine.LookbackDays != 28 {
			t.Errorf("expected 28, got %d", cfg.Engine.LookbackDays)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload not observed")
	}
	if loader.Config().Engine.LookbackDays != 28 {
		t.Error("loader did not publish the new config")
	}
}

func TestLoaderRejectsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[engine]\nlookback_days = 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatal(err)
	}
	if err := loader.Watch(); err != nil {
		t.Fatal(err)
	}
	defer loader.Close()

	if err := os.WriteFile(path, []byte("[engine]\nlookback_days = -1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-loader.Errors():
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected validation error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("invalid reload not reported")
	}
	if loader.Config().Engine.LookbackDays != 7 {
		t.Error("invalid reload replaced the config")
	}
}
