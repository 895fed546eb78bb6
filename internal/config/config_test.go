package config

import (
	"os"
	"path/filepath"
	"testing"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupMap(nil))
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, DefaultAddr)
	}
	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.Provider)
	}
	if cfg.Language != "hi" {
		t.Errorf("Language = %q, want hi", cfg.Language)
	}
	if cfg.Prompt != DefaultPrompt {
		t.Errorf("Prompt = %q, want default prompt", cfg.Prompt)
	}
	if cfg.MaxUploadMB != 100 || cfg.FPS != 60 {
		t.Errorf("MaxUploadMB/FPS = %d/%d, want 100/60", cfg.MaxUploadMB, cfg.FPS)
	}
	if cfg.ExtractAudio || cfg.StrictTimes {
		t.Error("boolean flags should default to false")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookupMap(map[string]string{
		"OPENAI_API_KEY":          "sk-test",
		"GEMINI_API_KEY":          "g-test",
		"LIPISTUDIO_PROVIDER":     "Gemini",
		"LIPISTUDIO_ADDR":         "127.0.0.1:9000",
		"LIPISTUDIO_STRICT_TIMES": "true",
		"LIPISTUDIO_FPS":          "30",
		"LIPISTUDIO_LANGUAGE":     "  ",
	}))
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini", cfg.Provider)
	}
	if cfg.APIKey(cfg.Provider) != "g-test" {
		t.Errorf("APIKey(gemini) = %q", cfg.APIKey(cfg.Provider))
	}
	if cfg.APIKey("openai") != "sk-test" {
		t.Errorf("APIKey(openai) = %q", cfg.APIKey("openai"))
	}
	if cfg.APIKey("unknown") != "" {
		t.Error("APIKey(unknown) should be empty")
	}
	if !cfg.StrictTimes || cfg.FPS != 30 {
		t.Errorf("StrictTimes/FPS = %v/%d", cfg.StrictTimes, cfg.FPS)
	}
	if cfg.Language != "hi" {
		t.Errorf("blank value should fall back to default, got %q", cfg.Language)
	}
}

func TestFromEnvInvalid(t *testing.T) {
	tests := map[string]string{
		"LIPISTUDIO_FPS":           "fast",
		"LIPISTUDIO_MAX_UPLOAD_MB": "-1",
		"LIPISTUDIO_EXTRACT_AUDIO": "maybe",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			if _, err := FromEnv(lookupMap(map[string]string{key: value})); err == nil {
				t.Errorf("FromEnv(%s=%s) should fail", key, value)
			}
		})
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("LIPISTUDIO_TEST_VALUE=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIPISTUDIO_TEST_VALUE", "")
	os.Unsetenv("LIPISTUDIO_TEST_VALUE")

	loaded, err := LoadEnvFiles(filepath.Join(dir, "missing.env"), path, "")
	if err != nil {
		t.Fatalf("LoadEnvFiles() error = %v", err)
	}
	if len(loaded) != 1 || loaded[0] != path {
		t.Errorf("loaded = %v, want [%s]", loaded, path)
	}
	if got := os.Getenv("LIPISTUDIO_TEST_VALUE"); got != "from-file" {
		t.Errorf("LIPISTUDIO_TEST_VALUE = %q, want from-file", got)
	}
}
