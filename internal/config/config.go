// Package config resolves runtime settings from .env files and the
// environment. Command line flags are applied on top by the cli package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultAddr        = ":8080"
	DefaultProvider    = "openai"
	DefaultLanguage    = "hi"
	DefaultMaxUploadMB = 100
	DefaultFPS         = 60

	// priming prompt sent with every transcription so Whisper answers in
	// romanized Hindi/English instead of Devanagari
	DefaultPrompt = "Hello dosto, kaise ho aap sab? Aaj hum coding seekhenge. " +
		"Video ko like karo. Yeh Hinglish transcription hai."
)

type Config struct {
	OpenAIKey    string
	GeminiKey    string
	AnthropicKey string

	Addr     string
	Provider string
	Model    string
	Language string
	Prompt   string

	MaxUploadMB  int
	ExtractAudio bool
	StrictTimes  bool
	FPS          int

	FFmpegPath  string
	FFprobePath string

	// env files that were found and loaded
	EnvFiles []string
}

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped; variables already set are not overridden.
func LoadEnvFiles(files ...string) ([]string, error) {
	var loaded []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// DefaultEnvFiles lists the files Load looks at, in priority order.
func DefaultEnvFiles() []string {
	files := []string{os.Getenv("LIPISTUDIO_ENV"), ".env"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".config", "lipistudio.env"))
	}
	return files
}

// Load reads env files then builds a Config from the environment.
func Load() (*Config, error) {
	loaded, err := LoadEnvFiles(DefaultEnvFiles()...)
	if err != nil {
		return nil, err
	}

	cfg, err := FromEnv(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	cfg.EnvFiles = loaded
	return cfg, nil
}

// FromEnv builds a Config from a lookup function so tests can supply a map.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		OpenAIKey:    get("OPENAI_API_KEY", ""),
		GeminiKey:    get("GEMINI_API_KEY", ""),
		AnthropicKey: get("ANTHROPIC_API_KEY", ""),
		Addr:         get("LIPISTUDIO_ADDR", DefaultAddr),
		Provider:     strings.ToLower(get("LIPISTUDIO_PROVIDER", DefaultProvider)),
		Model:        get("LIPISTUDIO_MODEL", ""),
		Language:     get("LIPISTUDIO_LANGUAGE", DefaultLanguage),
		Prompt:       get("LIPISTUDIO_PROMPT", DefaultPrompt),
		FFmpegPath:   get("LIPISTUDIO_FFMPEG_PATH", ""),
		FFprobePath:  get("LIPISTUDIO_FFPROBE_PATH", ""),
	}

	var err error
	if cfg.MaxUploadMB, err = parseInt(get("LIPISTUDIO_MAX_UPLOAD_MB", ""), DefaultMaxUploadMB); err != nil {
		return nil, fmt.Errorf("LIPISTUDIO_MAX_UPLOAD_MB: %w", err)
	}
	if cfg.FPS, err = parseInt(get("LIPISTUDIO_FPS", ""), DefaultFPS); err != nil {
		return nil, fmt.Errorf("LIPISTUDIO_FPS: %w", err)
	}
	if cfg.ExtractAudio, err = parseBool(get("LIPISTUDIO_EXTRACT_AUDIO", "")); err != nil {
		return nil, fmt.Errorf("LIPISTUDIO_EXTRACT_AUDIO: %w", err)
	}
	if cfg.StrictTimes, err = parseBool(get("LIPISTUDIO_STRICT_TIMES", "")); err != nil {
		return nil, fmt.Errorf("LIPISTUDIO_STRICT_TIMES: %w", err)
	}

	return cfg, nil
}

// APIKey returns the key for a provider name.
func (c *Config) APIKey(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return c.OpenAIKey
	case "gemini":
		return c.GeminiKey
	case "anthropic":
		return c.AnthropicKey
	}
	return ""
}

func parseInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
