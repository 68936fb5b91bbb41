package config_test

import (
	"strings"
	"testing"

	"github.com/gregcmartin/claw-voice/internal/config"
)

const minimalValidYAML = `
platform:
  token: tok
  voice_channel_id: vc1
brain:
  url: http://localhost:8000
providers:
  stt:
    name: deepgram
  tts:
    name: elevenlabs
`

func TestValidate_WakeWordEnabledRequiresPhrases(t *testing.T) {
	t.Parallel()
	yaml := minimalValidYAML + `
gate:
  wake_word_enabled: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error when wake word enabled with no phrases")
	}
	if !strings.Contains(err.Error(), "wake_word_phrases") {
		t.Errorf("error should mention wake_word_phrases, got: %v", err)
	}
}

func TestValidate_UnknownProviderNameWarnsNotErrors(t *testing.T) {
	t.Parallel()
	yaml := `
platform:
  token: tok
  voice_channel_id: vc1
brain:
  url: http://localhost:8000
providers:
  stt:
    name: some-custom-provider
  tts:
    name: elevenlabs
`
	// Unknown provider names only log a warning; they must not fail validation.
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error for unrecognized (but present) provider name: %v", err)
	}
}

func TestValidate_InvalidWebhookPort(t *testing.T) {
	t.Parallel()
	yaml := minimalValidYAML + `
alerts:
  webhook_port: 99999
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range webhook_port")
	}
}

func TestValidate_MinimalConfigIsValid(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalValidYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyEnv_OverridesYAML(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalValidYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Brain.URL != "http://localhost:8000" {
		t.Fatalf("precondition failed: brain.url = %q", cfg.Brain.URL)
	}

	env := map[string]string{
		"BRAIN_URL":         "http://override:9000",
		"WAKE_WORD_ENABLED": "true",
		"WAKE_WORD_PHRASES": "hey there, computer",
		"ALLOWED_USERS":     "1,2,3",
		"HISTORY_CAP":       "42",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg2 := *cfg
	config.ApplyEnv(&cfg2, lookup)

	if cfg2.Brain.URL != "http://override:9000" {
		t.Errorf("Brain.URL = %q, want override", cfg2.Brain.URL)
	}
	if !cfg2.Gate.WakeWordEnabled {
		t.Error("Gate.WakeWordEnabled = false, want true")
	}
	if len(cfg2.Gate.WakeWordPhrases) != 2 {
		t.Errorf("Gate.WakeWordPhrases = %v, want 2 entries", cfg2.Gate.WakeWordPhrases)
	}
	if len(cfg2.Platform.AllowedUsers) != 3 {
		t.Errorf("Platform.AllowedUsers = %v, want 3 entries", cfg2.Platform.AllowedUsers)
	}
	if cfg2.Session.HistoryCap != 42 {
		t.Errorf("Session.HistoryCap = %d, want 42", cfg2.Session.HistoryCap)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	sttNames := config.ValidProviderNames["stt"]
	found := false
	for _, n := range sttNames {
		if n == "deepgram" {
			found = true
		}
	}
	if !found {
		t.Error(`ValidProviderNames["stt"] should contain "deepgram"`)
	}
}
