package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper", "whisper-native"},
	"tts": {"elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path, layers recognized
// environment variables on top, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// lookupFunc matches the signature of os.LookupEnv, allowing tests to supply
// a fake environment.
type lookupFunc func(string) (string, bool)

// ApplyEnv overlays recognized environment variables onto cfg. Values present
// in the environment always win over whatever the YAML tree set.
func ApplyEnv(cfg *Config, lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		if v == "" {
			*dst = nil
			return
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
	millis := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Millisecond
		}
	}

	str("VOICE_PLATFORM_TOKEN", &cfg.Platform.Token)
	str("SERVER_ID", &cfg.Platform.ServerID)
	str("VOICE_CHANNEL_ID", &cfg.Platform.VoiceChannelID)
	str("TEXT_CHANNEL_ID", &cfg.Platform.TextChannelID)
	list("ALLOWED_USERS", &cfg.Platform.AllowedUsers)

	str("BRAIN_URL", &cfg.Brain.URL)
	str("BRAIN_TOKEN", &cfg.Brain.Token)
	str("BRAIN_MODEL", &cfg.Brain.Model)

	str("STT_PROVIDER", &cfg.Providers.STT.Name)
	str("TTS_PROVIDER", &cfg.Providers.TTS.Name)

	boolean("WAKE_WORD_ENABLED", &cfg.Gate.WakeWordEnabled)
	list("WAKE_WORD_PHRASES", &cfg.Gate.WakeWordPhrases)
	millis("CONVERSATION_WINDOW_MS", &cfg.Gate.ConversationWindow)

	boolean("STREAMING_TTS_ENABLED", &cfg.Session.StreamingTTSEnabled)
	integer("HISTORY_CAP", &cfg.Session.HistoryCap)
	millis("CONVERSATION_IDLE_TTL_MS", &cfg.Session.IdleTTL)

	integer("ALERT_WEBHOOK_PORT", &cfg.Alerts.WebhookPort)
	str("ALERT_WEBHOOK_TOKEN", &cfg.Alerts.WebhookToken)

	str("BIND_ADDRESS", &cfg.Server.BindAddress)

	str("SESSION_USER", &cfg.Session.SessionUser)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Platform.Token == "" {
		errs = append(errs, errors.New("platform.token is required"))
	}
	if cfg.Platform.VoiceChannelID == "" {
		errs = append(errs, errors.New("platform.voice_channel_id is required"))
	}

	if cfg.Brain.URL == "" {
		errs = append(errs, errors.New("brain.url is required"))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}

	if cfg.Gate.WakeWordEnabled && len(cfg.Gate.WakeWordPhrases) == 0 {
		errs = append(errs, errors.New("gate.wake_word_phrases must not be empty when gate.wake_word_enabled is true"))
	}
	if cfg.Gate.ConversationWindow < 0 {
		errs = append(errs, errors.New("gate.conversation_window_ms must not be negative"))
	}

	if cfg.Session.HistoryCap < 0 {
		errs = append(errs, errors.New("session.history_cap must not be negative"))
	}
	if cfg.Session.IdleTTL < 0 {
		errs = append(errs, errors.New("session.idle_ttl_ms must not be negative"))
	}

	if cfg.Alerts.WebhookPort != 0 && (cfg.Alerts.WebhookPort < 1 || cfg.Alerts.WebhookPort > 65535) {
		errs = append(errs, fmt.Errorf("alerts.webhook_port %d is out of range [1, 65535]", cfg.Alerts.WebhookPort))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
