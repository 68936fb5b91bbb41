// Package config provides the configuration schema, loader, and provider
// registry for the voice bridge.
package config

import (
	"log/slog"
	"time"
)

// Config is the root configuration structure for the voice bridge. It is
// typically loaded from a YAML file using [Load] or [LoadFromReader], with
// environment variables layered on top via [ApplyEnv].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Platform  PlatformConfig  `yaml:"platform"`
	Brain     BrainConfig     `yaml:"brain"`
	Providers ProvidersConfig `yaml:"providers"`
	Gate      GateConfig      `yaml:"gate"`
	Session   SessionConfig   `yaml:"session"`
	Alerts    AlertsConfig    `yaml:"alerts"`
}

// LogLevel controls logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognized log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// SlogLevel converts l to the equivalent [slog.Level], defaulting to
// slog.LevelInfo for the empty level.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ServerConfig holds network and logging settings for the bridge process.
type ServerConfig struct {
	// BindAddress is the TCP address the alert-ingress HTTP server listens
	// on (e.g., ":8080"). Overridden by BIND_ADDRESS.
	BindAddress string `yaml:"bind_address"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects "text" or "json" slog output.
	LogFormat string `yaml:"log_format"`
}

// PlatformConfig identifies which voice channel, text channel, and users the
// bridge serves.
type PlatformConfig struct {
	// Token authenticates the bridge against the voice platform. Overridden
	// by VOICE_PLATFORM_TOKEN.
	Token string `yaml:"token"`

	// ServerID is the guild/server identifier to join. Overridden by SERVER_ID.
	ServerID string `yaml:"server_id"`

	// VoiceChannelID is the voice channel to join. Overridden by VOICE_CHANNEL_ID.
	VoiceChannelID string `yaml:"voice_channel_id"`

	// TextChannelID receives handoff messages while the assistant has no
	// listener in the voice channel. Overridden by TEXT_CHANNEL_ID.
	TextChannelID string `yaml:"text_channel_id"`

	// AllowedUsers restricts which platform user IDs may address the
	// assistant. An empty list admits no one. Overridden by ALLOWED_USERS
	// (comma-separated).
	AllowedUsers []string `yaml:"allowed_users"`
}

// BrainConfig configures the chat-completions endpoint the bridge forwards
// transcripts to.
type BrainConfig struct {
	// URL is the base URL of the OpenAI-compatible chat-completions
	// endpoint. Overridden by BRAIN_URL.
	URL string `yaml:"url"`

	// Token authenticates requests to the brain endpoint. Overridden by
	// BRAIN_TOKEN.
	Token string `yaml:"token"`

	// Model selects the model name sent in each request. Overridden by
	// BRAIN_MODEL.
	Model string `yaml:"model"`
}

// ProvidersConfig declares which provider implementation to use for STT and
// TTS. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by STT/TTS providers.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepgram",
	// "coqui"). Overridden by STT_PROVIDER / TTS_PROVIDER.
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Leave empty to
	// use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-3").
	Model string `yaml:"model"`

	// VoiceID selects the default synthesis voice for TTS providers.
	VoiceID string `yaml:"voice_id"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// GateConfig controls wake-word detection and the conversation window.
type GateConfig struct {
	// WakeWordEnabled turns on wake-word gating. When false, every
	// utterance from an allowed user is treated as addressed to the
	// assistant. Overridden by WAKE_WORD_ENABLED.
	WakeWordEnabled bool `yaml:"wake_word_enabled"`

	// WakeWordPhrases lists phrases that open the conversation window.
	// Overridden by WAKE_WORD_PHRASES (comma-separated).
	WakeWordPhrases []string `yaml:"wake_word_phrases"`

	// ConversationWindow is how long after the assistant last spoke (or
	// after wake-word detection) a follow-up utterance is still considered
	// addressed to the assistant without repeating the wake word.
	// Overridden by CONVERSATION_WINDOW_MS.
	ConversationWindow time.Duration `yaml:"conversation_window_ms"`
}

// SessionConfig bounds conversation history and per-task synthesis behavior.
type SessionConfig struct {
	// SessionUser names the identity the bridge presents to the brain
	// endpoint as the message author. Overridden by SESSION_USER.
	SessionUser string `yaml:"session_user"`

	// HistoryCap is the configured maximum number of turns retained per
	// conversation. Overridden by HISTORY_CAP. The task manager does not
	// read this value: it always keeps at most 40 entries per speaker.
	HistoryCap int `yaml:"history_cap"`

	// IdleTTL is the configured time a conversation may sit without activity
	// before it is dropped. Overridden by CONVERSATION_IDLE_TTL_MS. The task
	// manager does not read this value: it always prunes conversations idle
	// for more than 30 minutes.
	IdleTTL time.Duration `yaml:"idle_ttl_ms"`

	// StreamingTTSEnabled synthesizes and enqueues each sentence as soon as
	// it is extracted from the brain's streamed response, instead of
	// waiting for the full response. Overridden by STREAMING_TTS_ENABLED.
	StreamingTTSEnabled bool `yaml:"streaming_tts_enabled"`
}

// AlertsConfig configures the alert-ingress HTTP server and inbox.
type AlertsConfig struct {
	// WebhookPort is the port the alert-ingress server listens on.
	// Overridden by ALERT_WEBHOOK_PORT.
	WebhookPort int `yaml:"webhook_port"`

	// WebhookToken authenticates inbound POST /alert requests. Overridden
	// by ALERT_WEBHOOK_TOKEN.
	WebhookToken string `yaml:"webhook_token"`

	// Capacity is the configured maximum number of queued alerts. The alert
	// inbox does not read this value: it always holds at most 50 alerts,
	// evicting the oldest normal-priority alert first when full.
	Capacity int `yaml:"capacity"`

	// TTL is the configured time an undelivered alert remains eligible for
	// delivery. The alert inbox does not read this value: it always drops
	// undelivered alerts after 4 hours.
	TTL time.Duration `yaml:"ttl_ms"`
}
