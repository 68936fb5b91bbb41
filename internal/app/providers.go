package app

import (
	"fmt"

	"github.com/gregcmartin/claw-voice/internal/config"
	"github.com/gregcmartin/claw-voice/internal/resilience"
	"github.com/gregcmartin/claw-voice/pkg/provider/stt"
	"github.com/gregcmartin/claw-voice/pkg/provider/stt/deepgram"
	"github.com/gregcmartin/claw-voice/pkg/provider/stt/whisper"
	"github.com/gregcmartin/claw-voice/pkg/provider/tts"
	"github.com/gregcmartin/claw-voice/pkg/provider/tts/coqui"
	"github.com/gregcmartin/claw-voice/pkg/provider/tts/elevenlabs"
)

// sessionTTSSampleRate is the PCM rate every configured TTS provider is
// asked to emit at, so the synthesis pipeline's output can be played back
// through [VoiceBridge] without per-segment resampling.
const sessionTTSSampleRate = 16000

// NewProviderRegistry returns a [config.Registry] with every STT and TTS
// provider the example pack's stack supports registered under its
// conventional name, ready for [config.Registry.CreateSTT] /
// [config.Registry.CreateTTS].
func NewProviderRegistry() *config.Registry {
	reg := config.NewRegistry()

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{}
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		return whisper.New(e.BaseURL, opts...)
	})
	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{}
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(e.BaseURL))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithOutputSampleRate(sessionTTSSampleRate)}
		return coqui.New(e.BaseURL, opts...)
	})
	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		opts := []elevenlabs.Option{elevenlabs.WithOutputFormat("pcm_16000")}
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(e.BaseURL))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})

	return reg
}

// buildSTT constructs the configured STT provider and wraps it in a
// [resilience.STTFallback] so a circuit breaker governs it even with a
// single backend configured; additional backends can be registered with
// [resilience.STTFallback.AddFallback] as they're added to ProvidersConfig.
func buildSTT(reg *config.Registry, entry config.ProviderEntry) (stt.Provider, error) {
	p, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("app: build stt provider %q: %w", entry.Name, err)
	}
	return resilience.NewSTTFallback(p, entry.Name, resilience.FallbackConfig{}), nil
}

// buildTTS constructs the configured TTS provider wrapped the same way as
// [buildSTT].
func buildTTS(reg *config.Registry, entry config.ProviderEntry) (tts.Provider, error) {
	p, err := reg.CreateTTS(entry)
	if err != nil {
		return nil, fmt.Errorf("app: build tts provider %q: %w", entry.Name, err)
	}
	return resilience.NewTTSFallback(p, entry.Name, resilience.FallbackConfig{}), nil
}
