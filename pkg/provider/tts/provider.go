// Package tts defines the synthesis provider contract used by the
// conversation pipeline's synthesis component.
package tts

import "context"

// VoiceProfile identifies which voice a provider should use for synthesis.
// Not every provider needs every field; Metadata carries provider-specific
// extras (e.g. a model name) without widening the struct per provider.
type VoiceProfile struct {
	ID       string
	Name     string
	Provider string
	Metadata map[string]string
}

// Provider synthesizes one piece of text to audio in a single call. The
// synthesis pipeline (§4.7) calls this once per sentence emitted by the
// brain client, or once per whole reply when streaming TTS is disabled, so
// a Provider never needs to buffer or reorder; the caller already preserves
// per-task sentence order.
//
// Implementations must be safe for concurrent use — multiple sentences,
// possibly from different tasks, may be synthesized concurrently.
type Provider interface {
	// Synthesize returns raw 16-bit signed little-endian PCM audio for text,
	// spoken in voice. An empty return with a nil error means the provider
	// judged the input to contain no speakable content.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}
