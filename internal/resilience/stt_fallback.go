package resilience

import (
	"context"

	"github.com/gregcmartin/claw-voice/internal/observe"
	"github.com/gregcmartin/claw-voice/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe tries each registered provider in order, starting with the
// primary, until one succeeds.
func (f *STTFallback) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (stt.Result, error) {
	return ExecuteWithResult(ctx, "stt", f.group, func(p stt.Provider) (stt.Result, error) {
		return p.Transcribe(ctx, pcm, cfg)
	})
}
