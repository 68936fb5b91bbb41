package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/gregcmartin/claw-voice/internal/observe"
	"github.com/gregcmartin/claw-voice/pkg/provider/tts"
)

// SegmentSink receives audio segments produced by synthesis, tagged with
// the task that produced them. Implemented by [PlaybackQueue].
type SegmentSink interface {
	Enqueue(seg AudioSegment)
}

// Synthesizer implements the synthesis pipeline (C7): it turns each
// sentence emitted by the brain client into audio via the TTS provider
// cascade and pushes it into the playback queue tagged with the originating
// task.
//
// Synthesizer is safe for concurrent use.
type Synthesizer struct {
	provider tts.Provider
	voice    tts.VoiceProfile
	sink     SegmentSink
}

// NewSynthesizer constructs a [Synthesizer].
func NewSynthesizer(provider tts.Provider, voice tts.VoiceProfile, sink SegmentSink) *Synthesizer {
	return &Synthesizer{provider: provider, voice: voice, sink: sink}
}

// Sentence synthesizes one sentence for taskID and enqueues the resulting
// segment. It is a no-op when the cleaned sentence has nothing speakable
// left, and logs (without escalating) when the provider cascade fails —
// per the spec, a synthesis failure skips that sentence only.
func (s *Synthesizer) Sentence(ctx context.Context, taskID int64, sentence string) {
	cleaned := cleanSentence(sentence)
	if cleaned == "" || isPunctuationOnly(cleaned) {
		return
	}

	start := time.Now()
	pcm, err := s.provider.Synthesize(ctx, cleaned, s.voice)
	observe.DefaultMetrics().TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Warn("synthesis: provider cascade failed, skipping sentence", "task", taskID, "error", err)
		return
	}
	if len(pcm) == 0 {
		return
	}

	observe.DefaultMetrics().SentencesSynthesized.Add(ctx, 1)
	s.sink.Enqueue(AudioSegment{TaskID: taskID, PCM: pcm})
}
