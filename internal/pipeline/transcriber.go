package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gregcmartin/claw-voice/internal/transcript"
	"github.com/gregcmartin/claw-voice/pkg/provider/stt"
)

// Transcriber implements the transcriber (C2): it hands an utterance's PCM
// to the configured STT provider cascade, applies the vocabulary-correction
// pass to the result, and drops utterances that produce no usable text.
//
// Transcriber is safe for concurrent use provided the underlying
// [stt.Provider] and [transcript.Corrector] are.
type Transcriber struct {
	provider   stt.Provider
	corrector  transcript.Corrector
	vocabulary []string
	sttConfig  stt.Config
}

// NewTranscriber constructs a [Transcriber]. corrector may be nil, in which
// case STT output passes through uncorrected. vocabulary is also passed to
// the STT provider as a keyword-boost hint, when the provider supports it.
func NewTranscriber(provider stt.Provider, corrector transcript.Corrector, vocabulary []string, language string) *Transcriber {
	return &Transcriber{
		provider:   provider,
		corrector:  corrector,
		vocabulary: vocabulary,
		sttConfig: stt.Config{
			Language: language,
			Keywords: vocabulary,
		},
	}
}

// Transcribe runs u through the STT provider cascade and the vocabulary
// corrector. It returns ok=false when every provider in the cascade failed
// or the recognized text is empty or whitespace-only — callers drop the
// utterance in either case, with no distinction made between them.
func (t *Transcriber) Transcribe(ctx context.Context, u Utterance) (Transcript, bool) {
	cfg := t.sttConfig
	cfg.SampleRate = u.SampleRate
	cfg.Channels = 1

	result, err := t.provider.Transcribe(ctx, u.PCM, cfg)
	if err != nil {
		slog.Warn("transcriber: all STT providers failed", "speaker", u.SpeakerID, "error", err)
		return Transcript{}, false
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return Transcript{}, false
	}

	if t.corrector != nil {
		corrected := t.corrector.Correct(text, t.vocabulary)
		text = corrected.Text
		for _, sub := range corrected.Substitutions {
			slog.Debug("transcriber: vocabulary correction applied",
				"speaker", u.SpeakerID, "original", sub.Original, "corrected", sub.Corrected, "confidence", sub.Confidence)
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Transcript{}, false
	}

	return Transcript{Utterance: u, Text: text}, true
}
