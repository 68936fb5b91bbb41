package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gregcmartin/claw-voice/internal/pipeline"
	"github.com/gregcmartin/claw-voice/pkg/provider/tts"
)

type fakeTTSProvider struct {
	pcm []byte
	err error
}

func (f *fakeTTSProvider) Synthesize(context.Context, string, tts.VoiceProfile) ([]byte, error) {
	return f.pcm, f.err
}

type fakeSink struct {
	segments []pipeline.AudioSegment
}

func (f *fakeSink) Enqueue(seg pipeline.AudioSegment) {
	f.segments = append(f.segments, seg)
}

func TestSynthesizer_EnqueuesSegmentTaggedWithTask(t *testing.T) {
	provider := &fakeTTSProvider{pcm: []byte{1, 2, 3}}
	sink := &fakeSink{}
	s := pipeline.NewSynthesizer(provider, tts.VoiceProfile{}, sink)

	s.Sentence(context.Background(), 42, "Hello there.")

	if len(sink.segments) != 1 || sink.segments[0].TaskID != 42 {
		t.Fatalf("segments = %+v, want one segment tagged with task 42", sink.segments)
	}
}

func TestSynthesizer_SkipsPunctuationOnlySentence(t *testing.T) {
	provider := &fakeTTSProvider{pcm: []byte{1}}
	sink := &fakeSink{}
	s := pipeline.NewSynthesizer(provider, tts.VoiceProfile{}, sink)

	s.Sentence(context.Background(), 1, "... !!")

	if len(sink.segments) != 0 {
		t.Fatalf("segments = %+v, want none for punctuation-only input", sink.segments)
	}
}

func TestSynthesizer_ProviderErrorSkipsSentenceOnly(t *testing.T) {
	provider := &fakeTTSProvider{err: errors.New("all tts backends down")}
	sink := &fakeSink{}
	s := pipeline.NewSynthesizer(provider, tts.VoiceProfile{}, sink)

	s.Sentence(context.Background(), 1, "Hello there.")

	if len(sink.segments) != 0 {
		t.Fatalf("segments = %+v, want none on provider failure", sink.segments)
	}
}
