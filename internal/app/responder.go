package app

import (
	"context"
	"math"
	"time"

	"github.com/gregcmartin/claw-voice/internal/pipeline"
)

// systemTaskID tags audio segments produced outside any dispatched task: the
// interrupt confirmation, the wake-only chime, and alert briefings.
const systemTaskID = 0

const (
	chimeFrequencyHz = 880.0
	chimeDuration    = 150 * time.Millisecond
	chimeFadeSamples = 160
)

// SystemResponder implements [pipeline.Responder]: it speaks short system
// utterances through the same synthesis-and-playback path as a dispatched
// task's sentences, and plays a synthesized tone for the wake-only chime
// rather than round-tripping through the TTS provider for a non-verbal cue.
type SystemResponder struct {
	synth      *pipeline.Synthesizer
	sink       pipeline.SegmentSink
	sampleRate int
}

// NewSystemResponder constructs a [SystemResponder]. sampleRate must match
// the pipeline's configured output rate so the chime tone plays at the
// right pitch and duration.
func NewSystemResponder(synth *pipeline.Synthesizer, sink pipeline.SegmentSink, sampleRate int) *SystemResponder {
	return &SystemResponder{synth: synth, sink: sink, sampleRate: sampleRate}
}

var _ pipeline.Responder = (*SystemResponder)(nil)

// Speak synthesizes and plays text. Provider failures are logged and
// swallowed by the synthesizer, matching the spec's per-sentence failure
// semantics (§7): a failed system utterance never escalates.
func (r *SystemResponder) Speak(ctx context.Context, text string) error {
	r.synth.Sentence(ctx, systemTaskID, text)
	return nil
}

// Chime plays a short synthesized tone acknowledging that the assistant is
// listening, without incurring a TTS provider round trip for a non-verbal
// cue.
func (r *SystemResponder) Chime(ctx context.Context) error {
	r.sink.Enqueue(pipeline.AudioSegment{TaskID: systemTaskID, PCM: tone(chimeFrequencyHz, chimeDuration, r.sampleRate)})
	return nil
}

// tone generates a single sine-wave tone as 16-bit mono PCM at sampleRate,
// with a short linear fade in/out to avoid a click at the edges.
func tone(freqHz float64, dur time.Duration, sampleRate int) []byte {
	n := int(dur.Seconds() * float64(sampleRate))
	if n <= 0 || sampleRate <= 0 {
		return nil
	}
	buf := make([]byte, n*2)
	fade := chimeFadeSamples
	if fade > n/2 {
		fade = n / 2
	}
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		amp := 0.3
		if fade > 0 {
			if i < fade {
				amp *= float64(i) / float64(fade)
			} else if i > n-fade {
				amp *= float64(n-i) / float64(fade)
			}
		}
		sample := int16(amp * 32767 * math.Sin(2*math.Pi*freqHz*t))
		buf[i*2] = byte(sample)
		buf[i*2+1] = byte(sample >> 8)
	}
	return buf
}
