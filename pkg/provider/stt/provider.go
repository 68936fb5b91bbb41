// Package stt defines the transcription provider contract used by the
// conversation pipeline's transcriber component.
//
// Unlike a continuous streaming recognizer, a Provider here transcribes one
// already-delimited utterance per call: the audio segmenter decides where an
// utterance begins and ends, and hands the transcriber a complete PCM buffer.
package stt

import "context"

// Config carries per-call transcription hints. All fields are optional.
type Config struct {
	// SampleRate is the sample rate in Hz of the PCM payload passed to
	// Transcribe. The HTTP providers forward it to their backend; the native
	// whisper provider ignores it and does not resample, so its input must
	// already be at whisper.cpp's 16 kHz.
	SampleRate int

	// Channels is the channel count of the PCM payload (1 = mono).
	Channels int

	// Language is a BCP-47 language code (e.g. "en"). Empty means the
	// provider's configured default.
	Language string

	// Keywords lists domain vocabulary to bias recognition towards, when the
	// provider supports it. Providers that don't support keyword boosting
	// ignore this field rather than erroring.
	Keywords []string
}

// Result is the outcome of a single one-shot transcription call.
type Result struct {
	// Text is the recognized text. Empty means no speech was detected.
	Text string

	// Confidence is the provider's self-reported confidence in [0,1], or 0
	// if the provider does not report one.
	Confidence float64
}

// Provider transcribes a complete utterance's worth of 16-bit signed
// little-endian PCM audio in a single call.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	Transcribe(ctx context.Context, pcm []byte, cfg Config) (Result, error)
}
