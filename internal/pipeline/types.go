// Package pipeline implements the concurrent utterance pipeline: per-speaker
// audio capture and segmentation, dispatch of multiple in-flight brain
// requests, streaming sentence-level text-to-speech, a single serialized
// playback queue shared across tasks, barge-in cancellation, interrupt
// commands, wake-word / conversation-window gating, and handoff of in-flight
// results when the speaker leaves the channel.
package pipeline

import (
	"time"

	"github.com/gregcmartin/claw-voice/pkg/audio"
)

// Utterance is a completed span of speech for one speaker: raw PCM (16-bit
// mono), the sample rate it was captured at, the time capture started, and
// its duration. Produced once by the audio segmenter (C1) on silence
// timeout and consumed exactly once by the transcriber (C2); never mutated
// after creation.
type Utterance struct {
	SpeakerID  string
	PCM        []byte
	SampleRate int
	CapturedAt time.Time
	Duration   time.Duration
}

// Transcript is immutable text plus the utterance that produced it. Text may
// be empty when the STT provider cascade returned no speech.
type Transcript struct {
	Utterance Utterance
	Text      string
}

// Role identifies the author of a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryEntry is one turn of a per-speaker conversation.
type HistoryEntry struct {
	Role    Role
	Content string
}

// AudioSegment is an opaque playable unit — the synthesis of one sentence,
// of a whole reply when streaming TTS is disabled, or of a spoken alert
// briefing — tagged with the task that produced it. Produced by the
// synthesis pipeline (C7) and consumed exactly once by the playback queue
// (C8).
type AudioSegment struct {
	TaskID int64
	PCM    []byte
}

// AlertPriority orders alerts for delivery.
type AlertPriority int

const (
	AlertNormal AlertPriority = iota
	AlertUrgent
)

// Alert is an externally-pushed notification awaiting delivery as a voice
// briefing.
type Alert struct {
	Priority    AlertPriority
	Message     string
	FullDetails string
	Source      string
	ReceivedAt  time.Time
}

// SpeakingEvent reports a speaking-start or speaking-end transition for a
// speaker, as delivered by the voice platform.
type SpeakingEvent struct {
	SpeakerID string
	Start     bool
}

// PresenceEvent reports a voice-channel attach/detach transition for an
// arbitrary user id.
type PresenceEvent struct {
	UserID  string
	Present bool
}

// AudioFrame is a single decoded PCM frame from the voice platform.
type AudioFrame = audio.AudioFrame
