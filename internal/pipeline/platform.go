package pipeline

import "context"

// VoicePlatform is the narrow contract the pipeline requires from a voice-chat
// provider. It deliberately differs from [github.com/gregcmartin/claw-voice/
// pkg/audio.Platform]'s continuous multi-participant mixing model: the
// pipeline owns a single serialized player (C8, see [PlaybackQueue]) and keys
// capture on speaking-start/speaking-end signals for an allow-listed speaker
// set, rather than mixing concurrent output for many participants.
//
// Implementations must be safe for concurrent use.
type VoicePlatform interface {
	// Join connects to the voice channel identified by (serverID, channelID)
	// and blocks until a ready signal is received or ctx is cancelled.
	Join(ctx context.Context, serverID, channelID string) error

	// Frames returns the channel of decoded 16-bit mono PCM frames for
	// speakerID. The channel is valid once a speaking-start event for that
	// speaker has been observed and remains open until the connection is
	// closed.
	Frames(speakerID string) <-chan AudioFrame

	// Speaking returns a channel of speaking-start/speaking-end events for
	// every speaker in the channel, regardless of allow-list membership.
	Speaking() <-chan SpeakingEvent

	// Play submits pcm (16-bit mono) for playback and blocks until the
	// platform reports the resource idle, ctx is cancelled, or [Stop] is
	// called concurrently.
	Play(ctx context.Context, pcm []byte) error

	// Stop halts any Play call currently in progress. A no-op if nothing is
	// playing.
	Stop()

	// Presence returns a channel of attach/detach transitions for arbitrary
	// user ids in the guild.
	Presence() <-chan PresenceEvent

	// PostText sends msg to the configured fallback text channel, or direct
	// messages userID when userID is non-empty.
	PostText(ctx context.Context, userID, msg string) error

	// Close disconnects from the voice channel and releases resources.
	Close() error
}
