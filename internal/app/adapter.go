// Package app wires the pipeline's components (C1-C10) into a runnable
// voice-bridge session: a concrete [pipeline.VoicePlatform] adapter over the
// lower-level [platform.Platform], a system [pipeline.Responder], and the
// composition root that starts and stops the whole session.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gregcmartin/claw-voice/internal/pipeline"
	"github.com/gregcmartin/claw-voice/internal/platform"
)

// playFrameInterval is the pacing granularity [VoiceBridge.Play] writes
// output chunks at, matched to Discord's 20 ms Opus frame size so the
// underlying connection's send loop never starves or backs up.
const playFrameInterval = 20 * time.Millisecond

// VoiceBridge adapts a [platform.Platform]/[platform.Connection] pair — a
// continuous multi-participant transport with no notion of "done playing" —
// to the pipeline's narrower [pipeline.VoicePlatform] contract, which models
// a single serialized player and blocking Play calls. sampleRate must match
// the sample rate the configured TTS provider is set to emit; PCM handed to
// Play is paced and written to the connection's output stream unconverted,
// relying on [platform.FormatConverter] inside the connection to resample
// for the wire format.
//
// VoiceBridge is safe for concurrent use.
type VoiceBridge struct {
	platform   platform.Platform
	sampleRate int

	mu       sync.Mutex
	conn     platform.Connection
	relays   map[string]chan pipeline.AudioFrame
	playCancel context.CancelFunc

	presence chan pipeline.PresenceEvent
	speaking chan pipeline.SpeakingEvent

	disconnectMu sync.Mutex
	onDisconnect func()
}

// NewVoiceBridge constructs a [VoiceBridge]. sampleRate is the PCM rate of
// audio passed to Play (the configured TTS provider's output rate).
func NewVoiceBridge(p platform.Platform, sampleRate int) *VoiceBridge {
	return &VoiceBridge{
		platform:   p,
		sampleRate: sampleRate,
		relays:     make(map[string]chan pipeline.AudioFrame),
		presence:   make(chan pipeline.PresenceEvent, 32),
		speaking:   make(chan pipeline.SpeakingEvent, 64),
	}
}

var _ pipeline.VoicePlatform = (*VoiceBridge)(nil)

// Join connects to the voice channel and starts the background relays that
// translate the connection's presence and speaking events into the
// pipeline's vocabulary.
func (b *VoiceBridge) Join(ctx context.Context, serverID, channelID string) error {
	conn, err := b.platform.Connect(ctx, serverID, channelID)
	if err != nil {
		return fmt.Errorf("app: join voice channel: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	conn.OnParticipantChange(func(ev platform.Event) {
		select {
		case b.presence <- pipeline.PresenceEvent{UserID: ev.UserID, Present: ev.Type == platform.EventJoin}:
		default:
		}
	})
	go b.relaySpeaking(conn)
	return nil
}

func (b *VoiceBridge) relaySpeaking(conn platform.Connection) {
	for ev := range conn.SpeakingUpdates() {
		select {
		case b.speaking <- pipeline.SpeakingEvent{SpeakerID: ev.UserID, Start: ev.Speaking}:
		default:
		}
	}
	// SpeakingUpdates only closes when the connection tears down
	// (Disconnect), which is also Discord's only signal for an unrequested
	// drop — there is no separate "connection lost" event.
	b.disconnectMu.Lock()
	cb := b.onDisconnect
	b.disconnectMu.Unlock()
	if cb != nil {
		cb()
	}
}

// SetOnDisconnect registers cb to run when the underlying connection tears
// down, whether by an explicit [VoiceBridge.Close] or an unrequested drop.
// Used to drive [Reconnector.NotifyDisconnect].
func (b *VoiceBridge) SetOnDisconnect(cb func()) {
	b.disconnectMu.Lock()
	b.onDisconnect = cb
	b.disconnectMu.Unlock()
}

func (b *VoiceBridge) connection() platform.Connection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

// Frames returns a converted, per-speaker frame channel, lazily relaying
// from the underlying connection's input stream on first request. Returns
// nil if the connection has no stream for speakerID yet.
func (b *VoiceBridge) Frames(speakerID string) <-chan pipeline.AudioFrame {
	conn := b.connection()
	if conn == nil {
		return nil
	}

	b.mu.Lock()
	if ch, ok := b.relays[speakerID]; ok {
		b.mu.Unlock()
		return ch
	}
	b.mu.Unlock()

	streams := conn.InputStreams()
	src, ok := streams[speakerID]
	if !ok {
		return nil
	}

	out := make(chan pipeline.AudioFrame, 64)
	b.mu.Lock()
	b.relays[speakerID] = out
	b.mu.Unlock()

	go func() {
		defer close(out)
		for frame := range src {
			out <- pipeline.AudioFrame{Data: frame.Data, SampleRate: frame.SampleRate, Channels: frame.Channels}
		}
	}()
	return out
}

// Speaking returns the channel of speaking-start/speaking-end events for
// every speaker on the channel.
func (b *VoiceBridge) Speaking() <-chan pipeline.SpeakingEvent {
	return b.speaking
}

// Presence returns the channel of attach/detach transitions.
func (b *VoiceBridge) Presence() <-chan pipeline.PresenceEvent {
	return b.presence
}

// Play paces pcm into playFrameInterval-sized chunks and writes them to the
// connection's output stream in real time, blocking until every chunk has
// been accepted, ctx is cancelled, or [Stop] is called. The connection has
// no "playback finished" signal of its own, so "done" here means "written",
// which is the adapter's definition of idle.
func (b *VoiceBridge) Play(ctx context.Context, pcm []byte) error {
	conn := b.connection()
	if conn == nil {
		return fmt.Errorf("app: play: not connected")
	}

	playCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.playCancel = cancel
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.playCancel = nil
		b.mu.Unlock()
		cancel()
	}()

	chunkBytes := chunkSizeBytes(b.sampleRate, playFrameInterval)
	if chunkBytes <= 0 {
		chunkBytes = len(pcm)
	}

	out := conn.OutputStream()
	ticker := time.NewTicker(playFrameInterval)
	defer ticker.Stop()

	for offset := 0; offset < len(pcm); offset += chunkBytes {
		end := offset + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		frame := platform.AudioFrame{Data: pcm[offset:end], SampleRate: b.sampleRate, Channels: 1}

		// The first chunk is written immediately; subsequent chunks wait
		// for the pacing ticker so writes track real playback time instead
		// of draining the whole segment into the output channel at once.
		if offset > 0 {
			select {
			case <-playCtx.Done():
				return playCtx.Err()
			case <-ticker.C:
			}
		}

		select {
		case out <- frame:
		case <-playCtx.Done():
			return playCtx.Err()
		}
	}
	return nil
}

// Stop cancels any Play call currently in progress.
func (b *VoiceBridge) Stop() {
	b.mu.Lock()
	cancel := b.playCancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// PostText sends msg via the connection's text sink.
func (b *VoiceBridge) PostText(ctx context.Context, userID, msg string) error {
	conn := b.connection()
	if conn == nil {
		return fmt.Errorf("app: post text: not connected")
	}
	return conn.SendText(ctx, msg)
}

// Close disconnects the underlying connection.
func (b *VoiceBridge) Close() error {
	conn := b.connection()
	if conn == nil {
		return nil
	}
	return conn.Disconnect()
}

// chunkSizeBytes returns the number of 16-bit mono PCM bytes in one interval
// at sampleRate, rounded down to an even byte count.
func chunkSizeBytes(sampleRate int, interval time.Duration) int {
	samples := int(float64(sampleRate) * interval.Seconds())
	return samples * 2
}
