package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/gregcmartin/claw-voice/internal/platform"
)

// Compile-time interface assertion.
var _ platform.Connection = (*Connection)(nil)

const (
	inputChannelBuffer  = 64
	outputChannelBuffer = 64
	speakingChanBuffer  = 32
)

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [platform.Connection] interface. It demuxes incoming Opus packets by SSRC
// into per-participant PCM input streams, encodes outgoing PCM frames to
// Opus for transmission, and relays speaking-state transitions and
// participant join/leave events.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc            *discordgo.VoiceConnection
	session       *discordgo.Session
	guildID       string
	textChannelID string

	inputsMu sync.RWMutex
	inputs   map[string]chan platform.AudioFrame // keyed by resolved userID, or SSRC string if unresolved
	ssrcUser map[uint32]string                   // SSRC -> userID, populated from VoiceSpeakingUpdate

	output   chan platform.AudioFrame
	speaking chan platform.SpeakingEvent

	changeCb func(platform.Event)
	changeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	removeVoiceHandler    func() // removes the VoiceStateUpdate handler
	removeSpeakingHandler func() // removes the voice connection's speaking handler

	// disconnectVC is called during Disconnect to tear down the voice connection.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel.
// It starts background goroutines for receiving and sending audio.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID, voiceChannelID, textChannelID string) (*Connection, error) {
	c := &Connection{
		vc:            vc,
		session:       session,
		guildID:       guildID,
		textChannelID: textChannelID,
		inputs:        make(map[string]chan platform.AudioFrame),
		ssrcUser:      make(map[uint32]string),
		output:        make(chan platform.AudioFrame, outputChannelBuffer),
		speaking:      make(chan platform.SpeakingEvent, speakingChanBuffer),
		done:          make(chan struct{}),
		disconnectVC:  vc.Disconnect,
	}
	_ = voiceChannelID

	// Detect participant join/leave via VoiceStateUpdate on the session.
	c.removeVoiceHandler = session.AddHandler(c.handleVoiceStateUpdate)

	// Detect speaking-start/speaking-end via the voice connection's own
	// speaking update dispatch, which carries per-SSRC transitions the
	// audio segmenter (§4.1) needs to delimit utterance boundaries.
	c.removeSpeakingHandler = vc.AddHandler(c.handleSpeakingUpdate)

	go c.recvLoop()
	go c.sendLoop()

	return c, nil
}

// InputStreams returns a snapshot of the current per-participant audio channels.
// The map key is the speaker's user ID once its SSRC has been resolved, or the
// SSRC (as a string) until then; the value is the read-only input channel.
func (c *Connection) InputStreams() map[string]<-chan platform.AudioFrame {
	c.inputsMu.RLock()
	defer c.inputsMu.RUnlock()
	snap := make(map[string]<-chan platform.AudioFrame, len(c.inputs))
	for id, ch := range c.inputs {
		snap[id] = ch
	}
	return snap
}

// SpeakingUpdates returns the channel of speaking-start/speaking-end events.
func (c *Connection) SpeakingUpdates() <-chan platform.SpeakingEvent {
	return c.speaking
}

// OutputStream returns the write-only channel for assistant audio output.
// Frames written here are encoded to Opus and sent to Discord.
func (c *Connection) OutputStream() chan<- platform.AudioFrame {
	return c.output
}

// OnParticipantChange registers cb as the callback for participant join/leave events.
// Only one callback may be registered; subsequent calls replace the previous one.
func (c *Connection) OnParticipantChange(cb func(platform.Event)) {
	c.changeMu.Lock()
	defer c.changeMu.Unlock()
	c.changeCb = cb
}

// SendText posts text to the configured text channel, used by the handoff
// router (§4.9) when the designated speaker has left the voice channel.
func (c *Connection) SendText(ctx context.Context, text string) error {
	if c.textChannelID == "" {
		return fmt.Errorf("discord: no text channel configured for handoff")
	}
	_, err := c.session.ChannelMessageSend(c.textChannelID, text)
	if err != nil {
		return fmt.Errorf("discord: send text channel message: %w", err)
	}
	return nil
}

// Disconnect cleanly tears down the voice connection and stops all background
// goroutines. It is safe to call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.removeVoiceHandler != nil {
			c.removeVoiceHandler()
		}
		if c.removeSpeakingHandler != nil {
			c.removeSpeakingHandler()
		}

		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}

		c.inputsMu.Lock()
		for id, ch := range c.inputs {
			close(ch)
			delete(c.inputs, id)
		}
		c.inputsMu.Unlock()

		close(c.speaking)
	})
	return err
}

// recvLoop reads Opus packets from the Discord voice connection, demuxes them
// by SSRC, decodes Opus to PCM, and delivers AudioFrames to per-participant channels.
func (c *Connection) recvLoop() {
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			ssrc := pkt.SSRC
			ssrcStr := strconv.FormatUint(uint64(ssrc), 10)

			dec, exists := decoders[ssrc]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: failed to create opus decoder", "ssrc", ssrcStr, "error", err)
					continue
				}
				decoders[ssrc] = dec
			}

			c.inputsMu.Lock()
			key := ssrcStr
			if userID, resolved := c.ssrcUser[ssrc]; resolved && userID != "" {
				key = userID
			}
			ch, chExists := c.inputs[key]
			if !chExists {
				ch = make(chan platform.AudioFrame, inputChannelBuffer)
				c.inputs[key] = ch
			}
			c.inputsMu.Unlock()

			if !chExists {
				c.emitEvent(platform.Event{
					Type:   platform.EventJoin,
					UserID: key,
				})
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", ssrcStr, "error", err)
				continue
			}

			frame := platform.AudioFrame{
				Data:       pcm,
				SampleRate: opusSampleRate,
				Channels:   opusChannels,
			}

			select {
			case ch <- frame:
			default:
				// Channel full — drop frame rather than block.
			}
		}
	}
}

// sendLoop reads PCM AudioFrames from the output channel, converts them to
// Discord's target format (48 kHz stereo), extracts exact Opus frame-sized
// chunks, encodes them to Opus, and sends the encoded data via the Discord
// voice connection.
func (c *Connection) sendLoop() {
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: failed to create opus encoder", "error", err)
		return
	}

	conv := platform.FormatConverter{Target: platform.Format{SampleRate: opusSampleRate, Channels: opusChannels}}

	speakingSet := false

	// opusFrameBytes is the exact PCM input size for one Opus frame:
	// 960 samples/channel × 2 channels × 2 bytes/sample = 3840 bytes.
	const opusFrameBytes = opusFrameSize * opusChannels * 2

	var buf []byte

	for {
		select {
		case <-c.done:
			if speakingSet {
				c.setSpeaking(false)
			}
			return
		case frame, ok := <-c.output:
			if !ok {
				return
			}

			if !speakingSet {
				c.setSpeaking(true)
				speakingSet = true
			}

			frame = conv.Convert(frame)
			buf = append(buf, frame.Data...)

			for len(buf) >= opusFrameBytes {
				opus, eErr := enc.encode(buf[:opusFrameBytes])
				if eErr != nil {
					slog.Warn("discord: opus encode error", "error", eErr)
					buf = buf[opusFrameBytes:]
					continue
				}
				buf = buf[opusFrameBytes:]

				select {
				case c.vc.OpusSend <- opus:
				case <-c.done:
					return
				}
			}
		}
	}
}

// handleVoiceStateUpdate processes Discord VoiceStateUpdate events to detect
// participant joins and leaves for the voice channel this connection is on,
// driving C9's presence transitions (§4.9).
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != c.guildID {
		return
	}

	channelID := c.vc.ChannelID

	if vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == channelID && vsu.ChannelID != channelID {
		username := ""
		if vsu.Member != nil && vsu.Member.User != nil {
			username = vsu.Member.User.Username
		}
		c.emitEvent(platform.Event{
			Type:     platform.EventLeave,
			UserID:   vsu.UserID,
			Username: username,
		})
		return
	}

	if vsu.ChannelID == channelID && (vsu.BeforeUpdate == nil || vsu.BeforeUpdate.ChannelID != channelID) {
		username := ""
		if vsu.Member != nil && vsu.Member.User != nil {
			username = vsu.Member.User.Username
		}
		c.emitEvent(platform.Event{
			Type:     platform.EventJoin,
			UserID:   vsu.UserID,
			Username: username,
		})
	}
}

// handleSpeakingUpdate relays Discord's per-SSRC speaking-state dispatch
// (VoiceSpeakingUpdate) to the SpeakingUpdates channel. An update that
// carries a user ID records the SSRC-to-user mapping; one that does not is
// resolved through that recorded mapping.
func (c *Connection) handleSpeakingUpdate(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	userID := vs.UserID
	if userID != "" {
		c.inputsMu.Lock()
		c.ssrcUser[uint32(vs.SSRC)] = userID
		c.inputsMu.Unlock()
	} else {
		userID = c.SSRCToUserID(uint32(vs.SSRC))
	}

	select {
	case c.speaking <- platform.SpeakingEvent{UserID: userID, Speaking: vs.Speaking}:
	default:
		// Drop if the consumer is behind; speaking state is eventually
		// superseded by the next transition.
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}

// emitEvent safely invokes the registered participant change callback.
func (c *Connection) emitEvent(ev platform.Event) {
	c.changeMu.Lock()
	cb := c.changeCb
	c.changeMu.Unlock()
	if cb != nil {
		go cb(ev)
	}
}

// SSRCToUserID returns the user ID associated with the given SSRC, if known.
// Returns the numeric SSRC as a string if no mapping has been observed yet.
func (c *Connection) SSRCToUserID(ssrc uint32) string {
	c.inputsMu.RLock()
	defer c.inputsMu.RUnlock()
	userID, ok := c.ssrcUser[ssrc]
	if !ok {
		return fmt.Sprintf("%d", ssrc)
	}
	return userID
}
