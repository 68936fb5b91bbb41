// Package discord implements [platform.Platform] on top of a Discord voice
// channel via the bwmarrin/discordgo library. It bridges Discord's Opus-based
// voice transport and text-channel messaging with the bridge's PCM
// [platform.AudioFrame] pipeline.
//
// The platform requires an active *discordgo.Session (owned by the caller,
// typically the app composition root) and joins whichever voice channel
// [Platform.Connect] is given.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/gregcmartin/claw-voice/internal/platform"
)

// Compile-time interface assertion.
var _ platform.Platform = (*Platform)(nil)

// Platform implements [platform.Platform] using a discordgo voice connection.
//
// Platform is safe for concurrent use.
type Platform struct {
	session       *discordgo.Session
	textChannelID string
}

// New creates a new Discord Platform backed by session. The session must
// already be open (see [discordgo.Session.Open]). textChannelID is the
// fallback text channel used by [Connection.SendText] for handoff messages
// (§4.9); pass "" to disable text handoff.
func New(session *discordgo.Session, textChannelID string) *Platform {
	return &Platform{session: session, textChannelID: textChannelID}
}

// Connect joins the voice channel identified by (serverID, channelID) and
// returns an active [platform.Connection]. ctx governs the connection-setup
// phase only; once returned, the Connection lives until Disconnect is called.
func (p *Platform) Connect(ctx context.Context, serverID, channelID string) (platform.Connection, error) {
	// mute=false (we send audio), deaf=false (we receive audio).
	vc, err := p.session.ChannelVoiceJoin(serverID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	conn, err := newConnection(vc, p.session, serverID, channelID, p.textChannelID)
	if err != nil {
		_ = vc.Disconnect()
		return nil, fmt.Errorf("discord: create connection: %w", err)
	}
	return conn, nil
}
