// Package discord provides an [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It transcodes
// remote media streams to PCM with ffmpeg and encodes them to Opus for
// Discord's voice transport.
//
// The platform requires an active *discordgo.Session (owned by the bot
// layer). Each call to [Platform.Connect] joins the specified voice channel
// and returns a [Connection] that plays one track at a time.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/troubadourbot/troubadour/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] using discordgo voice connections.
//
// Platform is safe for concurrent use.
type Platform struct {
	session    *discordgo.Session
	ffmpegPath string
}

// New creates a new Discord Platform for the given session. ffmpegPath is
// the transcoder executable; pass "ffmpeg" to resolve it from PATH.
func New(session *discordgo.Session, ffmpegPath string) *Platform {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Platform{
		session:    session,
		ffmpegPath: ffmpegPath,
	}
}

// Connect joins the voice channel identified by guildID and channelID and
// returns an active [audio.Connection]. The supplied ctx governs the
// connection-setup phase only; once the Connection is returned it lives
// until [Connection.Disconnect] is called.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// mute=false (we send audio), deaf=true (we never receive).
	vc, err := p.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}
	return newConnection(vc, p.ffmpegPath), nil
}
