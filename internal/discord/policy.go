package discord

import (
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Policy errors, surfaced to the user as localized notices.
var (
	// ErrNoVoiceChannel means the command author is not in any voice channel
	// but the command needs one.
	ErrNoVoiceChannel = errors.New("author not in a voice channel")

	// ErrWrongChannel means the command came from a text channel other than
	// the one paired by name with the author's voice channel.
	ErrWrongChannel = errors.New("command issued outside the paired text channel")
)

// guildState is the slice of discordgo.State the channel policy reads.
type guildState interface {
	Guild(guildID string) (*discordgo.Guild, error)
	Channel(channelID string) (*discordgo.Channel, error)
}

// channelPolicy pairs text channels to voice channels by name: commands for
// a voice room are only honored in the text channel sharing its name. This
// keeps multi-room guilds from steering each other's playback.
type channelPolicy struct {
	state guildState
}

// checkChannel validates the pairing between the issuing text channel and
// the author's voice channel, returning the voice channel's ID and name.
// Authors who are in no voice channel pass with an empty ID, as do guilds
// without a text channel named after the voice channel; the check only
// rejects when a paired text channel exists and the command came from
// somewhere else.
func (p *channelPolicy) checkChannel(guildID, authorID, textChannelID string) (voiceChannelID, voiceName string, err error) {
	guild, err := p.state.Guild(guildID)
	if err != nil {
		return "", "", err
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == authorID {
			voiceChannelID = vs.ChannelID
			break
		}
	}
	if voiceChannelID == "" {
		return "", "", nil
	}

	voice, err := p.state.Channel(voiceChannelID)
	if err != nil {
		return "", "", err
	}
	text, err := p.state.Channel(textChannelID)
	if err != nil {
		return "", "", err
	}
	if strings.EqualFold(voice.Name, text.Name) {
		return voiceChannelID, voice.Name, nil
	}
	if !pairedTextChannelExists(guild, voice.Name) {
		return voiceChannelID, voice.Name, nil
	}
	return voiceChannelID, voice.Name, ErrWrongChannel
}

// pairedTextChannelExists reports whether the guild has a text channel
// named after the voice channel.
func pairedTextChannelExists(guild *discordgo.Guild, voiceName string) bool {
	for _, ch := range guild.Channels {
		if ch.Type == discordgo.ChannelTypeGuildText && strings.EqualFold(ch.Name, voiceName) {
			return true
		}
	}
	return false
}
