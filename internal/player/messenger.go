package player

import "github.com/bwmarrin/discordgo"

// Messenger is the outbound message surface the player needs: plain
// notices, the now-playing embed, and its reaction buttons. The discord bot
// layer provides the real implementation; tests use a recording mock.
//
// Implementations must be safe for concurrent use.
type Messenger interface {
	// SendText posts a plain text notice to the channel.
	SendText(channelID, content string) error

	// SendEmbed posts an embed and returns a reference to the new message.
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) (MessageRef, error)

	// EditEmbed replaces the embed of an existing message. Returns an error
	// wrapping [ErrMessageGone] when the message no longer exists.
	EditEmbed(ref MessageRef, embed *discordgo.MessageEmbed) error

	// DeleteMessage removes a message. Deleting an already-deleted message
	// returns an error wrapping [ErrMessageGone].
	DeleteMessage(ref MessageRef) error

	// AddReaction adds a reaction emoji to a message, creating the button
	// surface of the now-playing display.
	AddReaction(ref MessageRef, emoji string) error
}
