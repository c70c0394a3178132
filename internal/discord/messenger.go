package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/troubadourbot/troubadour/internal/player"
)

// sessionMessenger implements player.Messenger on a live discordgo session.
type sessionMessenger struct {
	session *discordgo.Session
}

var _ player.Messenger = (*sessionMessenger)(nil)

func (m *sessionMessenger) SendText(channelID, content string) error {
	_, err := m.session.ChannelMessageSend(channelID, content)
	return err
}

func (m *sessionMessenger) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (player.MessageRef, error) {
	msg, err := m.session.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		return player.MessageRef{}, err
	}
	return player.MessageRef{ChannelID: channelID, MessageID: msg.ID}, nil
}

func (m *sessionMessenger) EditEmbed(ref player.MessageRef, embed *discordgo.MessageEmbed) error {
	_, err := m.session.ChannelMessageEditEmbed(ref.ChannelID, ref.MessageID, embed)
	return wrapGone(err)
}

func (m *sessionMessenger) DeleteMessage(ref player.MessageRef) error {
	return wrapGone(m.session.ChannelMessageDelete(ref.ChannelID, ref.MessageID))
}

func (m *sessionMessenger) AddReaction(ref player.MessageRef, emoji string) error {
	return m.session.MessageReactionAdd(ref.ChannelID, ref.MessageID, emoji)
}

// wrapGone translates Discord's unknown-message responses into
// player.ErrMessageGone so the engine and progress reporter can tell a
// deleted display apart from transient API failures.
func wrapGone(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil && rest.Message.Code == discordgo.ErrCodeUnknownMessage {
			return fmt.Errorf("%w: %v", player.ErrMessageGone, err)
		}
		if rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %v", player.ErrMessageGone, err)
		}
	}
	return err
}
