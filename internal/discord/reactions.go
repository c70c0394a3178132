package discord

import (
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/troubadourbot/troubadour/internal/player"
)

const (
	emojiConfirm = "✅"
	emojiReject  = "❌"
)

// awaitConfirmation posts prompt with confirm/reject reactions and blocks
// until a user reacts or the timeout passes. Reactions from other users
// count; the prompt is a channel-wide question, not a per-user one.
func (b *Bot) awaitConfirmation(channelID, prompt string) (confirmed, timedOut bool, err error) {
	msg, err := b.session.ChannelMessageSend(channelID, prompt)
	if err != nil {
		return false, false, err
	}
	for _, emoji := range []string{emojiConfirm, emojiReject} {
		if err := b.session.MessageReactionAdd(channelID, msg.ID, emoji); err != nil {
			slog.Warn("failed to add confirmation reaction", "channel", channelID, "err", err)
		}
	}

	confirmed, timedOut = b.waitConfirmation(msg.ID)
	return confirmed, timedOut, nil
}

// waitConfirmation blocks until a confirm or reject reaction for messageID
// arrives or the confirmation timeout passes. A timeout reads as a
// rejection.
func (b *Bot) waitConfirmation(messageID string) (confirmed, timedOut bool) {
	ch := make(chan bool, 1)
	b.confirmMu.Lock()
	b.confirms[messageID] = ch
	b.confirmMu.Unlock()
	defer func() {
		b.confirmMu.Lock()
		delete(b.confirms, messageID)
		b.confirmMu.Unlock()
	}()

	timer := time.NewTimer(b.confirmTimeout)
	defer timer.Stop()
	select {
	case confirmed = <-ch:
		return confirmed, false
	case <-timer.C:
		return false, true
	case <-b.done:
		return false, true
	}
}

// deliverConfirmation routes a reaction to a pending confirmation prompt.
// It reports whether the reaction belonged to one.
func (b *Bot) deliverConfirmation(messageID, emoji string) bool {
	if emoji != emojiConfirm && emoji != emojiReject {
		return false
	}
	b.confirmMu.Lock()
	ch, ok := b.confirms[messageID]
	b.confirmMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- emoji == emojiConfirm:
	default:
	}
	return true
}

func (b *Bot) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}
	emoji := r.Emoji.Name

	if b.deliverConfirmation(r.MessageID, emoji) {
		return
	}
	if r.GuildID == "" {
		return
	}

	eng, ok := b.registry.Get(r.GuildID)
	if !ok {
		return
	}
	display, ok := eng.DisplayRef()
	if !ok || display.MessageID != r.MessageID {
		return
	}

	_, strs, _ := b.snapshot()
	switch emoji {
	case player.ReactionPrevious:
		if err := eng.Previous(); err != nil {
			slog.Debug("previous via reaction rejected", "guild", r.GuildID, "err", err)
		}
	case player.ReactionSkip:
		if err := eng.Skip(); err != nil {
			slog.Debug("skip via reaction rejected", "guild", r.GuildID, "err", err)
		}
	case player.ReactionPlayPause:
		if _, err := eng.PauseToggle(); err != nil {
			slog.Debug("pause toggle via reaction rejected", "guild", r.GuildID, "err", err)
		}
	case player.ReactionStop:
		eng.Stop()
		if err := b.msgr.SendText(r.ChannelID, strs.Get("playback_stopped_emoji")); err != nil {
			slog.Warn("failed to send stop notice", "channel", r.ChannelID, "err", err)
		}
		return
	default:
		return
	}

	// Remove the user's mark so the controls stay pressable.
	if err := s.MessageReactionRemove(r.ChannelID, r.MessageID, emoji, r.UserID); err != nil {
		slog.Debug("failed to remove control reaction", "channel", r.ChannelID, "err", err)
	}
}
