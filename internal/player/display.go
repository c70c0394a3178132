package player

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/troubadourbot/troubadour/internal/config"
	"github.com/troubadourbot/troubadour/internal/resolver"
)

// Reaction emojis forming the control surface of the now-playing display.
const (
	ReactionPrevious  = "⏮️"
	ReactionSkip      = "⏭️"
	ReactionPlayPause = "⏯️"
	ReactionStop      = "⏹️"
)

// ControlReactions lists the reaction buttons in the order they are added.
var ControlReactions = []string{ReactionPrevious, ReactionSkip, ReactionPlayPause, ReactionStop}

const (
	nowPlayingColor = 0x1DB954 // spotify green, as close as embeds get
	barSegments     = 20
	barFilled       = "▰"
	barEmpty        = "▱"
)

// nowPlayingEmbed builds the initial now-playing display for a freshly
// started track.
func nowPlayingEmbed(strs config.Strings, track resolver.PlayableTrack, footer string) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       strs.Get("now_playing_title"),
		Description: trackLink(track),
		Color:       nowPlayingColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: strs.Get("duration_field"), Value: formatClock(track.Duration), Inline: true},
		},
	}
	if track.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: track.Thumbnail}
	}
	if footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	return e
}

// progressEmbed builds the periodic update of the now-playing display,
// with an elapsed/total clock and a progress bar. A paused track keeps its
// frozen elapsed time and gets the paused title.
func progressEmbed(strs config.Strings, track resolver.PlayableTrack, footer string, elapsed time.Duration, paused bool) *discordgo.MessageEmbed {
	titleKey := "now_playing_title"
	if paused {
		titleKey = "now_playing_paused_title"
	}
	fraction := 0.0
	if track.Duration > 0 {
		fraction = min(elapsed.Seconds()/track.Duration.Seconds(), 1.0)
	}
	e := &discordgo.MessageEmbed{
		Title:       strs.Get(titleKey),
		Description: trackLink(track),
		Color:       nowPlayingColor,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   strs.Get("duration_field"),
				Value:  formatClock(elapsed) + " / " + formatClock(track.Duration),
				Inline: true,
			},
			{
				Name:  strs.Get("progress_field"),
				Value: renderBar(fraction),
			},
		},
	}
	if track.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: track.Thumbnail}
	}
	if footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	return e
}

func trackLink(track resolver.PlayableTrack) string {
	if track.PageURL == "" {
		return "**" + track.Title + "**"
	}
	return fmt.Sprintf("[**%s**](%s)", track.Title, track.PageURL)
}

// renderBar renders fraction as a 20-segment bar with a percentage suffix,
// e.g. "▰▰▰▰▰▰▰▰▱▱▱▱▱▱▱▱▱▱▱▱ 42%".
func renderBar(fraction float64) string {
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * barSegments)
	if filled > barSegments {
		filled = barSegments
	}
	return strings.Repeat(barFilled, filled) +
		strings.Repeat(barEmpty, barSegments-filled) +
		fmt.Sprintf(" %d%%", int(fraction*100))
}

// formatClock renders a duration as m:ss; hours roll into the minutes.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
