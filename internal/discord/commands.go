package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/troubadourbot/troubadour/internal/config"
	"github.com/troubadourbot/troubadour/internal/player"
	"github.com/troubadourbot/troubadour/internal/resolver"
)

// playlistConfirmTimeout bounds how long a "load the whole playlist?"
// prompt waits for a reaction. A timeout behaves like a rejection.
const playlistConfirmTimeout = 30 * time.Second

// expandTimeout bounds playlist expansion against the metadata backends.
const expandTimeout = 60 * time.Second

func (b *Bot) registerCommands() {
	cfg, _, _ := b.snapshot()
	bind := func(key string, handler HandlerFunc) {
		name, aliases := cfg.CommandInfo(key)
		b.router.Register(handler, append([]string{name}, aliases...)...)
	}
	bind("play", b.handlePlay)
	bind("stop", b.handleStop)
	bind("skip", b.handleSkip)
	bind("previous", b.handlePrevious)
	bind("pause", b.handlePause)
	bind("resume", b.handleResume)
	bind("volume", b.handleVolume)
	bind("queue", b.handleQueue)
	bind("loop", b.handleLoop)
	bind("help", b.handleHelp)
	b.router.SetNotFound(b.handleNotFound)
}

// notify sends a plain localized notice to the command's channel.
func (b *Bot) notify(ctx *CommandContext, content string) {
	if err := b.msgr.SendText(ctx.ChannelID, content); err != nil {
		slog.Warn("failed to send notice", "channel", ctx.ChannelID, "err", err)
	}
}

func (b *Bot) recordCommand(command string, err error) {
	if b.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	b.metrics.RecordCommand(context.Background(), command, status)
}

// allowedChannel enforces the channel pairing policy for every command and
// reports the author's voice channel, which is empty when the author is not
// in one. A failed check notifies the user and returns false.
func (b *Bot) allowedChannel(ctx *CommandContext, strs config.Strings) (string, bool) {
	voiceChannelID, voiceName, err := b.policy.checkChannel(ctx.GuildID, ctx.AuthorID, ctx.ChannelID)
	switch {
	case errors.Is(err, ErrWrongChannel):
		b.notify(ctx, strs.Format("wrong_channel", map[string]string{"channel": voiceName}))
		return "", false
	case err != nil:
		slog.Warn("channel policy check failed", "guild", ctx.GuildID, "err", err)
		b.notify(ctx, strs.Get("unexpected_error"))
		return "", false
	}
	return voiceChannelID, true
}

// engine returns the guild's engine when it exists, notifying the user
// otherwise. Commands that only make sense with an active session use this
// instead of creating one.
func (b *Bot) engine(ctx *CommandContext, strs config.Strings) (*player.Engine, bool) {
	eng, ok := b.registry.Get(ctx.GuildID)
	if !ok {
		b.notify(ctx, strs.Get("no_voice_client"))
		return nil, false
	}
	return eng, true
}

func (b *Bot) handlePlay(ctx *CommandContext, args []string) {
	_, strs, _ := b.snapshot()
	if len(args) == 0 {
		b.notify(ctx, strs.Format("missing_argument", map[string]string{"prefix": b.router.Prefix()}))
		b.recordCommand("play", errors.New("missing argument"))
		return
	}
	voiceChannelID, ok := b.allowedChannel(ctx, strs)
	if !ok {
		b.recordCommand("play", ErrWrongChannel)
		return
	}
	if voiceChannelID == "" {
		b.notify(ctx, strs.Get("no_voice_channel"))
		b.recordCommand("play", ErrNoVoiceChannel)
		return
	}

	eng := b.registry.GetOrCreate(ctx.GuildID)
	if err := eng.Connect(context.Background(), voiceChannelID); err != nil {
		slog.Error("voice connect failed", "guild", ctx.GuildID, "channel", voiceChannelID, "err", err)
		b.notify(ctx, strs.Get("unexpected_error"))
		b.recordCommand("play", err)
		return
	}

	ref := resolver.TrackReference(strings.Join(args, " "))
	switch ref.Kind() {
	case resolver.KindYouTubePlaylist, resolver.KindSpotifyPlaylist:
		b.recordCommand("play", b.playPlaylist(ctx, eng, ref, strs))
	default:
		b.recordCommand("play", b.enqueueTrack(ctx, eng, player.QueueEntry{Ref: ref, Origin: ctx.ChannelID}, strs))
	}
}

// enqueueTrack adds one entry and tells the requester when it went into the
// queue behind a playing track. Entries that start playback immediately get
// the now-playing display instead of a notice.
func (b *Bot) enqueueTrack(ctx *CommandContext, eng *player.Engine, entry player.QueueEntry, strs config.Strings) error {
	queued := eng.State() != player.StateIdle
	if err := eng.Enqueue(entry); err != nil {
		slog.Warn("enqueue failed", "guild", ctx.GuildID, "ref", string(entry.Ref), "err", err)
		b.notify(ctx, strs.Get("unexpected_error"))
		return err
	}
	if queued {
		b.notify(ctx, strs.Format("song_added_to_queue", map[string]string{"username": ctx.Username}))
	}
	return nil
}

// playPlaylist runs the confirmation flow for playlist references: the user
// chooses between loading the whole playlist and just its first track. A
// timeout counts as choosing the first track.
func (b *Bot) playPlaylist(ctx *CommandContext, eng *player.Engine, ref resolver.TrackReference, strs config.Strings) error {
	promptKey := "playlist_load_prompt_youtube"
	addedKey := "playlist_added_youtube"
	if ref.Kind() == resolver.KindSpotifyPlaylist {
		promptKey = "playlist_load_prompt_spotify"
		addedKey = "playlist_added_spotify"
	}

	confirmed, timedOut, err := b.awaitConfirmation(ctx.ChannelID, strs.Get(promptKey))
	if err != nil {
		slog.Warn("playlist confirmation failed", "guild", ctx.GuildID, "err", err)
		b.notify(ctx, strs.Get("unexpected_error"))
		return err
	}
	if timedOut {
		b.notify(ctx, strs.Get("playlist_timeout"))
	}

	expandCtx, cancel := context.WithTimeout(context.Background(), expandTimeout)
	defer cancel()

	if !confirmed {
		first, err := b.resolver.FirstTrack(expandCtx, ref)
		if err != nil {
			slog.Warn("playlist first-track lookup failed", "guild", ctx.GuildID, "ref", string(ref), "err", err)
			b.notify(ctx, strs.Get("playback_error"))
			return err
		}
		return b.enqueueTrack(ctx, eng, player.QueueEntry{Ref: first, Origin: ctx.ChannelID}, strs)
	}

	refs, err := b.resolver.ExpandPlaylist(expandCtx, ref)
	if err != nil {
		slog.Warn("playlist expansion failed", "guild", ctx.GuildID, "ref", string(ref), "err", err)
		b.notify(ctx, strs.Get("playback_error"))
		return err
	}
	entries := make([]player.QueueEntry, 0, len(refs))
	for _, r := range refs {
		entries = append(entries, player.QueueEntry{Ref: r, Origin: ctx.ChannelID})
	}
	if err := eng.Enqueue(entries...); err != nil {
		slog.Warn("playlist enqueue failed", "guild", ctx.GuildID, "err", err)
		b.notify(ctx, strs.Get("unexpected_error"))
		return err
	}
	b.notify(ctx, strs.Format(addedKey, map[string]string{"username": ctx.Username}))
	return nil
}

func (b *Bot) handleStop(ctx *CommandContext, _ []string) {
	_, strs, _ := b.snapshot()
	if _, ok := b.allowedChannel(ctx, strs); !ok {
		b.recordCommand("stop", ErrWrongChannel)
		return
	}
	eng, ok := b.engine(ctx, strs)
	if !ok {
		b.recordCommand("stop", player.ErrNotConnected)
		return
	}
	eng.Stop()
	b.notify(ctx, strs.Get("playback_stopped_emoji"))
	b.recordCommand("stop", nil)
}

func (b *Bot) handleSkip(ctx *CommandContext, _ []string) {
	_, strs, _ := b.snapshot()
	if _, ok := b.allowedChannel(ctx, strs); !ok {
		b.recordCommand("skip", ErrWrongChannel)
		return
	}
	eng, ok := b.engine(ctx, strs)
	if !ok {
		b.recordCommand("skip", player.ErrNotConnected)
		return
	}
	if err := eng.Skip(); err != nil {
		b.notify(ctx, strs.Get("no_voice_client"))
		b.recordCommand("skip", err)
		return
	}
	b.notify(ctx, strs.Get("song_skipped"))
	b.recordCommand("skip", nil)
}

func (b *Bot) handlePrevious(ctx *CommandContext, _ []string) {
	_, strs, _ := b.snapshot()
	if _, ok := b.allowedChannel(ctx, strs); !ok {
		b.recordCommand("previous", ErrWrongChannel)
		return
	}
	eng, ok := b.engine(ctx, strs)
	if !ok {
		b.recordCommand("previous", player.ErrNotConnected)
		return
	}
	if err := eng.Previous(); err != nil {
		key := "no_previous_song"
		if errors.Is(err, player.ErrNotConnected) {
			key = "no_voice_client"
		}
		b.notify(ctx, strs.Get(key))
		b.recordCommand("previous", err)
		return
	}
	b.recordCommand("previous", nil)
}

func (b *Bot) handlePause(ctx *CommandContext, _ []string) {
	_, strs, _ := b.snapshot()
	if _, ok := b.allowedChannel(ctx, strs); !ok {
		b.recordCommand("pause", ErrWrongChannel)
		return
	}
	eng, ok := b.engine(ctx, strs)
	if !ok {
		b.recordCommand("pause", player.ErrNotConnected)
		return
	}
	if err := eng.Pause(); err != nil {
		b.notify(ctx, strs.Get("no_voice_client"))
		b.recordCommand("pause", err)
		return
	}
	b.notify(ctx, strs.Get("song_paused"))
	b.recordCommand("pause", nil)
}

func (b *Bot) handleResume(ctx *CommandContext, _ []string) {
	_, strs, _ := b.snapshot()
	if _, ok := b.allowedChannel(ctx, strs); !ok {
		b.recordCommand("resume", ErrWrongChannel)
		return
	}
	eng, ok := b.engine(ctx, strs)
	if !ok {
		b.recordCommand("resume", player.ErrNotConnected)
		return
	}
	if err := eng.Resume(); err != nil {
		b.notify(ctx, strs.Get("no_voice_client"))
		b.recordCommand("resume", err)
		return
	}
	b.notify(ctx, strs.Get("song_resumed"))
	b.recordCommand("resume", nil)
}

func (b *Bot) handleVolume(ctx *CommandContext, args []string) {
	_, strs, _ := b.snapshot()
	if _, ok := b.allowedChannel(ctx, strs); !ok {
		b.recordCommand("volume", ErrWrongChannel)
		return
	}
	eng, ok := b.engine(ctx, strs)
	if !ok {
		b.recordCommand("volume", player.ErrNotConnected)
		return
	}
	if len(args) == 0 {
		b.notify(ctx, strs.Format("volume_prompt", map[string]string{"prefix": b.router.Prefix()}))
		b.recordCommand("volume", nil)
		return
	}
	volume, err := strconv.Atoi(args[0])
	if err != nil {
		b.notify(ctx, strs.Get("invalid_volume"))
		b.recordCommand("volume", err)
		return
	}
	if err := eng.SetVolume(volume); err != nil {
		b.notify(ctx, strs.Get("invalid_volume"))
		b.recordCommand("volume", err)
		return
	}
	b.notify(ctx, strs.Format("volume_set", map[string]string{"volume": strconv.Itoa(volume)}))
	b.recordCommand("volume", nil)
}

func (b *Bot) handleQueue(ctx *CommandContext, _ []string) {
	_, strs, footer := b.snapshot()
	if _, ok := b.allowedChannel(ctx, strs); !ok {
		b.recordCommand("queue", ErrWrongChannel)
		return
	}
	eng, ok := b.registry.Get(ctx.GuildID)
	if !ok {
		b.notify(ctx, strs.Get("queue_empty"))
		b.recordCommand("queue", nil)
		return
	}
	entries := eng.Queue()
	if len(entries) == 0 {
		b.notify(ctx, strs.Get("queue_empty"))
		b.recordCommand("queue", nil)
		return
	}

	// Pending entries are unresolved on purpose; the raw reference is what
	// the user typed and is the honest thing to show.
	var sb strings.Builder
	for i, entry := range entries {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, string(entry.Ref))
	}
	embed := &discordgo.MessageEmbed{
		Title:       strs.Get("queue_title"),
		Description: sb.String(),
	}
	if footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	if _, err := b.msgr.SendEmbed(ctx.ChannelID, embed); err != nil {
		slog.Warn("failed to send queue embed", "channel", ctx.ChannelID, "err", err)
		b.recordCommand("queue", err)
		return
	}
	b.recordCommand("queue", nil)
}

func (b *Bot) handleLoop(ctx *CommandContext, _ []string) {
	_, strs, _ := b.snapshot()
	if _, ok := b.allowedChannel(ctx, strs); !ok {
		b.recordCommand("loop", ErrWrongChannel)
		return
	}
	eng, ok := b.engine(ctx, strs)
	if !ok {
		b.recordCommand("loop", player.ErrNotConnected)
		return
	}
	key := "loop_disabled"
	if eng.ToggleLooping() {
		key = "loop_enabled"
	}
	b.notify(ctx, strs.Get(key))
	b.recordCommand("loop", nil)
}

func (b *Bot) handleHelp(ctx *CommandContext, _ []string) {
	cfg, strs, footer := b.snapshot()
	if _, ok := b.allowedChannel(ctx, strs); !ok {
		b.recordCommand("help", ErrWrongChannel)
		return
	}
	prefix := b.router.Prefix()

	fields := make([]*discordgo.MessageEmbedField, 0, len(config.KnownCommandKeys))
	for _, key := range config.KnownCommandKeys {
		name, aliases := cfg.CommandInfo(key)
		invocation := prefix + name
		for _, alias := range aliases {
			invocation += ", " + prefix + alias
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  invocation,
			Value: strs.Get(key + "_help"),
		})
	}
	embed := &discordgo.MessageEmbed{
		Title:  strs.Get("help_title"),
		Fields: fields,
	}
	if footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	if _, err := b.msgr.SendEmbed(ctx.ChannelID, embed); err != nil {
		slog.Warn("failed to send help embed", "channel", ctx.ChannelID, "err", err)
		b.recordCommand("help", err)
		return
	}
	b.recordCommand("help", nil)
}

func (b *Bot) handleNotFound(ctx *CommandContext, _ []string) {
	_, strs, _ := b.snapshot()
	b.notify(ctx, strs.Format("command_not_found", map[string]string{"prefix": b.router.Prefix()}))
}
