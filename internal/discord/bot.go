// Package discord provides the Discord layer for Troubadour. It owns the
// discordgo.Session lifecycle, parses prefix chat commands, enforces the
// voice/text channel pairing policy, and translates now-playing reactions
// into playback operations.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/troubadourbot/troubadour/internal/config"
	"github.com/troubadourbot/troubadour/internal/observe"
	"github.com/troubadourbot/troubadour/internal/player"
	"github.com/troubadourbot/troubadour/internal/resolver"
	discordaudio "github.com/troubadourbot/troubadour/pkg/audio/discord"
)

// Options configures a Bot.
type Options struct {
	// Token is the Discord bot token, without the "Bot " prefix.
	Token string

	Config   *config.Config
	Strings  config.Strings
	Resolver *resolver.Adapter

	// PersistVolume is handed to every guild engine; see player.Options.
	PersistVolume func(volume int) error

	// Metrics may be nil.
	Metrics *observe.Metrics
}

// Bot owns the Discord gateway connection and the per-guild playback
// engines.
type Bot struct {
	session  *discordgo.Session
	router   *CommandRouter
	policy   *channelPolicy
	msgr     player.Messenger
	registry *player.Registry
	resolver *resolver.Adapter
	metrics  *observe.Metrics

	mu     sync.RWMutex
	cfg    *config.Config
	strs   config.Strings
	footer string

	confirmMu      sync.Mutex
	confirms       map[string]chan bool
	confirmTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Bot and connects it to the Discord gateway.
func New(opts Options) (*Bot, error) {
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessageReactions

	b := &Bot{
		session:        session,
		router:         NewCommandRouter(opts.Config.Command.Prefix),
		policy:         &channelPolicy{state: session.State},
		msgr:           &sessionMessenger{session: session},
		resolver:       opts.Resolver,
		metrics:        opts.Metrics,
		cfg:            opts.Config,
		strs:           opts.Strings,
		footer:         opts.Config.Embed.Footer,
		confirms:       make(map[string]chan bool),
		confirmTimeout: playlistConfirmTimeout,
		done:           make(chan struct{}),
	}

	platform := discordaudio.New(session, opts.Config.FFmpeg())
	b.registry = player.NewRegistry(func(guildID string) *player.Engine {
		cfg, strs, footer := b.snapshot()
		return player.New(player.Options{
			GuildID:       guildID,
			Resolver:      opts.Resolver,
			Voice:         platform,
			Messenger:     b.msgr,
			Strings:       strs,
			Footer:        footer,
			Volume:        cfg.Volume(),
			PersistVolume: opts.PersistVolume,
			Metrics:       opts.Metrics,
		})
	})

	b.registerCommands()
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onReactionAdd)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// Run blocks until ctx is cancelled or the bot is closed.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("discord bot running", "prefix", b.router.Prefix())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return nil
	}
}

// Ready reports whether the gateway connection is established and
// identified. Used by the readiness probe.
func (b *Bot) Ready() error {
	if b.session.State == nil || b.session.State.User == nil {
		return errors.New("gateway session not identified")
	}
	return nil
}

// Close stops every guild session and disconnects from the gateway.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		close(b.done)
		b.registry.Each(func(guildID string, e *player.Engine) {
			e.Stop()
		})
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}

// ApplyConfig pushes hot-reloadable configuration changes to running
// sessions: volume, language, and embed footer take effect without a
// restart.
func (b *Bot) ApplyConfig(cfg *config.Config, diff config.ConfigDiff) {
	strs := config.ForLanguage(cfg.Language)

	b.mu.Lock()
	b.cfg = cfg
	b.strs = strs
	b.footer = cfg.Embed.Footer
	b.mu.Unlock()

	b.registry.Each(func(guildID string, e *player.Engine) {
		if diff.VolumeChanged {
			e.ApplyVolume(diff.NewVolume)
		}
		if diff.LanguageChanged || diff.FooterChanged {
			e.SetStrings(strs, cfg.Embed.Footer)
		}
	})
}

// snapshot returns the current configuration, strings, and footer under the
// read lock.
func (b *Bot) snapshot() (*config.Config, config.Strings, string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg, b.strs, b.footer
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	ctx := &CommandContext{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		AuthorID:  m.Author.ID,
		Username:  m.Author.Username,
	}
	b.router.Dispatch(ctx, m.Content)
}
