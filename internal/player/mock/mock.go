// Package mock provides a recording messenger for player tests.
package mock

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/troubadourbot/troubadour/internal/player"
)

// SentText records one SendText call.
type SentText struct {
	ChannelID string
	Content   string
}

// SentEmbed records one SendEmbed call and the reference it was assigned.
type SentEmbed struct {
	ChannelID string
	Ref       player.MessageRef
	Embed     *discordgo.MessageEmbed
}

// EditedEmbed records one EditEmbed call.
type EditedEmbed struct {
	Ref   player.MessageRef
	Embed *discordgo.MessageEmbed
}

// Reaction records one AddReaction call.
type Reaction struct {
	Ref   player.MessageRef
	Emoji string
}

// Messenger is a player.Messenger that records every call. Message IDs are
// assigned sequentially so tests can assert which message an edit targeted.
type Messenger struct {
	SendTextError    error
	SendEmbedError   error
	EditEmbedError   error
	DeleteError      error
	AddReactionError error

	mu        sync.Mutex
	nextID    int
	Texts     []SentText
	Embeds    []SentEmbed
	Edits     []EditedEmbed
	Deletes   []player.MessageRef
	Reactions []Reaction
}

var _ player.Messenger = (*Messenger)(nil)

// SendText implements player.Messenger.
func (m *Messenger) SendText(channelID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendTextError != nil {
		return m.SendTextError
	}
	m.Texts = append(m.Texts, SentText{ChannelID: channelID, Content: content})
	return nil
}

// SendEmbed implements player.Messenger.
func (m *Messenger) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (player.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendEmbedError != nil {
		return player.MessageRef{}, m.SendEmbedError
	}
	m.nextID++
	ref := player.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("msg-%d", m.nextID)}
	m.Embeds = append(m.Embeds, SentEmbed{ChannelID: channelID, Ref: ref, Embed: embed})
	return ref, nil
}

// EditEmbed implements player.Messenger.
func (m *Messenger) EditEmbed(ref player.MessageRef, embed *discordgo.MessageEmbed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EditEmbedError != nil {
		return m.EditEmbedError
	}
	m.Edits = append(m.Edits, EditedEmbed{Ref: ref, Embed: embed})
	return nil
}

// DeleteMessage implements player.Messenger.
func (m *Messenger) DeleteMessage(ref player.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.Deletes = append(m.Deletes, ref)
	return nil
}

// AddReaction implements player.Messenger.
func (m *Messenger) AddReaction(ref player.MessageRef, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddReactionError != nil {
		return m.AddReactionError
	}
	m.Reactions = append(m.Reactions, Reaction{Ref: ref, Emoji: emoji})
	return nil
}

// SentTexts returns a snapshot of recorded SendText calls.
func (m *Messenger) SentTexts() []SentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentText(nil), m.Texts...)
}

// SentEmbeds returns a snapshot of recorded SendEmbed calls.
func (m *Messenger) SentEmbeds() []SentEmbed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmbed(nil), m.Embeds...)
}

// EditCount returns the number of EditEmbed calls so far.
func (m *Messenger) EditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Edits)
}

// LastEdit returns the most recent EditEmbed call.
func (m *Messenger) LastEdit() (EditedEmbed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Edits) == 0 {
		return EditedEmbed{}, false
	}
	return m.Edits[len(m.Edits)-1], true
}

// DeletedRefs returns a snapshot of recorded DeleteMessage calls.
func (m *Messenger) DeletedRefs() []player.MessageRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]player.MessageRef(nil), m.Deletes...)
}

// AddedReactions returns a snapshot of recorded AddReaction calls.
func (m *Messenger) AddedReactions() []Reaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reaction(nil), m.Reactions...)
}
