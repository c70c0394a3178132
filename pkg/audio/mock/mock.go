// Package mock provides in-memory mock implementations of the
// [audio.Platform] and [audio.Connection] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	conn := &mock.Connection{}
//	platform := &mock.Platform{ConnectResult: conn}
//	got, err := platform.Connect(ctx, "guild-1", "channel-42")
//	...
//	conn.FinishTrack() // simulate the current track reaching its end
package mock

import (
	"context"
	"sync"

	"github.com/troubadourbot/troubadour/pkg/audio"
)

// PlayCall records the arguments of a single [Connection.Play] invocation.
type PlayCall struct {
	StreamURL string
	Volume    int
}

// Connection is a mock implementation of [audio.Connection].
// Set the exported Result fields before use; inspect the Call* fields after.
type Connection struct {
	mu sync.Mutex

	// PlayError is returned by [Connection.Play].
	PlayError error

	// DisconnectError is returned by [Connection.Disconnect].
	DisconnectError error

	// PlayCalls records the arguments of every Play invocation.
	PlayCalls []PlayCall

	// VolumeCalls records every SetVolume argument.
	VolumeCalls []int

	// CallCountPause, CallCountResume, CallCountStop, and CallCountDisconnect
	// record how many times the respective method was called.
	CallCountPause      int
	CallCountResume     int
	CallCountStop       int
	CallCountDisconnect int

	paused     bool
	onComplete func()
}

// Play implements [audio.Connection]. The completion callback is stored and
// can be fired from the test via [Connection.FinishTrack]; calling Stop also
// fires it, matching the real implementation.
func (c *Connection) Play(streamURL string, volume int, onComplete func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PlayCalls = append(c.PlayCalls, PlayCall{StreamURL: streamURL, Volume: volume})
	if c.PlayError != nil {
		return c.PlayError
	}
	c.paused = false
	c.onComplete = onComplete
	return nil
}

// Pause implements [audio.Connection].
func (c *Connection) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountPause++
	c.paused = true
}

// Resume implements [audio.Connection].
func (c *Connection) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountResume++
	c.paused = false
}

// Stop implements [audio.Connection]. It fires the pending completion
// callback in a fresh goroutine, like the real playback loop does.
func (c *Connection) Stop() {
	c.mu.Lock()
	c.CallCountStop++
	cb := c.onComplete
	c.onComplete = nil
	c.mu.Unlock()
	if cb != nil {
		go cb()
	}
}

// SetVolume implements [audio.Connection].
func (c *Connection) SetVolume(volume int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.VolumeCalls = append(c.VolumeCalls, volume)
}

// Playing implements [audio.Connection]. It reports true while a track has
// been started, not finished, and not paused.
func (c *Connection) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onComplete != nil && !c.paused
}

// Disconnect implements [audio.Connection]. Returns DisconnectError.
// The pending completion callback, if any, is dropped without firing,
// matching the real implementation.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	c.onComplete = nil
	return c.DisconnectError
}

// FinishTrack simulates the current track reaching its natural end,
// invoking the completion callback synchronously. It is a no-op when
// nothing is playing.
func (c *Connection) FinishTrack() {
	c.mu.Lock()
	cb := c.onComplete
	c.onComplete = nil
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	GuildID   string
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is returned by [Platform.Connect]. When nil and
	// ConnectError is nil, a fresh [Connection] is returned instead.
	ConnectResult audio.Connection

	// ConnectError is returned by [Platform.Connect].
	ConnectError error

	// ConnectCalls records the arguments of every Connect invocation.
	ConnectCalls []ConnectCall
}

// Connect implements [audio.Platform].
func (p *Platform) Connect(_ context.Context, guildID, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{GuildID: guildID, ChannelID: channelID})
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	if p.ConnectResult == nil {
		p.ConnectResult = &Connection{}
	}
	return p.ConnectResult, nil
}

// Plays returns a snapshot of recorded Play invocations.
func (c *Connection) Plays() []PlayCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PlayCall(nil), c.PlayCalls...)
}

// Volumes returns a snapshot of recorded SetVolume arguments.
func (c *Connection) Volumes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.VolumeCalls...)
}

// PauseCount returns how many times Pause was called.
func (c *Connection) PauseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountPause
}

// ResumeCount returns how many times Resume was called.
func (c *Connection) ResumeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountResume
}

// StopCount returns how many times Stop was called.
func (c *Connection) StopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountStop
}

// DisconnectCount returns how many times Disconnect was called.
func (c *Connection) DisconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountDisconnect
}
