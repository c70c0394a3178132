package discord

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/troubadourbot/troubadour/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

const frameDuration = 20 * time.Millisecond

// silenceFrames is sent after audio stops so Discord-side jitter buffers
// flush cleanly instead of repeating the last packet.
const silenceFrames = 5

// opusSilence is a single Opus-encoded silence frame.
var opusSilence = []byte{0xF8, 0xFF, 0xFE}

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. Each track runs as its own playback
// goroutine: ffmpeg transcodes the stream URL to 48 kHz stereo s16le PCM,
// which is volume-scaled, Opus-encoded, and paced onto the voice connection
// in 20 ms frames.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc         *discordgo.VoiceConnection
	ffmpegPath string

	volume atomic.Int64

	mu        sync.Mutex
	current   *playback
	closed    bool
	closeOnce sync.Once
}

// playback tracks the lifecycle of one streaming track.
type playback struct {
	pauseCh  chan bool // true pauses, false resumes
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	paused   atomic.Bool
	replaced atomic.Bool // set when a new Play supersedes this track
}

func (p *playback) halt() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
}

// newConnection initialises a Connection for an already-joined voice channel.
func newConnection(vc *discordgo.VoiceConnection, ffmpegPath string) *Connection {
	c := &Connection{
		vc:         vc,
		ffmpegPath: ffmpegPath,
	}
	c.volume.Store(100)
	return c
}

// Play implements [audio.Connection].
func (c *Connection) Play(streamURL string, volume int, onComplete func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("discord: connection is closed")
	}
	if volume >= 1 && volume <= 100 {
		c.volume.Store(int64(volume))
	}

	if c.current != nil {
		// Replacing a track must not fire its completion callback.
		c.current.replaced.Store(true)
		c.current.halt()
	}

	p := &playback{
		pauseCh: make(chan bool, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.current = p
	go c.run(p, streamURL, onComplete)
	return nil
}

// Pause implements [audio.Connection].
func (c *Connection) Pause() {
	c.signalPause(true)
}

// Resume implements [audio.Connection].
func (c *Connection) Resume() {
	c.signalPause(false)
}

func (c *Connection) signalPause(pause bool) {
	c.mu.Lock()
	p := c.current
	c.mu.Unlock()
	if p == nil {
		return
	}
	select {
	case p.pauseCh <- pause:
	case <-p.done:
	}
}

// Stop implements [audio.Connection].
func (c *Connection) Stop() {
	c.mu.Lock()
	p := c.current
	c.mu.Unlock()
	if p != nil {
		p.halt()
	}
}

// SetVolume implements [audio.Connection].
func (c *Connection) SetVolume(volume int) {
	if volume < 1 || volume > 100 {
		return
	}
	c.volume.Store(int64(volume))
}

// Playing implements [audio.Connection].
func (c *Connection) Playing() bool {
	c.mu.Lock()
	p := c.current
	c.mu.Unlock()
	if p == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
	}
	return !p.paused.Load()
}

// Disconnect implements [audio.Connection]. The current track, if any, is
// halted without firing its completion callback.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		p := c.current
		c.mu.Unlock()
		if p != nil {
			p.replaced.Store(true)
			p.halt()
			<-p.done
		}
		err = c.vc.Disconnect()
	})
	return err
}

// run transcodes and streams one track. It owns the ffmpeg subprocess and
// the pacing loop, and fires onComplete on exit unless the track was
// replaced.
func (c *Connection) run(p *playback, streamURL string, onComplete func()) {
	defer close(p.done)
	defer func() {
		c.mu.Lock()
		if c.current == p {
			c.current = nil
		}
		c.mu.Unlock()
		if !p.replaced.Load() && onComplete != nil {
			onComplete()
		}
	}()

	cmd := exec.Command(c.ffmpegPath,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", streamURL,
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-vn",
		"-loglevel", "error",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		slog.Error("discord: ffmpeg stdout pipe", "err", err)
		return
	}
	if err := cmd.Start(); err != nil {
		slog.Error("discord: ffmpeg start", "err", err, "path", c.ffmpegPath)
		return
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: encoder init", "err", err)
		return
	}

	reader := bufio.NewReaderSize(stdout, opusFrameBytes*8)
	c.setSpeaking(true)
	defer c.setSpeaking(false)
	defer c.sendSilence()

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	buf := make([]byte, opusFrameBytes)
	for {
		select {
		case <-p.stop:
			return
		case pause := <-p.pauseCh:
			if p.paused.Load() == pause {
				continue
			}
			p.paused.Store(pause)
			if pause {
				c.sendSilence()
				c.setSpeaking(false)
			} else {
				c.setSpeaking(true)
			}
		case <-ticker.C:
			if p.paused.Load() {
				continue
			}
			if _, err := io.ReadFull(reader, buf); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					slog.Warn("discord: pcm read", "err", err)
				}
				return
			}
			pcm := bytesToInt16s(buf)
			applyVolume(pcm, int(c.volume.Load()))
			opus, err := enc.encode(pcm)
			if err != nil {
				slog.Warn("discord: opus encode", "err", err)
				continue
			}
			select {
			case c.vc.OpusSend <- opus:
			case <-p.stop:
				return
			}
		}
	}
}

// sendSilence pushes a few silence frames onto the voice connection.
func (c *Connection) sendSilence() {
	for range silenceFrames {
		select {
		case c.vc.OpusSend <- opusSilence:
		case <-time.After(frameDuration):
			return
		}
	}
}

func (c *Connection) setSpeaking(on bool) {
	if err := c.vc.Speaking(on); err != nil {
		slog.Warn("discord: set speaking", "on", on, "err", err)
	}
}
