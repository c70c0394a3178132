package discord

import (
	"fmt"

	"layeh.com/gopus"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960

	// opusFrameBytes is the exact PCM input size for one Opus frame:
	// 960 samples/channel × 2 channels × 2 bytes/sample = 3840 bytes.
	opusFrameBytes = opusFrameSize * opusChannels * 2
)

// opusEncoder wraps a gopus Opus encoder for the playback stream.
type opusEncoder struct {
	enc *gopus.Encoder
}

// newOpusEncoder creates a new Opus encoder configured for Discord audio.
func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode encodes one frame of interleaved PCM int16 samples into an Opus packet.
func (e *opusEncoder) encode(pcm []int16) ([]byte, error) {
	opus, err := e.enc.Encode(pcm, opusFrameSize, opusFrameBytes)
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return opus, nil
}

// bytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// applyVolume scales PCM samples in place by a percentage in [1, 100],
// clamping to the int16 range.
func applyVolume(pcm []int16, volume int) {
	if volume >= 100 {
		return
	}
	if volume < 1 {
		volume = 1
	}
	for i, s := range pcm {
		scaled := int32(s) * int32(volume) / 100
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		pcm[i] = int16(scaled)
	}
}
