// Package oto plays the engine's output through the system audio device.
package oto

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Device owns the audio context and one player pulling from a sample reader.
type Device struct {
	ctx    *oto.Context
	player *oto.Player
}

// Open initializes the audio device for mono 16-bit playback at the given
// rate and starts pulling from r. The buffer size trades latency for
// underrun tolerance; the engine's ring already cushions, so keep it small.
func Open(sampleRate, bufferFrames int, r io.Reader) (*Device, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(bufferFrames) * time.Second / time.Duration(sampleRate),
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	player := ctx.NewPlayer(r)
	player.Play()
	return &Device{ctx: ctx, player: player}, nil
}

// Close stops playback and releases the player.
func (d *Device) Close() error {
	if err := d.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
