// ABOUTME: Audio output bus with an oto-backed implementation
// ABOUTME: Applies software gain and hands PCM frames to the platform mixer
package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
)

// OutputBus is the sink the engine writes decoded PCM into. Frames are
// 16-bit little-endian signed samples, interleaved per channel.
type OutputBus interface {
	Configure(sampleRate, channels int) error
	WriteFrame(pcm []byte)
	SetGain(gain float64)
	Close()
}

// OtoBus plays PCM through the platform audio device via oto.
type OtoBus struct {
	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
	gain       float64
	log        *logrus.Entry
}

// NewOtoBus creates an unconfigured output bus at full gain.
func NewOtoBus() *OtoBus {
	return &OtoBus{
		gain: 1.0,
		log:  logrus.WithField("component", "output"),
	}
}

// Configure (re)opens the mixer at the given format. A matching
// configuration is a no-op so mode switches at the same rate stay cheap.
func (b *OtoBus) Configure(sampleRate, channels int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil && b.sampleRate == sampleRate && b.channels == channels {
		return nil
	}
	if b.ctx != nil {
		b.ctx.Suspend()
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create output context: %w", err)
	}
	<-readyChan

	b.ctx = ctx
	b.sampleRate = sampleRate
	b.channels = channels

	b.log.WithFields(logrus.Fields{
		"sample_rate": sampleRate,
		"channels":    channels,
	}).Info("output configured")
	return nil
}

// WriteFrame applies gain and plays one frame. Dropped silently if the
// bus was never configured.
func (b *OtoBus) WriteFrame(pcm []byte) {
	b.mu.Lock()
	ctx := b.ctx
	gain := b.gain
	b.mu.Unlock()

	if ctx == nil || len(pcm) == 0 {
		return
	}

	out := make([]byte, len(pcm)&^1)
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(float64(sample)*gain)))
	}

	player := ctx.NewPlayer(bytes.NewReader(out))
	player.Play()
}

// SetGain sets the software gain multiplier, clamped to [0,1].
func (b *OtoBus) SetGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	if gain > 1 {
		gain = 1
	}
	b.mu.Lock()
	b.gain = gain
	b.mu.Unlock()
}

// Close suspends the mixer.
func (b *OtoBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		b.ctx.Suspend()
		b.ctx = nil
	}
}
