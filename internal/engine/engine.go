// ABOUTME: Audio engine state machine coordinating file playback and live streaming
// ABOUTME: The audio task drives Advance; every other caller goes through the mutex
package engine

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Aurelay-Project/aurelay-go/internal/jitter"
	"github.com/Aurelay-Project/aurelay-go/internal/storage"
)

// Mode is the engine's playback state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeFilePlayback
	ModeLiveStream
)

func (m Mode) String() string {
	switch m {
	case ModeFilePlayback:
		return "file"
	case ModeLiveStream:
		return "stream"
	default:
		return "idle"
	}
}

// popWait bounds the audio task's wait for a stream packet. Shorter than
// the task period so a starved buffer still yields a silence frame in
// time.
const popWait = 5 * time.Millisecond

// fileReadSize is how much PCM one Advance cycle pulls from a file
// decoder.
const fileReadSize = 4096

// Config carries the engine's fixed audio parameters.
type Config struct {
	FileSampleRate   int
	StreamSampleRate int
	StreamChannels   int
	FrameSamples     int
	MaxPacketSize    int
	Volume           float64
}

// StatusFunc reports user-visible playback events upstream.
type StatusFunc func(status string)

// Engine owns the decoder slot, output bus, and volume. One mutex guards
// all of it; Advance uses TryLock so a mode switch in progress never
// stalls the audio task.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	bus    OutputBus
	store  storage.Store
	buf    *jitter.Buffer
	status StatusFunc

	mode   Mode
	file   fileDecoder
	stream streamDecoder
	volume float64

	pcm     []byte
	frame   []int16
	silence []byte

	openStream func(sampleRate, channels int) (streamDecoder, error)

	log *logrus.Entry
}

// New creates an engine. The jitter buffer is owned by the caller and
// shared with the network producer.
func New(cfg Config, bus OutputBus, store storage.Store, buf *jitter.Buffer, status StatusFunc) *Engine {
	frameBytes := cfg.FrameSamples * cfg.StreamChannels * 2
	return &Engine{
		cfg:        cfg,
		bus:        bus,
		store:      store,
		buf:        buf,
		status:     status,
		volume:     clampVolume(cfg.Volume),
		pcm:        make([]byte, fileReadSize),
		frame:      make([]int16, cfg.FrameSamples*cfg.StreamChannels),
		silence:    make([]byte, frameBytes),
		openStream: newOpusStreamDecoder,
		log:        logrus.WithField("component", "engine"),
	}
}

// Begin opens the output bus. Failure here is fatal to the audio
// subsystem and reported to the caller; nothing later is.
func (e *Engine) Begin() error {
	if err := e.bus.Configure(e.cfg.FileSampleRate, 2); err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	e.bus.SetGain(e.volume)
	return nil
}

// PlayFile starts playback of a stored file, replacing whatever was
// playing. Failures surface as an "error" status publish, never a panic.
func (e *Engine) PlayFile(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()

	if !e.store.Exists(name) {
		e.log.WithField("file", name).Warn("file not found")
		e.publish("error")
		return false
	}

	src, err := e.store.Open(name)
	if err != nil {
		e.log.WithError(err).WithField("file", name).Error("failed to open file")
		e.publish("error")
		return false
	}
	dec, err := openFileDecoder(name, src)
	if err != nil {
		e.log.WithError(err).WithField("file", name).Error("failed to open decoder")
		e.publish("error")
		return false
	}

	if err := e.bus.Configure(dec.SampleRate(), dec.Channels()); err != nil {
		e.log.WithError(err).Error("failed to configure output")
		dec.Close()
		e.publish("error")
		return false
	}

	e.file = dec
	e.mode = ModeFilePlayback
	e.log.WithFields(logrus.Fields{
		"file":        name,
		"sample_rate": dec.SampleRate(),
	}).Info("playback started")
	e.publish("playing")
	return true
}

// StartStream switches the engine to the live path: stream-rate output,
// fresh opus decoder, empty jitter buffer.
func (e *Engine) StartStream() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()

	dec, err := e.openStream(e.cfg.StreamSampleRate, e.cfg.StreamChannels)
	if err != nil {
		e.log.WithError(err).Error("failed to create stream decoder")
		return false
	}
	if err := e.bus.Configure(e.cfg.StreamSampleRate, e.cfg.StreamChannels); err != nil {
		e.log.WithError(err).Error("failed to configure output for stream")
		dec.Close()
		return false
	}

	e.buf.Reset()
	e.stream = dec
	e.mode = ModeLiveStream
	e.log.Info("live stream started")
	return true
}

// StopStream ends the live session. Safe to call when no stream is
// active. One silent frame is written so the mixer never replays the
// tail of the last decoded packet.
func (e *Engine) StopStream() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != ModeLiveStream {
		return
	}

	e.stopLocked()
	e.bus.WriteFrame(e.silence)
	if err := e.bus.Configure(e.cfg.FileSampleRate, 2); err != nil {
		e.log.WithError(err).Warn("failed to restore output format")
	}
	e.log.Info("live stream stopped")
}

// Stop halts any playback and returns the engine to idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

// stopLocked tears down the active decoder. Caller holds the mutex; all
// transitions pass through here so the decoder slot is freed exactly
// once.
func (e *Engine) stopLocked() {
	if e.file != nil {
		e.file.Close()
		e.file = nil
	}
	if e.stream != nil {
		e.stream.Close()
		e.stream = nil
		e.buf.Reset()
	}
	e.mode = ModeIdle
}

// SetVolume applies a clamped volume immediately. Never blocks on the
// audio path; the bus applies gain per frame.
func (e *Engine) SetVolume(v float64) {
	v = clampVolume(v)
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
	e.bus.SetGain(v)
	e.log.WithField("volume", v).Info("volume set")
}

// Volume returns the current volume.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// CurrentMode returns the current playback mode.
func (e *Engine) CurrentMode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Playing reports whether any playback is active.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode != ModeIdle
}

// PushStreamPacket feeds one compressed packet from the network into the
// jitter buffer. Oversized and empty packets are rejected before they
// touch the ring.
func (e *Engine) PushStreamPacket(p []byte) bool {
	if len(p) == 0 || len(p) > e.cfg.MaxPacketSize {
		e.log.WithField("size", len(p)).Warn("rejected stream packet")
		return false
	}
	return e.buf.Push(p)
}

// Advance runs one cycle of the audio task. TryLock keeps the real-time
// path from blocking behind a mode switch: on contention the cycle is
// skipped and the mixer keeps draining its last frame.
func (e *Engine) Advance() {
	if !e.mu.TryLock() {
		return
	}
	defer e.mu.Unlock()

	switch e.mode {
	case ModeFilePlayback:
		e.advanceFile()
	case ModeLiveStream:
		e.advanceStream()
	}
}

func (e *Engine) advanceFile() {
	n, more := e.file.Next(e.pcm)
	if n > 0 {
		e.bus.WriteFrame(e.pcm[:n])
	}
	if !more {
		e.file.Close()
		e.file = nil
		e.mode = ModeIdle
		e.log.Info("playback finished")
		e.publish("finished")
	}
}

// advanceStream emits exactly one frame per cycle: decoded audio when a
// valid packet is available, silence otherwise.
func (e *Engine) advanceStream() {
	if !e.buf.Filled() {
		e.bus.WriteFrame(e.silence)
		return
	}

	pkt, ok := e.buf.Pop(popWait)
	if !ok {
		e.bus.WriteFrame(e.silence)
		return
	}
	if len(pkt) > e.cfg.MaxPacketSize {
		e.log.WithField("size", len(pkt)).Warn("dropping malformed packet")
		e.bus.WriteFrame(e.silence)
		return
	}

	n, err := e.stream.Decode(pkt, e.frame)
	if err != nil || n <= 0 {
		e.log.WithError(err).Warn("packet decode failed")
		e.bus.WriteFrame(e.silence)
		return
	}

	samples := n * e.cfg.StreamChannels
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(e.frame[i]))
	}
	e.bus.WriteFrame(out)
}

func (e *Engine) publish(status string) {
	if e.status != nil {
		e.status(status)
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
