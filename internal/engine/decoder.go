// ABOUTME: File and stream decoders for the audio engine
// ABOUTME: MP3 via go-mp3, WAV via a small RIFF parser, live packets via opus
package engine

import (
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"strings"

	mp3 "github.com/hajimehoshi/go-mp3"
	opus "gopkg.in/hraban/opus.v2"
)

// fileDecoder streams a stored audio file as 16-bit LE PCM.
type fileDecoder interface {
	SampleRate() int
	Channels() int
	// Next fills buf with PCM and reports whether more data remains.
	Next(buf []byte) (int, bool)
	Close() error
}

// streamDecoder turns one compressed network packet into PCM samples.
type streamDecoder interface {
	// Decode writes interleaved samples into pcm and returns the number
	// of samples per channel.
	Decode(packet []byte, pcm []int16) (int, error)
	Close() error
}

// openFileDecoder picks a decoder by file extension.
func openFileDecoder(name string, src io.ReadSeekCloser) (fileDecoder, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return newMP3Decoder(src)
	case ".wav":
		return newWAVDecoder(src)
	default:
		src.Close()
		return nil, fmt.Errorf("unsupported audio format: %s", name)
	}
}

// mp3Decoder wraps go-mp3, which always emits 16-bit stereo.
type mp3Decoder struct {
	dec *mp3.Decoder
	src io.ReadSeekCloser
}

func newMP3Decoder(src io.ReadSeekCloser) (*mp3Decoder, error) {
	if err := skipID3v2(src); err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to skip ID3 tag: %w", err)
	}
	dec, err := mp3.NewDecoder(src)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to open mp3 stream: %w", err)
	}
	return &mp3Decoder{dec: dec, src: src}, nil
}

func (d *mp3Decoder) SampleRate() int { return d.dec.SampleRate() }
func (d *mp3Decoder) Channels() int   { return 2 }

func (d *mp3Decoder) Next(buf []byte) (int, bool) {
	n, err := d.dec.Read(buf)
	if err != nil {
		return n, false
	}
	return n, true
}

func (d *mp3Decoder) Close() error { return d.src.Close() }

// skipID3v2 advances past a leading ID3v2 tag. The tag length is a
// 28-bit syncsafe integer in the last four header bytes.
func skipID3v2(src io.ReadSeeker) error {
	var hdr [10]byte
	if _, err := io.ReadFull(src, hdr[:]); err != nil {
		_, serr := src.Seek(0, io.SeekStart)
		return serr
	}
	if string(hdr[:3]) != "ID3" {
		_, err := src.Seek(0, io.SeekStart)
		return err
	}
	size := int64(hdr[6]&0x7f)<<21 | int64(hdr[7]&0x7f)<<14 |
		int64(hdr[8]&0x7f)<<7 | int64(hdr[9]&0x7f)
	_, err := src.Seek(size, io.SeekCurrent)
	return err
}

// wavDecoder streams the data chunk of a 16-bit PCM RIFF/WAVE file.
type wavDecoder struct {
	src        io.ReadSeekCloser
	sampleRate int
	channels   int
	remaining  int64
}

func newWAVDecoder(src io.ReadSeekCloser) (*wavDecoder, error) {
	d := &wavDecoder{src: src}
	if err := d.parseHeader(); err != nil {
		src.Close()
		return nil, err
	}
	return d, nil
}

func (d *wavDecoder) parseHeader() error {
	var riff [12]byte
	if _, err := io.ReadFull(d.src, riff[:]); err != nil {
		return fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return fmt.Errorf("not a WAVE file")
	}

	haveFormat := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(d.src, chunk[:]); err != nil {
			return fmt.Errorf("failed to read chunk header: %w", err)
		}
		id := string(chunk[:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:]))

		switch id {
		case "fmt ":
			if size < 16 {
				return fmt.Errorf("format chunk too short")
			}
			var f [16]byte
			if _, err := io.ReadFull(d.src, f[:]); err != nil {
				return fmt.Errorf("failed to read format chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(f[0:])
			d.channels = int(binary.LittleEndian.Uint16(f[2:]))
			d.sampleRate = int(binary.LittleEndian.Uint32(f[4:]))
			bits := binary.LittleEndian.Uint16(f[14:])
			if audioFormat != 1 || bits != 16 {
				return fmt.Errorf("unsupported WAVE encoding: format=%d bits=%d", audioFormat, bits)
			}
			if size > 16 {
				if _, err := d.src.Seek(size-16, io.SeekCurrent); err != nil {
					return err
				}
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return fmt.Errorf("data chunk before format chunk")
			}
			d.remaining = size
			return nil
		default:
			// Chunks are word-aligned; odd sizes carry a pad byte.
			if _, err := d.src.Seek(size+size%2, io.SeekCurrent); err != nil {
				return err
			}
		}
	}
}

func (d *wavDecoder) SampleRate() int { return d.sampleRate }
func (d *wavDecoder) Channels() int   { return d.channels }

func (d *wavDecoder) Next(buf []byte) (int, bool) {
	if d.remaining <= 0 {
		return 0, false
	}
	limit := int64(len(buf))
	if limit > d.remaining {
		limit = d.remaining
	}
	n, err := d.src.Read(buf[:limit])
	d.remaining -= int64(n)
	if err != nil || d.remaining <= 0 {
		return n, false
	}
	return n, true
}

func (d *wavDecoder) Close() error { return d.src.Close() }

// opusStreamDecoder wraps the opus packet decoder for the live path.
type opusStreamDecoder struct {
	dec *opus.Decoder
}

func newOpusStreamDecoder(sampleRate, channels int) (streamDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &opusStreamDecoder{dec: dec}, nil
}

func (d *opusStreamDecoder) Decode(packet []byte, pcm []int16) (int, error) {
	return d.dec.Decode(packet, pcm)
}

func (d *opusStreamDecoder) Close() error { return nil }
