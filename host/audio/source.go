// Package audio turns audio files into the PCM the firmware expects
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrBadRawFormat      = errors.New("raw audio needs a sample rate and channel count")
)

// Source yields interleaved int16 samples. Read always returns whole frames.
type Source interface {
	Read(dst []int16) (int, error)
	SampleRate() int
	Channels() int
	Close() error
}

// RawFormat describes headerless s16le input
type RawFormat struct {
	SampleRate int
	Channels   int
}

// Open opens an audio file, picking the decoder by extension.
// Files without a known extension are read as raw s16le in the given format.
func Open(path string, raw RawFormat) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var src Source
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		src, err = NewMP3Source(f)
	case ".flac":
		src, err = NewFLACSource(f)
	case ".raw", ".pcm", ".s16le", "":
		src, err = NewRawSource(f, raw)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// pcmSource reads s16le interleaved frames from a byte stream
type pcmSource struct {
	r        io.Reader
	c        io.Closer
	rate     int
	channels int
	buf      []byte
}

func (s *pcmSource) Read(dst []int16) (int, error) {
	frameBytes := 2 * s.channels
	want := len(dst) / s.channels * frameBytes
	if want == 0 {
		return 0, nil
	}
	if cap(s.buf) < want {
		s.buf = make([]byte, want)
	}
	n, err := io.ReadFull(s.r, s.buf[:want])
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	// A trailing partial frame is dropped
	n = n / frameBytes * frameBytes
	for i := 0; i < n/2; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(s.buf[2*i:]))
	}
	if n > 0 && err == io.EOF {
		err = nil
	}
	return n / 2, err
}

func (s *pcmSource) SampleRate() int { return s.rate }
func (s *pcmSource) Channels() int   { return s.channels }

func (s *pcmSource) Close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

// NewRawSource reads headerless s16le samples
func NewRawSource(r io.Reader, format RawFormat) (Source, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, ErrBadRawFormat
	}
	c, _ := r.(io.Closer)
	return &pcmSource{r: r, c: c, rate: format.SampleRate, channels: format.Channels}, nil
}

// NewMP3Source decodes an MP3 stream. go-mp3 always produces stereo s16le.
func NewMP3Source(r io.Reader) (Source, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	c, _ := r.(io.Closer)
	return &pcmSource{r: dec, c: c, rate: dec.SampleRate(), channels: 2}, nil
}

// FLACSource decodes a FLAC stream frame by frame
type FLACSource struct {
	stream   *flac.Stream
	c        io.Closer
	rate     int
	channels int
	shift    int // bits to drop to reach 16-bit samples
	pending  []int16
}

// NewFLACSource opens a FLAC stream
func NewFLACSource(r io.Reader) (Source, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("decode flac: %w", err)
	}
	c, _ := r.(io.Closer)
	return &FLACSource{
		stream:   stream,
		c:        c,
		rate:     int(stream.Info.SampleRate),
		channels: int(stream.Info.NChannels),
		shift:    int(stream.Info.BitsPerSample) - 16,
	}, nil
}

func (s *FLACSource) Read(dst []int16) (int, error) {
	for len(s.pending) == 0 {
		f, err := s.stream.ParseNext()
		if err != nil {
			return 0, err
		}
		for i := 0; i < int(f.BlockSize); i++ {
			for ch := 0; ch < s.channels; ch++ {
				v := f.Subframes[ch].Samples[i]
				if s.shift > 0 {
					v >>= uint(s.shift)
				} else if s.shift < 0 {
					v <<= uint(-s.shift)
				}
				s.pending = append(s.pending, int16(v))
			}
		}
	}
	n := len(dst) / s.channels * s.channels
	n = copy(dst[:n], s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *FLACSource) SampleRate() int { return s.rate }
func (s *FLACSource) Channels() int   { return s.channels }

func (s *FLACSource) Close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}
