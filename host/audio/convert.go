package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	"audiofw/protocol"
)

// Downmix averages interleaved frames into mono. It returns the number of
// mono samples written to dst.
func Downmix(dst, src []int16, channels int) int {
	if channels == 1 {
		return copy(dst, src)
	}
	frames := len(src) / channels
	if frames > len(dst) {
		frames = len(dst)
	}
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(src[i*channels+ch])
		}
		dst[i] = int16(sum / channels)
	}
	return frames
}

// toStereo converts interleaved frames to left/right pairs. Mono is
// duplicated; extra channels beyond the first two are dropped.
func toStereo(dst, src []int16, channels int) int {
	frames := len(src) / channels
	if frames > len(dst)/2 {
		frames = len(dst) / 2
	}
	for i := 0; i < frames; i++ {
		l := src[i*channels]
		r := l
		if channels > 1 {
			r = src[i*channels+1]
		}
		dst[2*i] = l
		dst[2*i+1] = r
	}
	return frames * 2
}

// Resampler converts interleaved int16 audio between rates by linear
// interpolation. The last input frame is carried between calls so chunk
// boundaries do not click.
type Resampler struct {
	channels int
	step     float64 // input frames per output frame
	pos      float64 // next output position; -1 addresses the carried frame
	prev     []int16
	havePrev bool
}

// NewResampler creates a resampler for the given rates
func NewResampler(inRate, outRate, channels int) *Resampler {
	return &Resampler{
		channels: channels,
		step:     float64(inRate) / float64(outRate),
		prev:     make([]int16, channels),
	}
}

// Passthrough reports whether input and output rates are equal
func (r *Resampler) Passthrough() bool {
	return r.step == 1
}

// Resample appends the converted samples for in to out
func (r *Resampler) Resample(out, in []int16) []int16 {
	frames := len(in) / r.channels
	if frames == 0 {
		return out
	}
	if r.Passthrough() {
		return append(out, in[:frames*r.channels]...)
	}

	frame := func(i int) []int16 {
		if i < 0 {
			return r.prev
		}
		return in[i*r.channels : (i+1)*r.channels]
	}

	if !r.havePrev && r.pos < 0 {
		r.pos = 0
	}
	for r.pos < float64(frames-1) {
		i := int(r.pos)
		if r.pos < 0 {
			i = -1
		}
		frac := r.pos - float64(i)
		a, b := frame(i), frame(i+1)
		for ch := 0; ch < r.channels; ch++ {
			v := float64(a[ch])*(1-frac) + float64(b[ch])*frac
			out = append(out, int16(v))
		}
		r.pos += r.step
	}

	r.pos -= float64(frames)
	copy(r.prev, frame(frames-1))
	r.havePrev = true
	return out
}

// Reset forgets carried state
func (r *Resampler) Reset() {
	r.pos = 0
	r.havePrev = false
}

// Stream converts a Source to the output rate and channel count
type Stream struct {
	src      Source
	channels int
	rs       *Resampler

	in      []int16
	mixed   []int16
	pending []int16
	eof     bool
}

// NewStream wraps src to produce rate Hz audio with 1 or 2 channels
func NewStream(src Source, rate, channels int) (*Stream, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("output channels must be 1 or 2, got %d", channels)
	}
	if rate <= 0 || src.SampleRate() <= 0 || src.Channels() <= 0 {
		return nil, fmt.Errorf("bad rates: source %d Hz x%d, output %d Hz",
			src.SampleRate(), src.Channels(), rate)
	}
	return &Stream{
		src:      src,
		channels: channels,
		rs:       NewResampler(src.SampleRate(), rate, channels),
		in:       make([]int16, 1024*src.Channels()),
		mixed:    make([]int16, 1024*channels),
	}, nil
}

// Channels returns the output channel count
func (s *Stream) Channels() int {
	return s.channels
}

// Read fills dst with whole output frames. It returns io.EOF once the
// source is exhausted and everything converted has been returned.
func (s *Stream) Read(dst []int16) (int, error) {
	want := len(dst) / s.channels * s.channels
	for len(s.pending) < want && !s.eof {
		n, err := s.src.Read(s.in)
		if n > 0 {
			var m int
			if s.channels == 1 {
				m = Downmix(s.mixed, s.in[:n], s.src.Channels())
			} else {
				m = toStereo(s.mixed, s.in[:n], s.src.Channels())
			}
			s.pending = s.rs.Resample(s.pending, s.mixed[:m])
		}
		if err == io.EOF {
			s.eof = true
		} else if err != nil {
			return 0, err
		}
	}

	n := copy(dst[:want], s.pending)
	s.pending = s.pending[n:]
	if n == 0 && s.eof {
		return 0, io.EOF
	}
	return n, nil
}

// Close closes the source
func (s *Stream) Close() error {
	return s.src.Close()
}

// Bytes left for i2s_write data once the frame header, trailer, a two byte
// command id, the oid and the data length prefix are accounted for
const writePayloadMax = protocol.MessageLengthMax - protocol.MessageHeaderSize -
	protocol.MessageTrailerSize - 2 - 1 - 1

// ChunkBytes is the largest whole-frame i2s_write payload for the given
// channel count
func ChunkBytes(channels int) int {
	frameBytes := 2 * channels
	return writePayloadMax / frameBytes * frameBytes
}

// EncodeLE appends samples to dst as little-endian int16
func EncodeLE(dst []byte, samples []int16) []byte {
	for _, v := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(v))
	}
	return dst
}
