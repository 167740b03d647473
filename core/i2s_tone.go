package core

// sineTable holds one period of a full-scale sine, 32 steps.
var sineTable = [32]int16{
	0, 6393, 12540, 18205, 23170, 27245, 30273, 32138,
	32767, 32138, 30273, 27245, 23170, 18205, 12540, 6393,
	0, -6393, -12540, -18205, -23170, -27245, -30273, -32138,
	-32767, -32138, -30273, -27245, -23170, -18205, -12540, -6393,
}

// ToneGenerator produces a sine wave one frame at a time using a 16.16
// fixed-point phase accumulator over sineTable.
type ToneGenerator struct {
	phase      uint32
	step       uint32
	amplitude  uint16
	remaining  uint32 // frames left when not continuous
	continuous bool
}

// NewToneGenerator creates a tone of freq Hz at the given sample rate.
// amplitude scales the table (32767 = full scale). A zero durationMS runs
// until Stop is called.
func NewToneGenerator(freq, sampleRate uint32, amplitude uint16, durationMS uint32) *ToneGenerator {
	g := &ToneGenerator{amplitude: amplitude}
	if amplitude > 32767 {
		g.amplitude = 32767
	}
	if sampleRate > 0 {
		// table steps per frame in 16.16: freq * 32 / rate
		g.step = uint32((uint64(freq) * uint64(len(sineTable)) << 16) / uint64(sampleRate))
		g.remaining = uint32(uint64(durationMS) * uint64(sampleRate) / 1000)
	}
	g.continuous = durationMS == 0
	return g
}

// Done reports whether the tone has finished.
func (g *ToneGenerator) Done() bool {
	return !g.continuous && g.remaining == 0
}

// Stop ends the tone.
func (g *ToneGenerator) Stop() {
	g.continuous = false
	g.remaining = 0
}

// Next returns the next sample.
func (g *ToneGenerator) Next() int16 {
	idx := (g.phase >> 16) & uint32(len(sineTable)-1)
	g.phase += g.step
	return int16(int32(sineTable[idx]) * int32(g.amplitude) / 32767)
}

// Fill writes up to len(dst) frames packed for cfg and returns the count.
func (g *ToneGenerator) Fill(cfg I2SConfig, dst []uint32) int {
	n := len(dst)
	if !g.continuous && uint32(n) > g.remaining {
		n = int(g.remaining)
	}
	for i := 0; i < n; i++ {
		dst[i] = cfg.PackFrame(g.Next())
	}
	if !g.continuous {
		g.remaining -= uint32(n)
	}
	return n
}
