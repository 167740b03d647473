package core

// Frames are stored as the word the peripheral shifts out MSB first:
// bits 31:16 carry the right slot (WS high), bits 15:0 the left slot
// (WS low).

// PackStereo builds a frame from a left and a right sample.
func PackStereo(left, right int16) uint32 {
	return uint32(uint16(right))<<16 | uint32(uint16(left))
}

// UnpackStereo splits a frame into its left and right samples.
func UnpackStereo(frame uint32) (left, right int16) {
	return int16(frame), int16(frame >> 16)
}

// PackFrame places a mono sample into the slots selected by the channel
// format. The unused slot of the only_* formats is silent.
func (c I2SConfig) PackFrame(sample int16) uint32 {
	switch c.ChannelFormat {
	case I2SChannelOnlyRight:
		return PackStereo(0, sample)
	case I2SChannelOnlyLeft:
		return PackStereo(sample, 0)
	default:
		return PackStereo(sample, sample)
	}
}

// PackStereo builds a frame from a stereo pair according to the channel
// format. Mono formats keep only their own side.
func (c I2SConfig) PackStereo(left, right int16) uint32 {
	switch c.ChannelFormat {
	case I2SChannelOnlyRight:
		return PackStereo(0, right)
	case I2SChannelOnlyLeft:
		return PackStereo(left, 0)
	case I2SChannelAllRight:
		return PackStereo(right, right)
	case I2SChannelAllLeft:
		return PackStereo(left, left)
	default:
		return PackStereo(left, right)
	}
}

// PackSamplesLE converts little-endian int16 mono samples into frames.
// A trailing odd byte is ignored. Returns the number of frames written.
func (c I2SConfig) PackSamplesLE(dst []uint32, src []byte) int {
	n := len(src) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		s := int16(uint16(src[2*i]) | uint16(src[2*i+1])<<8)
		dst[i] = c.PackFrame(s)
	}
	return n
}

// PackStereoLE converts interleaved little-endian L/R int16 pairs into frames.
func (c I2SConfig) PackStereoLE(dst []uint32, src []byte) int {
	n := len(src) / 4
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		b := src[4*i:]
		l := int16(uint16(b[0]) | uint16(b[1])<<8)
		r := int16(uint16(b[2]) | uint16(b[3])<<8)
		dst[i] = c.PackStereo(l, r)
	}
	return n
}
