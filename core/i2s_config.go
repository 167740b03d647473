package core

// I2S wiring for the default audio board.
const (
	I2SDataOutPin    I2SPin = 25 // DOUT
	I2SBitClockPin   I2SPin = 27 // BCLK
	I2SWordSelectPin I2SPin = 26 // LRC
)

// I2SPinNoChange marks a pin role as not connected.
const I2SPinNoChange I2SPin = -1

// Default operating parameters: 22.05 kHz, 16-bit, right slot only,
// standard I2S framing, 8 DMA buffers of 64 frames.
const (
	I2SDefaultMode          = I2SModeController | I2SModeTX
	I2SDefaultSampleRate    = 22050
	I2SDefaultBitsPerSample = I2SBitsPerSample16
	I2SDefaultChannelFormat = I2SChannelOnlyRight
	I2SDefaultCommFormat    = I2SCommStandardI2S
	I2SDefaultIntrFlags     = I2SIntrLevel1
	I2SDefaultDMABufCount   = 8
	I2SDefaultDMABufLen     = 64
	I2SDefaultUseAPLL       = false
	I2SDefaultAutoClear     = true
	I2SDefaultFixedMCLK     = 0
)

// I2SConfig describes how the I2S peripheral is driven.
type I2SConfig struct {
	Mode            I2SMode
	SampleRate      uint32 // Hz
	BitsPerSample   I2SBitsPerSample
	ChannelFormat   I2SChannelFormat
	CommFormat      I2SCommFormat
	IntrFlags       I2SIntrFlags
	DMABufCount     uint8  // number of DMA buffers
	DMABufLen       uint16 // frames per DMA buffer
	UseAPLL         bool   // use the audio PLL as clock source
	TxDescAutoClear bool   // send silence instead of stale data on underrun
	FixedMCLK       uint32 // Hz, 0 = derived from sample rate
}

// I2SPinConfig maps the I2S signal roles to GPIO pins.
type I2SPinConfig struct {
	BitClock   I2SPin
	WordSelect I2SPin
	DataOut    I2SPin
	DataIn     I2SPin
}

// DefaultI2SConfig returns the board's I2S configuration.
// Every call returns the same value; callers own the copy they receive.
func DefaultI2SConfig() I2SConfig {
	return I2SConfig{
		Mode:            I2SDefaultMode,
		SampleRate:      I2SDefaultSampleRate,
		BitsPerSample:   I2SDefaultBitsPerSample,
		ChannelFormat:   I2SDefaultChannelFormat,
		CommFormat:      I2SDefaultCommFormat,
		IntrFlags:       I2SDefaultIntrFlags,
		DMABufCount:     I2SDefaultDMABufCount,
		DMABufLen:       I2SDefaultDMABufLen,
		UseAPLL:         I2SDefaultUseAPLL,
		TxDescAutoClear: I2SDefaultAutoClear,
		FixedMCLK:       I2SDefaultFixedMCLK,
	}
}

// DefaultI2SPinConfig returns the board's I2S pin mapping.
// The data-in role is unused because the board only transmits.
func DefaultI2SPinConfig() I2SPinConfig {
	return I2SPinConfig{
		BitClock:   I2SBitClockPin,
		WordSelect: I2SWordSelectPin,
		DataOut:    I2SDataOutPin,
		DataIn:     I2SPinNoChange,
	}
}

// Limits accepted by Validate
const (
	I2SMaxSampleRate  = 192000
	I2SMinDMABufCount = 2
	I2SMaxDMABufCount = 128
	I2SMinDMABufLen   = 8
	I2SMaxDMABufLen   = 1024
)

// Validate checks that the configuration is internally consistent.
func (c I2SConfig) Validate() error {
	controller := c.Mode.Has(I2SModeController)
	target := c.Mode.Has(I2SModeTarget)
	if controller == target {
		return ErrI2SInvalidMode
	}
	if !c.Mode.Has(I2SModeTX) && !c.Mode.Has(I2SModeRX) {
		return ErrI2SInvalidMode
	}
	if c.SampleRate == 0 || c.SampleRate > I2SMaxSampleRate {
		return ErrI2SInvalidSampleRate
	}
	if !c.BitsPerSample.Valid() {
		return ErrI2SInvalidBits
	}
	if !c.ChannelFormat.Valid() {
		return ErrI2SInvalidChannelFormat
	}
	if !c.CommFormat.Valid() {
		return ErrI2SInvalidCommFormat
	}
	if c.DMABufCount < I2SMinDMABufCount || c.DMABufCount > I2SMaxDMABufCount {
		return ErrI2SInvalidDMA
	}
	if c.DMABufLen < I2SMinDMABufLen || c.DMABufLen > I2SMaxDMABufLen {
		return ErrI2SInvalidDMA
	}
	return nil
}

// Validate checks the pin mapping against the roles the mode needs.
func (p I2SPinConfig) Validate(mode I2SMode) error {
	if !p.BitClock.Connected() || !p.WordSelect.Connected() {
		return ErrI2SMissingPin
	}
	if mode.Has(I2SModeTX) && !p.DataOut.Connected() {
		return ErrI2SMissingPin
	}
	if mode.Has(I2SModeRX) && !p.DataIn.Connected() {
		return ErrI2SMissingPin
	}

	active := [4]I2SPin{p.BitClock, p.WordSelect, p.DataOut, p.DataIn}
	for i := 0; i < len(active); i++ {
		if !active[i].Connected() {
			continue
		}
		for j := i + 1; j < len(active); j++ {
			if active[i] == active[j] {
				return ErrI2SPinConflict
			}
		}
	}
	return nil
}

// Uses reports whether a connected pin of the set is the given GPIO
func (p I2SPinConfig) Uses(gpio uint32) bool {
	for _, pin := range [4]I2SPin{p.BitClock, p.WordSelect, p.DataOut, p.DataIn} {
		if pin.Connected() && uint32(pin) == gpio {
			return true
		}
	}
	return false
}

// SlotsPerFrame returns how many slots carry data in one frame.
func (c I2SConfig) SlotsPerFrame() int {
	if c.ChannelFormat.Mono() {
		return 1
	}
	return 2
}

// SlotBits returns the width of one slot on the wire. 24-bit samples are
// sent in 32-bit slots, matching their storage size.
func (c I2SConfig) SlotBits() int {
	return c.BitsPerSample.Bytes() * 8
}

// BitClockHz returns the bit clock frequency. I2S always clocks both
// slots, so mono formats still pay for two.
func (c I2SConfig) BitClockHz() uint32 {
	return c.SampleRate * uint32(c.SlotBits()) * 2
}

// FrameBytes returns the size of one frame as stored in the DMA ring.
func (c I2SConfig) FrameBytes() int {
	return c.SlotsPerFrame() * c.BitsPerSample.Bytes()
}

// DMABytes returns the total DMA memory the configuration asks for.
func (c I2SConfig) DMABytes() int {
	return int(c.DMABufCount) * int(c.DMABufLen) * c.FrameBytes()
}

// BufferPeriodUS returns how long one DMA buffer lasts in microseconds.
func (c I2SConfig) BufferPeriodUS() uint32 {
	if c.SampleRate == 0 {
		return 0
	}
	return uint32(uint64(c.DMABufLen) * 1000000 / uint64(c.SampleRate))
}

// LatencyUS returns the time needed to play a full DMA ring.
func (c I2SConfig) LatencyUS() uint32 {
	return c.BufferPeriodUS() * uint32(c.DMABufCount)
}
