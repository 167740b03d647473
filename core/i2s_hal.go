package core

import "errors"

// I2SPin identifies a GPIO used by the I2S peripheral.
// Negative values mean the role is not connected.
type I2SPin int16

// Connected reports whether the pin is wired.
func (p I2SPin) Connected() bool {
	return p >= 0
}

// I2SMode is a set of role flags. Values match the ESP-IDF legacy driver.
type I2SMode uint8

const (
	I2SModeController I2SMode = 1 << 0 // generates BCLK and WS
	I2SModeTarget     I2SMode = 1 << 1 // follows external clocks
	I2SModeTX         I2SMode = 1 << 2
	I2SModeRX         I2SMode = 1 << 3
	I2SModeDACBuiltIn I2SMode = 1 << 4
	I2SModeADCBuiltIn I2SMode = 1 << 5
	I2SModePDM        I2SMode = 1 << 6
)

// Has reports whether all flags in f are set.
func (m I2SMode) Has(f I2SMode) bool {
	return m&f == f
}

func (m I2SMode) String() string {
	if m == 0 {
		return "none"
	}
	names := [...]string{"controller", "target", "tx", "rx", "dac", "adc", "pdm"}
	s := ""
	for i, name := range names {
		if m&(1<<uint(i)) == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	if m&^(1<<uint(len(names))-1) != 0 {
		if s != "" {
			s += "|"
		}
		s += "unknown"
	}
	return s
}

// I2SBitsPerSample is the width of one slot sample.
type I2SBitsPerSample uint8

const (
	I2SBitsPerSample8  I2SBitsPerSample = 8
	I2SBitsPerSample16 I2SBitsPerSample = 16
	I2SBitsPerSample24 I2SBitsPerSample = 24
	I2SBitsPerSample32 I2SBitsPerSample = 32
)

// Valid reports whether b is a supported width.
func (b I2SBitsPerSample) Valid() bool {
	switch b {
	case I2SBitsPerSample8, I2SBitsPerSample16, I2SBitsPerSample24, I2SBitsPerSample32:
		return true
	}
	return false
}

// Bytes returns the storage size of one sample. 24-bit samples occupy 4 bytes.
func (b I2SBitsPerSample) Bytes() int {
	switch b {
	case I2SBitsPerSample8:
		return 1
	case I2SBitsPerSample16:
		return 2
	case I2SBitsPerSample24, I2SBitsPerSample32:
		return 4
	}
	return 0
}

func (b I2SBitsPerSample) String() string {
	if !b.Valid() {
		return "invalid"
	}
	return itoa(int(b)) + "bit"
}

// I2SChannelFormat selects which slots carry data.
type I2SChannelFormat uint8

const (
	I2SChannelRightLeft I2SChannelFormat = iota // separate left and right
	I2SChannelAllRight                          // right data on both slots
	I2SChannelAllLeft                           // left data on both slots
	I2SChannelOnlyRight                         // right slot only
	I2SChannelOnlyLeft                          // left slot only
)

// Valid reports whether f is a known channel format.
func (f I2SChannelFormat) Valid() bool {
	return f <= I2SChannelOnlyLeft
}

// Mono reports whether one sample is sent per frame.
func (f I2SChannelFormat) Mono() bool {
	return f == I2SChannelOnlyRight || f == I2SChannelOnlyLeft
}

func (f I2SChannelFormat) String() string {
	switch f {
	case I2SChannelRightLeft:
		return "right_left"
	case I2SChannelAllRight:
		return "all_right"
	case I2SChannelAllLeft:
		return "all_left"
	case I2SChannelOnlyRight:
		return "only_right"
	case I2SChannelOnlyLeft:
		return "only_left"
	}
	return "invalid"
}

// I2SCommFormat is the wire framing standard.
type I2SCommFormat uint8

const (
	I2SCommStandardI2S I2SCommFormat = 0x01 // Philips: data one BCLK after WS edge
	I2SCommStandardMSB I2SCommFormat = 0x03 // left justified
	I2SCommPCMShort    I2SCommFormat = 0x04 // PCM, one-bit frame sync
	I2SCommPCMLong     I2SCommFormat = 0x0C // PCM, slot-wide frame sync
)

// Valid reports whether f is a known framing.
func (f I2SCommFormat) Valid() bool {
	switch f {
	case I2SCommStandardI2S, I2SCommStandardMSB, I2SCommPCMShort, I2SCommPCMLong:
		return true
	}
	return false
}

func (f I2SCommFormat) String() string {
	switch f {
	case I2SCommStandardI2S:
		return "i2s"
	case I2SCommStandardMSB:
		return "msb"
	case I2SCommPCMShort:
		return "pcm_short"
	case I2SCommPCMLong:
		return "pcm_long"
	}
	return "invalid"
}

// I2SIntrFlags is the interrupt allocation hint (ESP interrupt flags).
type I2SIntrFlags uint16

const (
	I2SIntrLevel1 I2SIntrFlags = 1 << 1
	I2SIntrLevel2 I2SIntrFlags = 1 << 2
	I2SIntrLevel3 I2SIntrFlags = 1 << 3
	I2SIntrShared I2SIntrFlags = 1 << 10
	I2SIntrIRAM   I2SIntrFlags = 1 << 11
)

// Level returns the lowest requested interrupt level, or 0 if none.
func (f I2SIntrFlags) Level() int {
	for lvl := 1; lvl <= 3; lvl++ {
		if f&(1<<uint(lvl)) != 0 {
			return lvl
		}
	}
	return 0
}

// I2S errors
var (
	ErrI2SInvalidMode          = errors.New("i2s: invalid mode")
	ErrI2SInvalidSampleRate    = errors.New("i2s: invalid sample rate")
	ErrI2SInvalidBits          = errors.New("i2s: invalid bits per sample")
	ErrI2SInvalidChannelFormat = errors.New("i2s: invalid channel format")
	ErrI2SInvalidCommFormat    = errors.New("i2s: invalid communication format")
	ErrI2SInvalidDMA           = errors.New("i2s: invalid dma buffer geometry")
	ErrI2SMissingPin           = errors.New("i2s: required pin not connected")
	ErrI2SPinConflict          = errors.New("i2s: pin assigned to more than one role")
	ErrI2SPinLayout            = errors.New("i2s: pin layout not supported by this target")
	ErrI2SUnsupported          = errors.New("i2s: configuration not supported by this target")
	ErrI2SNotInstalled         = errors.New("i2s: driver not installed")
	ErrI2SAlreadyConfigured    = errors.New("i2s: oid already configured")
)

// I2SDriver is the abstract I2S interface that core code uses.
// Platform-specific implementations handle the actual peripheral.
type I2SDriver interface {
	// Install claims the hardware and applies cfg and pins.
	// The peripheral stays stopped until Start is called.
	Install(cfg I2SConfig, pins I2SPinConfig) error

	// SetSampleRate reprograms the clocks for a new sample rate
	SetSampleRate(hz uint32) error

	// WriteFrames queues packed frames (right<<16 | left) without blocking
	// Returns how many frames the hardware accepted
	WriteFrames(frames []uint32) (int, error)

	// Idle reports whether the hardware has run out of frames to shift out
	Idle() bool

	// Start begins clocking data out
	Start() error

	// Stop halts the peripheral and drops anything queued in hardware
	Stop() error

	// Uninstall releases the hardware
	Uninstall() error
}

// Global singleton used by core code.
var i2sDriver I2SDriver

// SetI2SDriver is called by target-specific code to register its driver.
func SetI2SDriver(d I2SDriver) {
	i2sDriver = d
}

// MustI2S returns the configured driver or panics if missing.
func MustI2S() I2SDriver {
	if i2sDriver == nil {
		panic("I2S driver not configured")
	}
	return i2sDriver
}
