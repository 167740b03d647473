package core

import "testing"

func TestI2SPinConstants(t *testing.T) {
	if I2SDataOutPin != 25 {
		t.Errorf("data out pin = %d, want 25", I2SDataOutPin)
	}
	if I2SBitClockPin != 27 {
		t.Errorf("bit clock pin = %d, want 27", I2SBitClockPin)
	}
	if I2SWordSelectPin != 26 {
		t.Errorf("word select pin = %d, want 26", I2SWordSelectPin)
	}
}

func TestDefaultI2SConfig(t *testing.T) {
	cfg := DefaultI2SConfig()

	if cfg.Mode != I2SModeController|I2SModeTX {
		t.Errorf("mode = %s, want controller|tx", cfg.Mode)
	}
	if cfg.SampleRate != 22050 {
		t.Errorf("sample rate = %d, want 22050", cfg.SampleRate)
	}
	if cfg.BitsPerSample != 16 {
		t.Errorf("bits = %d, want 16", cfg.BitsPerSample)
	}
	if cfg.DMABufCount != 8 {
		t.Errorf("dma buf count = %d, want 8", cfg.DMABufCount)
	}
	if cfg.DMABufLen != 64 {
		t.Errorf("dma buf len = %d, want 64", cfg.DMABufLen)
	}
	if cfg.ChannelFormat != I2SChannelOnlyRight {
		t.Errorf("channel format = %s, want only_right", cfg.ChannelFormat)
	}
	if cfg.CommFormat != I2SCommStandardI2S {
		t.Errorf("comm format = %s, want i2s", cfg.CommFormat)
	}
	if cfg.IntrFlags != I2SIntrLevel1 || cfg.IntrFlags.Level() != 1 {
		t.Errorf("intr flags = %#x, want level 1", uint16(cfg.IntrFlags))
	}
	if cfg.UseAPLL {
		t.Error("use_apll should be false")
	}
	if !cfg.TxDescAutoClear {
		t.Error("tx_desc_auto_clear should be true")
	}
	if cfg.FixedMCLK != 0 {
		t.Errorf("fixed mclk = %d, want 0", cfg.FixedMCLK)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestDefaultI2SPinConfig(t *testing.T) {
	pins := DefaultI2SPinConfig()

	if pins.DataIn != I2SPinNoChange || pins.DataIn.Connected() {
		t.Errorf("data in = %d, want not connected", pins.DataIn)
	}
	if pins.BitClock != 27 {
		t.Errorf("bit clock = %d, want 27", pins.BitClock)
	}
	if pins.WordSelect != 26 {
		t.Errorf("word select = %d, want 26", pins.WordSelect)
	}
	if pins.DataOut != 25 {
		t.Errorf("data out = %d, want 25", pins.DataOut)
	}

	if err := pins.Validate(I2SDefaultMode); err != nil {
		t.Errorf("default pins do not validate: %v", err)
	}
}

func TestDefaultsAreImmutable(t *testing.T) {
	a := DefaultI2SConfig()
	a.SampleRate = 48000
	a.DMABufCount = 2
	b := DefaultI2SConfig()
	if b != DefaultI2SConfig() {
		t.Error("two reads of the default config differ")
	}
	if b.SampleRate != 22050 || b.DMABufCount != 8 {
		t.Error("modifying a returned config leaked into the defaults")
	}

	p := DefaultI2SPinConfig()
	p.DataOut = 3
	if DefaultI2SPinConfig() != DefaultI2SPinConfig() || DefaultI2SPinConfig().DataOut != 25 {
		t.Error("modifying a returned pin config leaked into the defaults")
	}
}

func TestI2SConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*I2SConfig)
		want   error
	}{
		{"default", func(c *I2SConfig) {}, nil},
		{"both roles", func(c *I2SConfig) { c.Mode |= I2SModeTarget }, ErrI2SInvalidMode},
		{"no role", func(c *I2SConfig) { c.Mode = I2SModeTX }, ErrI2SInvalidMode},
		{"no direction", func(c *I2SConfig) { c.Mode = I2SModeController }, ErrI2SInvalidMode},
		{"zero rate", func(c *I2SConfig) { c.SampleRate = 0 }, ErrI2SInvalidSampleRate},
		{"rate too high", func(c *I2SConfig) { c.SampleRate = 384000 }, ErrI2SInvalidSampleRate},
		{"bits 12", func(c *I2SConfig) { c.BitsPerSample = 12 }, ErrI2SInvalidBits},
		{"bits 24", func(c *I2SConfig) { c.BitsPerSample = I2SBitsPerSample24 }, nil},
		{"channel format", func(c *I2SConfig) { c.ChannelFormat = 9 }, ErrI2SInvalidChannelFormat},
		{"comm format", func(c *I2SConfig) { c.CommFormat = 0x02 }, ErrI2SInvalidCommFormat},
		{"pcm short", func(c *I2SConfig) { c.CommFormat = I2SCommPCMShort }, nil},
		{"one buffer", func(c *I2SConfig) { c.DMABufCount = 1 }, ErrI2SInvalidDMA},
		{"too many buffers", func(c *I2SConfig) { c.DMABufCount = 200 }, ErrI2SInvalidDMA},
		{"short buffer", func(c *I2SConfig) { c.DMABufLen = 4 }, ErrI2SInvalidDMA},
		{"long buffer", func(c *I2SConfig) { c.DMABufLen = 2048 }, ErrI2SInvalidDMA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultI2SConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err != tt.want {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestI2SPinConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		pins I2SPinConfig
		mode I2SMode
		want error
	}{
		{"default", DefaultI2SPinConfig(), I2SDefaultMode, nil},
		{"no data out", I2SPinConfig{BitClock: 27, WordSelect: 26, DataOut: -1, DataIn: -1}, I2SDefaultMode, ErrI2SMissingPin},
		{"no bit clock", I2SPinConfig{BitClock: -1, WordSelect: 26, DataOut: 25, DataIn: -1}, I2SDefaultMode, ErrI2SMissingPin},
		{"rx without data in", DefaultI2SPinConfig(), I2SModeController | I2SModeRX, ErrI2SMissingPin},
		{"conflict", I2SPinConfig{BitClock: 27, WordSelect: 27, DataOut: 25, DataIn: -1}, I2SDefaultMode, ErrI2SPinConflict},
		{"data in conflict", I2SPinConfig{BitClock: 27, WordSelect: 26, DataOut: 25, DataIn: 25}, I2SDefaultMode, ErrI2SPinConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.pins.Validate(tt.mode); err != tt.want {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestI2SDerivedTiming(t *testing.T) {
	cfg := DefaultI2SConfig()

	if got := cfg.BitClockHz(); got != 22050*16*2 {
		t.Errorf("BitClockHz = %d, want %d", got, 22050*16*2)
	}
	if got := cfg.SlotsPerFrame(); got != 1 {
		t.Errorf("SlotsPerFrame = %d, want 1 for only_right", got)
	}
	if got := cfg.FrameBytes(); got != 2 {
		t.Errorf("FrameBytes = %d, want 2", got)
	}
	if got := cfg.DMABytes(); got != 8*64*2 {
		t.Errorf("DMABytes = %d, want %d", got, 8*64*2)
	}
	// 64 frames at 22050 Hz is 2902.49us
	if got := cfg.BufferPeriodUS(); got != 2902 {
		t.Errorf("BufferPeriodUS = %d, want 2902", got)
	}
	if got := cfg.LatencyUS(); got != 2902*8 {
		t.Errorf("LatencyUS = %d, want %d", got, 2902*8)
	}

	cfg.ChannelFormat = I2SChannelRightLeft
	cfg.BitsPerSample = I2SBitsPerSample24
	if got := cfg.FrameBytes(); got != 8 {
		t.Errorf("stereo 24-bit FrameBytes = %d, want 8", got)
	}
	// 24-bit samples travel in 32-bit slots
	if got := cfg.SlotBits(); got != 32 {
		t.Errorf("24-bit SlotBits = %d, want 32", got)
	}
	if got := cfg.BitClockHz(); got != 22050*32*2 {
		t.Errorf("24-bit BitClockHz = %d, want %d", got, 22050*32*2)
	}
}

func TestI2SEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{(I2SModeController | I2SModeTX).String(), "controller|tx"},
		{I2SMode(0).String(), "none"},
		{I2SMode(0x80 | 0x01).String(), "controller|unknown"},
		{I2SBitsPerSample16.String(), "16bit"},
		{I2SBitsPerSample(7).String(), "invalid"},
		{I2SChannelOnlyRight.String(), "only_right"},
		{I2SChannelFormat(42).String(), "invalid"},
		{I2SCommPCMLong.String(), "pcm_long"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}

	if I2SBitsPerSample24.Bytes() != 4 || I2SBitsPerSample8.Bytes() != 1 {
		t.Error("unexpected sample storage size")
	}
	if (I2SIntrShared | I2SIntrLevel3).Level() != 3 {
		t.Error("level 3 not detected")
	}
	if I2SIntrFlags(0).Level() != 0 {
		t.Error("empty flags should have level 0")
	}
}
