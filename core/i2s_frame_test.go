package core

import "testing"

func TestPackStereo(t *testing.T) {
	// Right slot in the high half, shifted out while WS is high
	f := PackStereo(-1, 0x1234)
	if f != 0x1234FFFF {
		t.Errorf("PackStereo = %#08x, want 0x1234ffff", f)
	}
	l, r := UnpackStereo(f)
	if l != -1 || r != 0x1234 {
		t.Errorf("UnpackStereo = (%d, %d), want (-1, 4660)", l, r)
	}
}

func TestPackFrameOnlyRightUsesHighHalf(t *testing.T) {
	cfg := DefaultI2SConfig()
	if cfg.ChannelFormat != I2SChannelOnlyRight {
		t.Fatalf("default channel format = %v", cfg.ChannelFormat)
	}
	if f := cfg.PackFrame(0x1234); f != 0x12340000 {
		t.Errorf("only_right frame = %#08x, want 0x12340000", f)
	}
	cfg.ChannelFormat = I2SChannelOnlyLeft
	if f := cfg.PackFrame(0x1234); f != 0x00001234 {
		t.Errorf("only_left frame = %#08x, want 0x00001234", f)
	}
}

func TestPackFrameChannelFormats(t *testing.T) {
	const s int16 = 1000
	tests := []struct {
		format      I2SChannelFormat
		left, right int16
	}{
		{I2SChannelOnlyRight, 0, s},
		{I2SChannelOnlyLeft, s, 0},
		{I2SChannelRightLeft, s, s},
		{I2SChannelAllRight, s, s},
		{I2SChannelAllLeft, s, s},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			cfg := DefaultI2SConfig()
			cfg.ChannelFormat = tt.format
			l, r := UnpackStereo(cfg.PackFrame(s))
			if l != tt.left || r != tt.right {
				t.Errorf("PackFrame = (%d, %d), want (%d, %d)", l, r, tt.left, tt.right)
			}
		})
	}
}

func TestPackStereoChannelFormats(t *testing.T) {
	tests := []struct {
		format      I2SChannelFormat
		left, right int16
	}{
		{I2SChannelRightLeft, 1, 2},
		{I2SChannelAllRight, 2, 2},
		{I2SChannelAllLeft, 1, 1},
		{I2SChannelOnlyRight, 0, 2},
		{I2SChannelOnlyLeft, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			cfg := DefaultI2SConfig()
			cfg.ChannelFormat = tt.format
			l, r := UnpackStereo(cfg.PackStereo(1, 2))
			if l != tt.left || r != tt.right {
				t.Errorf("PackStereo = (%d, %d), want (%d, %d)", l, r, tt.left, tt.right)
			}
		})
	}
}

func TestPackSamplesLE(t *testing.T) {
	cfg := DefaultI2SConfig()
	src := []byte{0x34, 0x12, 0xFF, 0xFF, 0x00, 0x80, 0x7F} // trailing odd byte
	dst := make([]uint32, 8)

	n := cfg.PackSamplesLE(dst, src)
	if n != 3 {
		t.Fatalf("PackSamplesLE = %d, want 3", n)
	}
	want := []int16{0x1234, -1, -32768}
	for i, w := range want {
		l, r := UnpackStereo(dst[i])
		if l != 0 || r != w {
			t.Errorf("frame %d = (%d, %d), want (0, %d)", i, l, r, w)
		}
	}

	// dst bounds the conversion
	if n := cfg.PackSamplesLE(dst[:1], src); n != 1 {
		t.Errorf("PackSamplesLE into short dst = %d, want 1", n)
	}
}

func TestPackStereoLE(t *testing.T) {
	cfg := DefaultI2SConfig()
	cfg.ChannelFormat = I2SChannelRightLeft
	src := []byte{0x01, 0x00, 0x02, 0x00, 0xFE, 0xFF, 0xFD, 0xFF, 0xAA}
	dst := make([]uint32, 4)

	n := cfg.PackStereoLE(dst, src)
	if n != 2 {
		t.Fatalf("PackStereoLE = %d, want 2", n)
	}
	if dst[0] != PackStereo(1, 2) || dst[1] != PackStereo(-2, -3) {
		t.Errorf("frames = %#x %#x", dst[0], dst[1])
	}
}
