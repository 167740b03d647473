package main

import (
	"testing"

	"audiofw/core"
)

func TestStereoConfigKeepsBothChannels(t *testing.T) {
	cfg := stereoConfig()
	if cfg.ChannelFormat != core.I2SChannelRightLeft {
		t.Fatalf("channel format = %s, want right_left", cfg.ChannelFormat)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("stereo config does not validate: %v", err)
	}
	l, r := core.UnpackStereo(cfg.PackStereo(100, -100))
	if l != 100 || r != -100 {
		t.Errorf("stereo frame = (%d, %d), want (100, -100)", l, r)
	}

	def := core.DefaultI2SConfig()
	def.ChannelFormat = cfg.ChannelFormat
	if def != cfg {
		t.Error("stereo config differs from the defaults beyond the channel format")
	}
}
