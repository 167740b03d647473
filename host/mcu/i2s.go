package mcu

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"audiofw/core"
)

// I2SState mirrors the i2s_state response
type I2SState struct {
	OID        uint8
	Running    bool
	Queued     int // frames waiting in the ring
	Free       int // frames the ring can still accept
	Underruns  uint32
	SampleRate uint32
}

// QueryI2SState asks the MCU for the state of an output
func (m *MCU) QueryI2SState(oid uint8) (I2SState, error) {
	resp, err := m.Query("i2s_state", responseTimeout, "i2s_query_state", oid)
	if err != nil {
		return I2SState{}, err
	}
	return stateFromResponse(resp), nil
}

// WaitI2SState returns the next unsolicited i2s_state report
func (m *MCU) WaitI2SState(timeout time.Duration) (I2SState, error) {
	resp, err := m.WaitFor("i2s_state", timeout)
	if err != nil {
		return I2SState{}, err
	}
	return stateFromResponse(resp), nil
}

func stateFromResponse(resp *Response) I2SState {
	return I2SState{
		OID:        uint8(resp.Uint("oid")),
		Running:    resp.Uint("running") != 0,
		Queued:     int(resp.Uint("queued")),
		Free:       int(resp.Uint("free")),
		Underruns:  resp.Uint("underruns"),
		SampleRate: resp.Uint("sample_rate"),
	}
}

// ConfigureI2S sends a full config_i2s after checking it locally
func (m *MCU) ConfigureI2S(oid uint8, cfg core.I2SConfig, pins core.I2SPinConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("i2s config: %w", err)
	}
	if err := pins.Validate(cfg.Mode); err != nil {
		return fmt.Errorf("i2s pins: %w", err)
	}
	m.log.Info("configuring i2s",
		zap.Uint8("oid", oid),
		zap.Uint32("rate", cfg.SampleRate),
		zap.Stringer("channels", cfg.ChannelFormat),
		zap.Int("dma_buf_count", int(cfg.DMABufCount)),
		zap.Int("dma_buf_len", int(cfg.DMABufLen)))
	return m.Send("config_i2s",
		oid, uint8(cfg.Mode), cfg.SampleRate, uint8(cfg.BitsPerSample),
		uint8(cfg.ChannelFormat), uint8(cfg.CommFormat), uint16(cfg.IntrFlags),
		cfg.DMABufCount, cfg.DMABufLen, cfg.UseAPLL, cfg.TxDescAutoClear,
		cfg.FixedMCLK,
		int16(pins.BitClock), int16(pins.WordSelect), int16(pins.DataOut), int16(pins.DataIn))
}

// ConfigureI2SDefault configures an output with the board defaults
func (m *MCU) ConfigureI2SDefault(oid uint8) error {
	return m.Send("config_i2s_default", oid)
}

// ConfigureI2SAmp attaches an amplifier enable pin to an output
func (m *MCU) ConfigureI2SAmp(oid uint8, pin uint32, activeHigh bool) error {
	return m.Send("config_i2s_amp", oid, pin, activeHigh)
}

// StartI2S starts streaming
func (m *MCU) StartI2S(oid uint8) error {
	return m.Send("i2s_start", oid)
}

// StopI2S stops streaming; queued audio is kept
func (m *MCU) StopI2S(oid uint8) error {
	return m.Send("i2s_stop", oid)
}

// ZeroI2S drops queued audio and clears the output buffers
func (m *MCU) ZeroI2S(oid uint8) error {
	return m.Send("i2s_zero_dma", oid)
}

// SetI2SSampleRate changes the sample rate of a configured output
func (m *MCU) SetI2SSampleRate(oid uint8, rate uint32) error {
	return m.Send("i2s_set_sample_rate", oid, rate)
}

// WriteI2S queues little-endian int16 mono samples
func (m *MCU) WriteI2S(oid uint8, pcm []byte) error {
	return m.Send("i2s_write", oid, pcm)
}

// WriteI2SStereo queues interleaved little-endian int16 stereo samples
func (m *MCU) WriteI2SStereo(oid uint8, pcm []byte) error {
	return m.Send("i2s_write_stereo", oid, pcm)
}

// ToneI2S plays a sine tone; durationMS 0 plays until stopped
func (m *MCU) ToneI2S(oid uint8, freq uint32, amplitude uint16, durationMS uint32) error {
	return m.Send("i2s_tone", oid, freq, amplitude, durationMS)
}

// ReportI2S asks for an i2s_state report every restTicks; 0 stops reports
func (m *MCU) ReportI2S(oid uint8, clock, restTicks uint32) error {
	return m.Send("i2s_report", oid, clock, restTicks)
}
