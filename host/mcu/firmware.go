package mcu

import (
	"fmt"
	"time"
)

// FirmwareConfig mirrors the config response
type FirmwareConfig struct {
	IsConfig   bool
	CRC        uint32
	IsShutdown bool
	MoveCount  int
}

// GetConfig reports whether the MCU is configured and whether it is shut down
func (m *MCU) GetConfig() (FirmwareConfig, error) {
	resp, err := m.Query("config", responseTimeout, "get_config")
	if err != nil {
		return FirmwareConfig{}, err
	}
	return FirmwareConfig{
		IsConfig:   resp.Uint("is_config") != 0,
		CRC:        resp.Uint("crc"),
		IsShutdown: resp.Uint("is_shutdown") != 0,
		MoveCount:  int(resp.Uint("move_count")),
	}, nil
}

// Uptime returns the time since the MCU booted, using its CLOCK_FREQ
func (m *MCU) Uptime() (time.Duration, error) {
	if m.dictionary == nil {
		return 0, ErrNoDictionary
	}
	freq, err := m.dictionary.ConstantInt("CLOCK_FREQ")
	if err != nil {
		return 0, err
	}
	if freq <= 0 {
		return 0, fmt.Errorf("bad CLOCK_FREQ %d", freq)
	}
	resp, err := m.Query("uptime", responseTimeout, "get_uptime")
	if err != nil {
		return 0, err
	}
	ticks := uint64(resp.Uint("high"))<<32 | uint64(resp.Uint("clock"))
	secs := ticks / uint64(freq)
	rem := ticks % uint64(freq)
	return time.Duration(secs)*time.Second + time.Duration(rem*uint64(time.Second)/uint64(freq)), nil
}

// EmergencyStop silences every output. Playback stays refused until
// ClearShutdown.
func (m *MCU) EmergencyStop() error {
	return m.Send("emergency_stop")
}

func (m *MCU) ClearShutdown() error {
	return m.Send("clear_shutdown")
}

// SetDebug switches the firmware's debug UART log
func (m *MCU) SetDebug(on bool) error {
	return m.Send("set_debug", on)
}
