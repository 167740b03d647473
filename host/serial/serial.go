// Package serial opens the USB CDC port the firmware enumerates as
package serial

import (
	"errors"
	"io"
	"path/filepath"
	"sort"
)

var ErrNoDevice = errors.New("no serial device found")

// Port is a serial connection to the MCU
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input and unsent output
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// USB CDC ignores the baud rate
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the configuration used by the firmware's USB CDC port
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100,
	}
}

// devicePatterns lists where RP2040 CDC ports show up
var devicePatterns = []string{
	"/dev/serial/by-id/usb-*",
	"/dev/ttyACM*",
	"/dev/cu.usbmodem*",
}

// FindDevice returns the first likely MCU port
func FindDevice() (string, error) {
	for _, pattern := range devicePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return "", err
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[0], nil
		}
	}
	return "", ErrNoDevice
}
