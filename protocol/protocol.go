// Package protocol implements the Klipper communication protocol
package protocol

// Version is the protocol implementation version
const Version = "0.1.0"

const (
	MessageMax = 512 // Output scratch size, holds several frames

	MessageSeqMask = 0x0F
)
