//go:build rp2040

package main

import (
	"machine"
	"strconv"
	"time"

	"audiofw/core"
	"audiofw/protocol"
)

// rp2040GPIOCount is the number of user GPIOs (gpio0-gpio29)
const rp2040GPIOCount = 30

// PIO block and state machine used for I2S output
const (
	i2sPIO = 0
	i2sSM  = 0
)

// Debug log on UART0, clear of the default I2S and amplifier pins
const (
	debugBaud = 115200
	debugTX   = machine.GPIO0
	debugRX   = machine.GPIO1
)

// maxWriteFailures consecutive failed USB writes count as a disconnect
const maxWriteFailures = 10

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	usbDisconnected bool
	writeFailures   int
)

func main() {
	// Clear any watchdog state left over from a reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	initDebugUART()
	InitClock()

	core.InitCoreCommands()
	core.InitI2SCommands()
	registerRP2040Pins()

	core.SetI2SDriver(NewPIOI2SDriver(i2sPIO, i2sSM))
	core.SetGPIODriver(NewRPGPIODriver())
	core.SetResetHandler(watchdogReset)

	// Everything the host can see is registered by now
	core.GetGlobalDictionary().BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, core.Dispatch)
	transport.SetResetCallback(resetSession)
	transport.SetFlushCallback(writeUSB)
	core.SetGlobalTransport(transport)

	go usbReaderLoop()

	for {
		runOnce()
		// The PIO FIFO holds only a few frames; yield briefly
		time.Sleep(5 * time.Microsecond)
	}
}

// runOnce is one pass of the main loop. A panic in a handler shuts the
// firmware down instead of killing the loop.
func runOnce() {
	defer func() {
		if r := recover(); r != nil {
			inputBuffer.Reset()
			outputBuffer.Reset()
			core.TryShutdown("panic in main loop")
			writeUSB()
		}
	}()

	UpdateSystemTime()

	if inputBuffer.Available() > 0 {
		in := protocol.NewSliceInputBuffer(inputBuffer.Data())
		before := in.Available()
		transport.Receive(in)
		inputBuffer.Pop(before - in.Available())
	}

	// Feed the PIO FIFO on both sides of USB traffic
	core.I2STask()
	writeUSB()

	core.CheckPendingReset()

	core.ProcessTimers()
	core.I2STask()
	writeUSB()
}

// usbReaderLoop moves bytes from USB into the input FIFO
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() == 0 {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		b, err := USBRead()
		if err != nil {
			time.Sleep(time.Millisecond)
			continue
		}

		// First byte after a disconnect starts a fresh session
		if usbDisconnected {
			usbDisconnected = false
			transport.Reset()
		}

		if inputBuffer.Write([]byte{b}) == 0 {
			core.DebugPrintln("[usb] input overflow")
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// resetSession drops buffered traffic and all configuration
func resetSession() {
	inputBuffer.Reset()
	outputBuffer.Reset()
	writeFailures = 0
	core.ResetFirmwareState()
}

// writeUSB sends the pending output. A run of failed writes means the host
// is gone, so the output is silenced.
func writeUSB() {
	pending := outputBuffer.Result()
	for len(pending) > 0 {
		n, err := USBWriteBytes(pending)
		if err != nil || n == 0 {
			writeFailures++
			if writeFailures > maxWriteFailures {
				usbDisconnected = true
				writeFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
				core.ShutdownAllI2S()
			}
			return
		}
		pending = pending[n:]
	}
	writeFailures = 0
	outputBuffer.Reset()
}

// watchdogReset reboots through the watchdog, which re-enumerates USB
// more reliably than SYSRESETREQ
func watchdogReset() {
	core.ShutdownAllI2S()
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1}); err != nil {
		return
	}
	if err := machine.Watchdog.Start(); err != nil {
		return
	}
	for {
		time.Sleep(time.Millisecond)
	}
}

func initDebugUART() {
	err := machine.UART0.Configure(machine.UARTConfig{BaudRate: debugBaud, TX: debugTX, RX: debugRX})
	if err != nil {
		return
	}
	core.SetDebugWriter(func(s string) {
		machine.UART0.Write([]byte(s))
		machine.UART0.Write([]byte("\r\n"))
	})
}

// registerRP2040Pins registers gpio0-gpio29 as the "pin" enumeration
func registerRP2040Pins() {
	names := make([]string, rp2040GPIOCount)
	for i := range names {
		names[i] = "gpio" + strconv.Itoa(i)
	}
	core.RegisterEnumeration("pin", names)
}
