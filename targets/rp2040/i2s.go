//go:build rp2040

package main

// PIO I2S transmitter
// Shifts 32-bit frames (right<<16 | left) out MSB first. Bits 31:16 go
// out while word select is high (right slot), bits 15:0 while it is low.
// Standard I2S framing: data changes on the falling bit clock edge, one bit
// clock after the word select edge.

import (
	"audiofw/core"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// Program derived from pico-extras audio_i2s.pio, 16 bits per slot.
// Side-set carries the two clock pins.
//
//	.side_set 2
//	bitloop1:  out pins, 1      side 0b10
//	           jmp x-- bitloop1 side 0b11
//	           out pins, 1      side 0b00
//	           set x, 14        side 0b01
//	bitloop0:  out pins, 1      side 0b00
//	           jmp x-- bitloop0 side 0b01
//	           out pins, 1      side 0b10
//	entry:     set x, 14        side 0b11
//
// Side-set bit 1 is word select and bit 0 the bit clock when the bit clock
// sits at the base pin. With word select at the base pin the two bits swap.
var (
	i2sBitClockBaseProgram = []uint16{
		0x7001, // 0: out    pins, 1         side 2
		0x1840, // 1: jmp    x--, 0          side 3
		0x6001, // 2: out    pins, 1         side 0
		0xe82e, // 3: set    x, 14           side 1
		0x6001, // 4: out    pins, 1         side 0
		0x0844, // 5: jmp    x--, 4          side 1
		0x7001, // 6: out    pins, 1         side 2
		0xf82e, // 7: set    x, 14           side 3
	}
	i2sWordSelectBaseProgram = []uint16{
		0x6801, // 0: out    pins, 1         side 1
		0x1840, // 1: jmp    x--, 0          side 3
		0x6001, // 2: out    pins, 1         side 0
		0xf02e, // 3: set    x, 14           side 2
		0x6001, // 4: out    pins, 1         side 0
		0x1044, // 5: jmp    x--, 4          side 2
		0x6801, // 6: out    pins, 1         side 1
		0xf82e, // 7: set    x, 14           side 3
	}
)

const (
	i2sWrapTarget = 0
	i2sWrap       = 7
	i2sEntryPoint = 7

	// PIO cycles per frame: two instructions per bit clock, 32 bit clocks
	i2sCyclesPerFrame = 64
)

// PIOI2SDriver implements core.I2SDriver with one PIO state machine
type PIOI2SDriver struct {
	pio       *rp2pio.PIO
	sm        rp2pio.StateMachine
	offset    uint8
	offsets   [2]uint8 // per side-set layout
	loaded    [2]bool
	installed bool
	running   bool
	cfg       core.I2SConfig
	pins      core.I2SPinConfig
	sideBase  machine.Pin
}

// NewPIOI2SDriver creates a driver on the given PIO block and state machine
func NewPIOI2SDriver(pioNum, smNum uint8) *PIOI2SDriver {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}
	return &PIOI2SDriver{
		pio: pioHW,
		sm:  pioHW.StateMachine(smNum),
	}
}

// checkSupported rejects what the PIO program cannot produce
func checkSupported(cfg core.I2SConfig) error {
	if cfg.Mode != core.I2SModeController|core.I2SModeTX {
		return core.ErrI2SUnsupported
	}
	if cfg.BitsPerSample != core.I2SBitsPerSample16 {
		return core.ErrI2SUnsupported
	}
	if cfg.CommFormat != core.I2SCommStandardI2S {
		return core.ErrI2SUnsupported
	}
	if cfg.UseAPLL || cfg.FixedMCLK != 0 {
		return core.ErrI2SUnsupported
	}
	return nil
}

// Side-set layouts
const (
	layoutBitClockBase = iota
	layoutWordSelectBase
)

var i2sPrograms = [2][]uint16{i2sBitClockBaseProgram, i2sWordSelectBaseProgram}

// sideSetLayout picks the program for the clock wiring.
// Word select and bit clock must be adjacent GPIOs.
func sideSetLayout(pins core.I2SPinConfig) (layout int, base core.I2SPin, err error) {
	if pins.BitClock >= rp2040GPIOCount || pins.WordSelect >= rp2040GPIOCount || pins.DataOut >= rp2040GPIOCount {
		return 0, 0, core.ErrI2SPinLayout
	}
	switch {
	case pins.BitClock == pins.WordSelect+1:
		return layoutWordSelectBase, pins.WordSelect, nil
	case pins.WordSelect == pins.BitClock+1:
		return layoutBitClockBase, pins.BitClock, nil
	}
	return 0, 0, core.ErrI2SPinLayout
}

// Install loads the program and prepares the state machine, leaving it stopped
func (d *PIOI2SDriver) Install(cfg core.I2SConfig, pins core.I2SPinConfig) error {
	if err := checkSupported(cfg); err != nil {
		return err
	}
	layout, base, err := sideSetLayout(pins)
	if err != nil {
		return err
	}
	if d.installed {
		d.Uninstall()
	}

	d.sm.TryClaim()
	// Each layout is loaded once and stays in instruction memory
	if !d.loaded[layout] {
		offset, err := d.pio.AddProgram(i2sPrograms[layout], -1)
		if err != nil {
			return err
		}
		d.offsets[layout] = offset
		d.loaded[layout] = true
	}
	d.offset = d.offsets[layout]

	dout := machine.Pin(pins.DataOut)
	d.sideBase = machine.Pin(base)
	pinCfg := machine.PinConfig{Mode: d.pio.PinMode()}
	dout.Configure(pinCfg)
	d.sideBase.Configure(pinCfg)
	(d.sideBase + 1).Configure(pinCfg)

	smCfg := rp2pio.DefaultStateMachineConfig()
	smCfg.SetWrap(d.offset+i2sWrapTarget, d.offset+i2sWrap)
	smCfg.SetSidesetParams(2, false, false)
	smCfg.SetOutPins(dout, 1)
	smCfg.SetSidesetPins(d.sideBase)
	// Shift left (MSB first), autopull every 32 bits
	smCfg.SetOutShift(false, true, 32)

	d.sm.Init(d.offset, smCfg)

	pinMask := uint32(1)<<uint32(dout) | uint32(0b11)<<uint32(d.sideBase)
	d.sm.SetPindirsMasked(pinMask, pinMask)
	d.sm.SetPinsMasked(0, pinMask)

	d.cfg = cfg
	d.pins = pins
	d.installed = true
	if err := d.SetSampleRate(cfg.SampleRate); err != nil {
		d.Uninstall()
		return err
	}

	println("[I2S] PIO installed: dout=", int(pins.DataOut), "bck=", int(pins.BitClock), "ws=", int(pins.WordSelect))
	return nil
}

// SetSampleRate reprograms the state machine clock divider
func (d *PIOI2SDriver) SetSampleRate(hz uint32) error {
	if !d.installed {
		return core.ErrI2SNotInstalled
	}
	whole, frac, err := rp2pio.ClkDivFromFrequency(hz*i2sCyclesPerFrame, machine.CPUFrequency())
	if err != nil {
		return core.ErrI2SInvalidSampleRate
	}
	d.sm.SetClkDiv(whole, frac)
	d.cfg.SampleRate = hz
	return nil
}

// WriteFrames pushes frames into the TX FIFO until it is full
func (d *PIOI2SDriver) WriteFrames(frames []uint32) (int, error) {
	if !d.installed {
		return 0, core.ErrI2SNotInstalled
	}
	n := 0
	for n < len(frames) && !d.sm.IsTxFIFOFull() {
		d.sm.TxPut(frames[n])
		n++
	}
	return n, nil
}

// Idle reports whether the state machine has nothing left to shift
func (d *PIOI2SDriver) Idle() bool {
	return d.installed && d.sm.IsTxFIFOEmpty()
}

// Start jumps to the entry point and enables the state machine
func (d *PIOI2SDriver) Start() error {
	if !d.installed {
		return core.ErrI2SNotInstalled
	}
	if d.running {
		return nil
	}
	d.sm.Exec(rp2pio.EncodeJmp(uint16(d.offset) + i2sEntryPoint))
	d.sm.SetEnabled(true)
	d.running = true
	return nil
}

// Stop disables the state machine, drops the FIFO and parks the clocks low
func (d *PIOI2SDriver) Stop() error {
	if !d.installed {
		return core.ErrI2SNotInstalled
	}
	d.sm.SetEnabled(false)
	d.sm.ClearFIFOs()
	d.sm.Restart()
	pinMask := uint32(1)<<uint32(d.pins.DataOut) | uint32(0b11)<<uint32(d.sideBase)
	d.sm.SetPinsMasked(0, pinMask)
	d.running = false
	return nil
}

// Uninstall stops the state machine and releases its pins
func (d *PIOI2SDriver) Uninstall() error {
	if !d.installed {
		return nil
	}
	d.Stop()
	for _, p := range []machine.Pin{machine.Pin(d.pins.DataOut), d.sideBase, d.sideBase + 1} {
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
	d.installed = false
	return nil
}
