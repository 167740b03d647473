//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"audiofw/core"
)

// TIMERAWL of the RP2040 timer block, the low word of the free running
// microsecond counter. Reading it does not latch the high word.
const timerRawLow = 0x40054000 + 0x28

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerRawLow)))

// InitClock registers the clock constants. The timer ticks at 1MHz from
// the watchdog tick and needs no setup.
func InitClock() {
	core.RegisterConstant("MCU", "rp2040")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TimerFreq))
}

// UpdateSystemTime publishes the hardware counter to core once per loop;
// core counts the 32-bit wraps for get_uptime
func UpdateSystemTime() {
	core.SetTime(timerRAWL.Get())
}
