package core

import "sync/atomic"

// TimerFreq is the tick rate of the system clock (the RP2040 microsecond timer)
const TimerFreq = 1000000

var (
	clockLow  uint32 // atomic
	clockHigh uint32 // atomic, wraps of clockLow
)

// GetTime returns the low 32 bits of the system clock
func GetTime() uint32 {
	return atomic.LoadUint32(&clockLow)
}

// SetTime publishes a new clock reading. A reading below the previous
// one is counted as a wrap of the 32-bit counter.
func SetTime(ticks uint32) {
	if prev := atomic.SwapUint32(&clockLow, ticks); ticks < prev {
		atomic.AddUint32(&clockHigh, 1)
	}
}

// GetUptime returns the 64-bit clock
func GetUptime() uint64 {
	high := atomic.LoadUint32(&clockHigh)
	return uint64(high)<<32 | uint64(atomic.LoadUint32(&clockLow))
}

// timerBefore compares clock values across a wrap
func timerBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

func resetClock() {
	atomic.StoreUint32(&clockLow, 0)
	atomic.StoreUint32(&clockHigh, 0)
}
