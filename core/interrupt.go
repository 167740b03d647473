//go:build tinygo

package core

import "runtime/interrupt"

type irqState = interrupt.State

func disableInterrupts() irqState {
	return interrupt.Disable()
}

func restoreInterrupts(state irqState) {
	interrupt.Restore(state)
}
