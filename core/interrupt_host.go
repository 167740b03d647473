//go:build !tinygo

package core

// Host builds have no interrupts to mask
type irqState struct{}

func disableInterrupts() irqState { return irqState{} }

func restoreInterrupts(irqState) {}
