package core

import "audiofw/protocol"

// DebugWriter prints one line on the board's debug port
type DebugWriter func(string)

var (
	debugPrintln DebugWriter
	debugEnabled bool
)

// SetDebugWriter installs the debug port writer. Output stays off until
// the host sends set_debug.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// DebugPrintln writes msg when debug output is on. Printing from the
// audio pump can starve the PIO FIFO, so keep it off while streaming.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// Format: set_debug enable=%c
func handleSetDebug(data *[]byte) error {
	enable, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	debugEnabled = enable != 0
	return nil
}

// TimingEvent is one entry of the post-mortem event log
type TimingEvent struct {
	EventType uint8
	OID       uint8
	Clock     uint32
	Value1    uint32
	Value2    uint32
}

const (
	EvtI2SConfig   = 1 // v1=rate, v2=count<<16|len
	EvtI2SStart    = 2 // v1=queued
	EvtI2SStop     = 3 // v1=queued, v2=underruns
	EvtI2SWrite    = 4 // v1=frames, v2=queued
	EvtI2SUnderrun = 5 // v1=underruns
)

const TimingRingSize = 32

var (
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8
)

// RecordTiming logs an event at the current clock. It never blocks and
// overwrites the oldest entry.
func RecordTiming(eventType, oid uint8, value1, value2 uint32) {
	timingRing[timingRingHead] = TimingEvent{
		EventType: eventType,
		OID:       oid,
		Clock:     GetTime(),
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (timingRingHead + 1) % TimingRingSize
}

// TimingEvents returns the logged events, oldest first
func TimingEvents() []TimingEvent {
	events := make([]TimingEvent, 0, TimingRingSize)
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(timingRingHead+i)%TimingRingSize]
		if evt.EventType != 0 {
			events = append(events, evt)
		}
	}
	return events
}

func timingEventName(t uint8) string {
	switch t {
	case EvtI2SConfig:
		return "config"
	case EvtI2SStart:
		return "start"
	case EvtI2SStop:
		return "stop"
	case EvtI2SWrite:
		return "write"
	case EvtI2SUnderrun:
		return "underrun"
	}
	return "event" + itoa(int(t))
}

// DumpTimingRing prints the event log regardless of set_debug; it runs
// on shutdown when the audio pump is already stopped
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}
	for _, evt := range TimingEvents() {
		debugPrintln("[timing] " + timingEventName(evt.EventType) +
			" oid=" + itoa(int(evt.OID)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
}

func resetTiming() {
	timingRing = [TimingRingSize]TimingEvent{}
	timingRingHead = 0
}
