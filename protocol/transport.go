package protocol

import "sync/atomic"

// CommandHandler runs one decoded command; data holds its arguments
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU side of the link. It validates host frames,
// dispatches their commands and answers every frame with an ACK/NAK
// carrying the next expected sequence.
type Transport struct {
	framer

	// Next sequence expected from the host; responses carry it too
	nextSequence uint32 // atomic

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()

	ack [MessageLengthMin]byte
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
	t.setSynchronized(true)
	return t
}

// Receive consumes every complete frame in input
func (t *Transport) Receive(input InputBuffer) {
	rest := t.scan(input.Data(), t.encodeAckNak, t.receiveFrame)
	if consumed := input.Available() - len(rest); consumed > 0 {
		input.Pop(consumed)
	}
}

func (t *Transport) receiveFrame(seq uint8, frame []byte) {
	expected := t.sequence()

	// The host restarts its numbering after it reconnects
	if seq == MessageDest && expected != MessageDest {
		atomic.StoreUint32(&t.nextSequence, MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	// Out of order frames are not run; the ACK then acts as a NAK
	if seq == expected {
		atomic.StoreUint32(&t.nextSequence, uint32(NextSequence(seq)))
		_ = t.parseFrame(frame)
	}
	t.encodeAckNak()
}

// parseFrame runs each command in frame. A handler error stops the frame
// but keeps sync; malformed data or a handler panic drops sync.
func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.setSynchronized(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.setSynchronized(false)
			return err
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			return err
		}
	}
	return nil
}

// encodeAckNak writes an empty frame and flushes it at once; the host
// must see the ACK before any response to the same command
func (t *Transport) encodeAckNak() {
	t.output.Output(AppendFrame(t.ack[:0], t.sequence(), nil))
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes a frame in place in the output buffer. Responses
// reuse the current sequence.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	start := t.output.CurPosition()
	t.output.Output([]byte{0, t.sequence()})
	frameData(t.output)

	n := len(t.output.DataSince(start)) + MessageTrailerSize
	t.output.Update(start, uint8(n))
	crc := CRC16(t.output.DataSince(start))
	t.output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// SendCommand encodes cmdID and its arguments as one frame
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns to the power-on state, e.g. after a USB reconnect
func (t *Transport) Reset() {
	t.setSynchronized(true)
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets the hook run when the host restarts the sequence
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets the hook that pushes output to the wire
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

func (t *Transport) sequence() uint8 {
	return uint8(atomic.LoadUint32(&t.nextSequence))
}
