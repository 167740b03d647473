package protocol

import "sync/atomic"

// Frame layout: len seq payload... crc_hi crc_lo sync
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
)

// MessagePayloadMax is the largest payload a single frame can carry
const MessagePayloadMax = MessageLengthMax - MessageLengthMin

// NextSequence returns the sequence byte that follows seq
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// AppendFrame appends a complete frame carrying payload to dst.
// The caller keeps payload within MessagePayloadMax.
func AppendFrame(dst []byte, seq uint8, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, uint8(len(payload)+MessageLengthMin), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), MessageValueSync)
}

type frameCheck int

const (
	frameOK frameCheck = iota
	frameIncomplete
	frameInvalid
)

// checkFrame validates the frame at the start of data
func checkFrame(data []byte) (int, frameCheck) {
	if len(data) < MessageLengthMin {
		return 0, frameIncomplete
	}
	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return 0, frameInvalid
	}
	if data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
		return 0, frameInvalid
	}
	if len(data) < n {
		return 0, frameIncomplete
	}
	if data[n-MessageTrailerSync] != MessageValueSync {
		return 0, frameInvalid
	}
	crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
	if crc != CRC16(data[:n-MessageTrailerSize]) {
		return 0, frameInvalid
	}
	return n, frameOK
}

// framer splits a byte stream into frames. After a bad frame it drops
// input up to the next sync byte.
type framer struct {
	synced uint32 // atomic bool
}

func (f *framer) synchronized() bool {
	return atomic.LoadUint32(&f.synced) != 0
}

func (f *framer) setSynchronized(v bool) {
	var n uint32
	if v {
		n = 1
	}
	atomic.StoreUint32(&f.synced, n)
}

// scan calls onFrame for each valid frame in data and onResync each time
// sync is regained. It returns the unconsumed tail.
func (f *framer) scan(data []byte, onResync func(), onFrame func(seq uint8, payload []byte)) []byte {
	for len(data) > 0 {
		if !f.synchronized() {
			i := indexSync(data)
			if i < 0 {
				return nil
			}
			data = data[i+1:]
			f.setSynchronized(true)
			if onResync != nil {
				onResync()
			}
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		n, check := checkFrame(data)
		switch check {
		case frameIncomplete:
			return data
		case frameInvalid:
			f.setSynchronized(false)
			continue
		}
		seq := data[MessagePositionSeq]
		payload := data[MessageHeaderSize : n-MessageTrailerSize]
		data = data[n:]
		onFrame(seq, payload)
	}
	return data
}

func indexSync(data []byte) int {
	for i, b := range data {
		if b == MessageValueSync {
			return i
		}
	}
	return -1
}
