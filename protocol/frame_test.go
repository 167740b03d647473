package protocol

import (
	"bytes"
	"testing"
)

func TestAppendFrameChecks(t *testing.T) {
	frame := AppendFrame(nil, MessageDest|3, []byte{1, 2})
	if len(frame) != 7 || frame[0] != 7 || frame[1] != 0x13 || frame[6] != MessageValueSync {
		t.Fatalf("frame = % x", frame)
	}
	if n, check := checkFrame(frame); check != frameOK || n != 7 {
		t.Errorf("checkFrame = %d, %d", n, check)
	}

	bad := append([]byte(nil), frame...)
	bad[2] ^= 0xFF
	tests := []struct {
		name string
		data []byte
		want frameCheck
	}{
		{"short", frame[:4], frameIncomplete},
		{"partial", frame[:6], frameIncomplete},
		{"crc", bad, frameInvalid},
		{"length", []byte{99, 0x10, 0, 0, 0x7E}, frameInvalid},
		{"dest bits", []byte{5, 0x20, 0, 0, 0x7E}, frameInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, check := checkFrame(tt.data); check != tt.want {
				t.Errorf("check = %d, want %d", check, tt.want)
			}
		})
	}
}

func TestNextSequenceWraps(t *testing.T) {
	if NextSequence(0x1F) != 0x10 || NextSequence(0x10) != 0x11 {
		t.Error("sequence does not wrap within 0x10-0x1F")
	}
}

func TestTransportAcksAndDispatches(t *testing.T) {
	out := NewScratchOutput()
	var got []uint32
	tr := NewTransport(out, func(id uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		got = append(got, uint32(id), v)
		return err
	})

	payload := AppendVLQInt(AppendVLQInt(nil, 4), 300)
	tr.Receive(NewSliceInputBuffer(AppendFrame(nil, MessageDest, payload)))

	if len(got) != 2 || got[0] != 4 || got[1] != 300 {
		t.Errorf("handler got %v", got)
	}
	if want := AppendFrame(nil, 0x11, nil); !bytes.Equal(out.Result(), want) {
		t.Errorf("ack = % x, want % x", out.Result(), want)
	}
}

func TestTransportNaksOutOfOrder(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	tr := NewTransport(out, func(uint16, *[]byte) error {
		calls++
		return nil
	})

	tr.Receive(NewSliceInputBuffer(AppendFrame(nil, 0x15, []byte{1})))
	if calls != 0 {
		t.Error("out of order frame was run")
	}
	if want := AppendFrame(nil, MessageDest, nil); !bytes.Equal(out.Result(), want) {
		t.Errorf("nak = % x, want % x", out.Result(), want)
	}
}

func TestTransportHostRestart(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, nil)
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	var in []byte
	in = AppendFrame(in, 0x10, []byte{1})
	in = AppendFrame(in, 0x11, []byte{1})
	in = AppendFrame(in, 0x10, []byte{1})
	tr.Receive(NewSliceInputBuffer(in))

	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
	if tr.sequence() != 0x11 {
		t.Errorf("sequence = %#x, want 0x11", tr.sequence())
	}
}

func TestTransportResyncAfterGarbage(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	tr := NewTransport(out, func(uint16, *[]byte) error {
		calls++
		return nil
	})

	in := append([]byte{0x03, 0x10, 0xAA, MessageValueSync}, AppendFrame(nil, MessageDest, []byte{2})...)
	buf := NewSliceInputBuffer(in)
	tr.Receive(buf)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if buf.Available() != 0 {
		t.Errorf("%d bytes left unconsumed", buf.Available())
	}
}

func TestTransportKeepsPartialFrame(t *testing.T) {
	tr := NewTransport(NewScratchOutput(), nil)
	frame := AppendFrame(nil, MessageDest, []byte{1, 2, 3})
	buf := NewSliceInputBuffer(frame[:5])
	tr.Receive(buf)
	if buf.Available() != 5 {
		t.Errorf("partial frame consumed, %d left", buf.Available())
	}
}
