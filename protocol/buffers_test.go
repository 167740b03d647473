package protocol

import (
	"bytes"
	"testing"
)

func TestSliceInputBufferPop(t *testing.T) {
	in := NewSliceInputBuffer([]byte{1, 2, 3})
	in.Pop(2)
	if in.Available() != 1 || in.Data()[0] != 3 {
		t.Errorf("after Pop(2): %v", in.Data())
	}
	in.Pop(10)
	if in.Available() != 0 {
		t.Errorf("over-pop left %d bytes", in.Available())
	}
}

func TestScratchOutputPatchInPlace(t *testing.T) {
	out := NewScratchOutput()
	out.Output([]byte{0xAA})
	start := out.CurPosition()
	out.Output([]byte{0, 0x10, 0x05})
	out.Update(start, 9)
	out.Update(50, 1) // past the written data

	if got := out.DataSince(start); !bytes.Equal(got, []byte{9, 0x10, 0x05}) {
		t.Errorf("DataSince = % x", got)
	}
	if out.DataSince(10) != nil {
		t.Error("DataSince past the end should be nil")
	}
	out.Reset()
	if len(out.Result()) != 0 {
		t.Error("Reset kept data")
	}
}

func TestScratchOutputDropsOverflow(t *testing.T) {
	out := NewScratchOutput()
	out.Output(make([]byte, MessageMax-1))
	out.Output([]byte{1, 2, 3})
	if out.CurPosition() != MessageMax {
		t.Errorf("pos = %d, want %d", out.CurPosition(), MessageMax)
	}
}

func TestFifoBufferFull(t *testing.T) {
	f := NewFifoBuffer(8)
	if n := f.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}); n != 7 {
		t.Fatalf("Write = %d, want 7 (one slot kept free)", n)
	}
	if n := f.Write([]byte{10}); n != 0 {
		t.Errorf("Write on full = %d", n)
	}
	f.Pop(3)
	if !bytes.Equal(f.Data(), []byte{4, 5, 6, 7}) {
		t.Errorf("Data = %v", f.Data())
	}
}

func TestFifoBufferWrappedData(t *testing.T) {
	f := NewFifoBuffer(8)
	f.Write([]byte{1, 2, 3, 4, 5, 6})
	f.Pop(5)
	if n := f.Write([]byte{7, 8, 9, 10, 11}); n != 5 {
		t.Fatalf("Write = %d, want 5", n)
	}

	want := []byte{6, 7, 8, 9, 10, 11}
	if got := f.Data(); !bytes.Equal(got, want) {
		t.Fatalf("Data = %v, want %v", got, want)
	}
	// Still a working ring after the rotation
	f.Pop(4)
	f.Write([]byte{12, 13, 14})
	if got := f.Data(); !bytes.Equal(got, []byte{10, 11, 12, 13, 14}) {
		t.Errorf("Data after rotate = %v", got)
	}
	f.Reset()
	if f.Available() != 0 {
		t.Error("Reset kept data")
	}
}
