package protocol

import "testing"

func TestCRC16(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"empty", nil, 0xFFFF},
		{"check string", []byte("123456789"), 0x6F91},
		{"ack seq 0x10", []byte{5, 0x10}, 0x9E81},
		{"ack seq 0x11", []byte{5, 0x11}, 0x8F08},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16(tt.data); got != tt.want {
				t.Errorf("CRC16 = %#04x, want %#04x", got, tt.want)
			}
		})
	}
}
