package core

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"testing"
)

type parsedDictionary struct {
	Version      string                    `json:"version"`
	Config       map[string]string         `json:"config"`
	Commands     map[string]int            `json:"commands"`
	Responses    map[string]int            `json:"responses"`
	Enumerations map[string]map[string]int `json:"enumerations"`
}

func decodeDictionary(t *testing.T, blob []byte) parsedDictionary {
	t.Helper()
	zr, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("zlib header: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	var d parsedDictionary
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("dictionary is not JSON: %v\n%s", err, raw)
	}
	return d
}

func testDictionary() *Dictionary {
	reg := NewCommandRegistry()
	reg.Register("identify_response", "offset=%u data=%*s", nil)
	reg.Register("identify", "offset=%u count=%c", func(*[]byte) error { return nil })
	reg.Register("i2s_start", "oid=%c", func(*[]byte) error { return nil })
	reg.Register("i2s_state", "oid=%c running=%c", nil)

	d := NewDictionary(reg)
	d.AddConstant("I2S_SAMPLE_RATE", uint32(22050))
	d.AddConstant("I2S_CHANNEL_FORMAT", "ONLY_RIGHT")
	d.AddEnumeration("pin", []string{"gpio0", "gpio1", "gpio2"})
	return d
}

func TestDictionaryContents(t *testing.T) {
	d := decodeDictionary(t, testDictionary().Generate())

	if d.Version != FirmwareVersion {
		t.Errorf("version = %q, want %q", d.Version, FirmwareVersion)
	}
	wantCommands := map[string]int{
		"identify offset=%u count=%c": 1,
		"i2s_start oid=%c":            2,
	}
	for format, id := range wantCommands {
		if got, ok := d.Commands[format]; !ok || got != id {
			t.Errorf("command %q = %d (present %v), want %d", format, got, ok, id)
		}
	}
	if d.Responses["identify_response offset=%u data=%*s"] != 0 {
		t.Error("identify_response must have id 0")
	}
	if d.Responses["i2s_state oid=%c running=%c"] != 3 {
		t.Errorf("responses = %v", d.Responses)
	}
	if d.Config["I2S_SAMPLE_RATE"] != "22050" || d.Config["I2S_CHANNEL_FORMAT"] != "ONLY_RIGHT" {
		t.Errorf("config = %v", d.Config)
	}
	if d.Enumerations["pin"]["gpio2"] != 2 {
		t.Errorf("enumerations = %v", d.Enumerations)
	}
}

func TestDictionaryChunks(t *testing.T) {
	dict := testDictionary()
	blob := dict.Generate()

	var got []byte
	for offset := uint32(0); ; {
		chunk := dict.GetChunk(offset, 40)
		got = append(got, chunk...)
		offset += uint32(len(chunk))
		if len(chunk) < 40 {
			break
		}
	}
	if !bytes.Equal(got, blob) {
		t.Fatal("reassembled chunks differ from the dictionary")
	}
	if chunk := dict.GetChunk(uint32(len(blob))+10, 40); len(chunk) != 0 {
		t.Errorf("chunk past end = %d bytes, want 0", len(chunk))
	}

	// Chunks are copies
	chunk := dict.GetChunk(0, 4)
	chunk[0] ^= 0xFF
	if dict.Generate()[0] == chunk[0] {
		t.Error("GetChunk aliases the cached dictionary")
	}
}

func TestDictionaryRebuildsAfterChange(t *testing.T) {
	dict := testDictionary()
	before := dict.Generate()

	dict.AddConstant("I2S_DMA_BUF_COUNT", 8)
	after := decodeDictionary(t, dict.Generate())
	if after.Config["I2S_DMA_BUF_COUNT"] != "8" {
		t.Errorf("new constant missing: %v", after.Config)
	}
	if bytes.Equal(before, dict.Generate()) {
		t.Error("dictionary not rebuilt after AddConstant")
	}
}
