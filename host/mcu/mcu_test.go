package mcu

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"audiofw/core"
	"audiofw/protocol"
)

// fakeFirmware serves a real core dictionary over the device-side transport
type fakeFirmware struct {
	conn net.Conn
	reg  *core.CommandRegistry
	dict *core.Dictionary
	out  *protocol.ScratchOutput
	fifo *protocol.FifoBuffer
	tr   *protocol.Transport

	identifyResponseID uint16
	stateID            uint16
	configID           uint16
	uptimeID           uint16

	mu       sync.Mutex
	received map[string][]uint32
	payloads [][]byte
}

func newFakeFirmware(conn net.Conn) *fakeFirmware {
	f := &fakeFirmware{
		conn:     conn,
		reg:      core.NewCommandRegistry(),
		out:      protocol.NewScratchOutput(),
		fifo:     protocol.NewFifoBuffer(1024),
		received: make(map[string][]uint32),
	}
	f.identifyResponseID = f.reg.Register("identify_response", "offset=%u data=%*s", nil)
	f.reg.Register("identify", "offset=%u count=%c", f.handleIdentify)
	f.reg.Register("i2s_query_state", "oid=%c", f.handleQueryState)
	f.reg.Register("config_i2s_default", "oid=%c", f.record("config_i2s_default", 1))
	f.reg.Register("i2s_start", "oid=%c", f.record("i2s_start", 1))
	f.reg.Register("i2s_tone", "oid=%c freq=%u amplitude=%hu duration_ms=%u", f.record("i2s_tone", 4))
	f.reg.Register("i2s_write", "oid=%c data=%*s", f.handleWrite)
	f.reg.Register("config_i2s",
		"oid=%c mode=%c sample_rate=%u bits=%c channel_format=%c comm_format=%c"+
			" intr_flags=%u dma_buf_count=%c dma_buf_len=%hu use_apll=%c"+
			" tx_desc_auto_clear=%c fixed_mclk=%u bck_pin=%i ws_pin=%i dout_pin=%i din_pin=%i",
		f.handleConfig)
	f.reg.Register("get_config", "", f.handleGetConfig)
	f.reg.Register("get_uptime", "", f.handleGetUptime)
	f.reg.Register("emergency_stop", "", f.record("emergency_stop", 0))
	f.reg.Register("set_debug", "enable=%c", f.record("set_debug", 1))
	f.configID = f.reg.Register("config", "is_config=%c crc=%u is_shutdown=%c move_count=%hu", nil)
	f.uptimeID = f.reg.Register("uptime", "high=%u clock=%u", nil)
	f.stateID = f.reg.Register("i2s_state", "oid=%c running=%c queued=%hu free=%hu underruns=%u sample_rate=%u", nil)

	f.dict = core.NewDictionary(f.reg)
	f.dict.AddConstant("I2S_SAMPLE_RATE", uint32(22050))
	f.dict.AddConstant("I2S_DMA_BUF_LEN", 64)
	f.dict.AddConstant("CLOCK_FREQ", uint32(core.TimerFreq))
	f.dict.BuildDictionary()

	f.tr = protocol.NewTransport(f.out, f.reg.Dispatch)
	f.tr.SetFlushCallback(f.flush)
	go f.run()
	return f
}

func (f *fakeFirmware) run() {
	buf := make([]byte, 256)
	for {
		n, err := f.conn.Read(buf)
		if err != nil {
			return
		}
		f.fifo.Write(buf[:n])
		in := protocol.NewSliceInputBuffer(f.fifo.Data())
		before := in.Available()
		f.tr.Receive(in)
		if consumed := before - in.Available(); consumed > 0 {
			f.fifo.Pop(consumed)
		}
		f.flush()
	}
}

func (f *fakeFirmware) flush() {
	if res := f.out.Result(); len(res) > 0 {
		_, _ = f.conn.Write(res)
	}
	f.out.Reset()
}

func (f *fakeFirmware) handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	chunk := f.dict.GetChunk(offset, uint8(count))
	f.tr.SendCommand(f.identifyResponseID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func (f *fakeFirmware) handleQueryState(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	f.tr.SendCommand(f.stateID, func(output protocol.OutputBuffer) {
		for _, v := range []uint32{oid, 1, 100, 412, 3, 22050} {
			protocol.EncodeVLQUint(output, v)
		}
	})
	return nil
}

func (f *fakeFirmware) handleWrite(data *[]byte) error {
	if _, err := protocol.DecodeVLQUint(data); err != nil {
		return err
	}
	payload, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeFirmware) handleConfig(data *[]byte) error {
	var args []uint32
	for i := 0; i < 12; i++ {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		args = append(args, v)
	}
	for i := 0; i < 4; i++ {
		v, err := protocol.DecodeVLQInt(data)
		if err != nil {
			return err
		}
		args = append(args, uint32(v))
	}
	f.mu.Lock()
	f.received["config_i2s"] = args
	f.mu.Unlock()
	return nil
}

func (f *fakeFirmware) record(name string, n int) core.CommandHandler {
	return func(data *[]byte) error {
		args := make([]uint32, 0, n)
		for i := 0; i < n; i++ {
			v, err := protocol.DecodeVLQUint(data)
			if err != nil {
				return err
			}
			args = append(args, v)
		}
		f.mu.Lock()
		f.received[name] = args
		f.mu.Unlock()
		return nil
	}
}

func (f *fakeFirmware) args(name string) []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received[name]
}

func connect(t *testing.T) (*MCU, *fakeFirmware) {
	t.Helper()
	hostEnd, fwEnd := net.Pipe()
	fw := newFakeFirmware(fwEnd)
	m := New(hostEnd, nil)
	t.Cleanup(func() {
		m.Close()
		fwEnd.Close()
	})
	if err := m.RetrieveDictionary(); err != nil {
		t.Fatalf("RetrieveDictionary: %v", err)
	}
	return m, fw
}

func TestRetrieveDictionary(t *testing.T) {
	m, fw := connect(t)

	if !bytes.Equal(m.DictionaryRaw(), fw.dict.Generate()) {
		t.Error("raw dictionary differs from firmware copy")
	}
	d := m.Dictionary()
	if d.Version != core.FirmwareVersion {
		t.Errorf("version = %q", d.Version)
	}
	mf, err := d.Command("i2s_tone")
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if len(mf.Params) != 4 || mf.Params[2].Name != "amplitude" || mf.Params[2].Type != "hu" {
		t.Errorf("i2s_tone params = %+v", mf.Params)
	}
	if rate, err := d.ConstantInt("I2S_SAMPLE_RATE"); err != nil || rate != 22050 {
		t.Errorf("I2S_SAMPLE_RATE = %d (%v)", rate, err)
	}
}

func TestSendByName(t *testing.T) {
	m, fw := connect(t)

	if err := m.ConfigureI2SDefault(0); err != nil {
		t.Fatalf("ConfigureI2SDefault: %v", err)
	}
	if err := m.ToneI2S(0, 440, 12000, 250); err != nil {
		t.Fatalf("ToneI2S: %v", err)
	}
	want := []uint32{0, 440, 12000, 250}
	got := fw.args("i2s_tone")
	if len(got) != len(want) {
		t.Fatalf("i2s_tone args = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("i2s_tone arg %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSendErrors(t *testing.T) {
	m, _ := connect(t)

	if err := m.Send("no_such_command"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command err = %v", err)
	}
	if err := m.Send("i2s_start"); !errors.Is(err, ErrArgCount) {
		t.Errorf("missing argument err = %v", err)
	}
	if err := m.Send("i2s_start", "zero"); !errors.Is(err, ErrArgType) {
		t.Errorf("bad argument type err = %v", err)
	}
	if err := m.Send("i2s_write", 0, make([]byte, 64)); !errors.Is(err, protocol.ErrMessageTooLong) {
		t.Errorf("oversized write err = %v", err)
	}
}

func TestSendBeforeDictionary(t *testing.T) {
	hostEnd, fwEnd := net.Pipe()
	defer fwEnd.Close()
	m := New(hostEnd, nil)
	defer m.Close()

	if err := m.Send("i2s_start", 0); !errors.Is(err, ErrNoDictionary) {
		t.Errorf("err = %v, want ErrNoDictionary", err)
	}
}

func TestQueryI2SState(t *testing.T) {
	m, _ := connect(t)

	st, err := m.QueryI2SState(2)
	if err != nil {
		t.Fatalf("QueryI2SState: %v", err)
	}
	want := I2SState{OID: 2, Running: true, Queued: 100, Free: 412, Underruns: 3, SampleRate: 22050}
	if st != want {
		t.Errorf("state = %+v, want %+v", st, want)
	}
}

func TestConfigureI2S(t *testing.T) {
	m, fw := connect(t)

	cfg := core.DefaultI2SConfig()
	cfg.SampleRate = 44100
	cfg.ChannelFormat = core.I2SChannelRightLeft
	pins := core.DefaultI2SPinConfig()
	if err := m.ConfigureI2S(1, cfg, pins); err != nil {
		t.Fatalf("ConfigureI2S: %v", err)
	}
	got := fw.args("config_i2s")
	if len(got) != 16 {
		t.Fatalf("config_i2s args = %v", got)
	}
	if got[0] != 1 || got[2] != 44100 || got[4] != uint32(core.I2SChannelRightLeft) {
		t.Errorf("config_i2s args = %v", got)
	}
	if int32(got[15]) != int32(core.I2SPinNoChange) {
		t.Errorf("din_pin = %d, want %d", int32(got[15]), core.I2SPinNoChange)
	}

	cfg.DMABufCount = 0
	if err := m.ConfigureI2S(1, cfg, pins); err == nil {
		t.Error("invalid config was sent")
	}
}

func TestWriteI2S(t *testing.T) {
	m, fw := connect(t)

	pcm := []byte{1, 0, 2, 0, 3, 0}
	if err := m.WriteI2S(0, pcm); err != nil {
		t.Fatalf("WriteI2S: %v", err)
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if len(fw.payloads) != 1 || !bytes.Equal(fw.payloads[0], pcm) {
		t.Errorf("payloads = %v", fw.payloads)
	}
}

func TestWaitForTimeout(t *testing.T) {
	m, _ := connect(t)

	_, err := m.WaitI2SState(20 * time.Millisecond)
	if !errors.Is(err, protocol.ErrResponseTimeout) {
		t.Errorf("err = %v, want ErrResponseTimeout", err)
	}
}
