// I2S audio output
// Implements the config_i2s / i2s_write protocol on top of the I2SDriver HAL
package core

import (
	"audiofw/protocol"
)

// I2SOutput is a configured I2S transmitter
type I2SOutput struct {
	OID     uint8
	Config  I2SConfig
	Pins    I2SPinConfig
	Ring    *I2SRing
	Running bool
	Amp     *I2SAmp // optional amplifier enable line

	LastError error

	// Periodic i2s_state reporting
	ReportTimer  Timer
	ReportTicks  uint32
	reportWanted bool

	tone     *ToneGenerator
	pending  []uint32 // frames taken from the ring, not yet accepted by the driver
	dmaBuf   []uint32 // one DMA buffer worth of frames
	writeBuf []uint32 // scratch for i2s_write and tone generation
}

// Global registry of I2S outputs. The peripheral driver is a singleton,
// so at most one output exists at a time.
var i2sOutputs = make(map[uint8]*I2SOutput)

// writeChunk bounds the scratch used when unpacking i2s_write payloads
const writeChunk = 32

// InitI2SCommands registers I2S commands and the default board constants
func InitI2SCommands() {
	RegisterCommand("config_i2s",
		"oid=%c mode=%c sample_rate=%u bits=%c channel_format=%c comm_format=%c"+
			" intr_flags=%u dma_buf_count=%c dma_buf_len=%hu use_apll=%c"+
			" tx_desc_auto_clear=%c fixed_mclk=%u bck_pin=%i ws_pin=%i dout_pin=%i din_pin=%i",
		handleConfigI2S)
	RegisterCommand("config_i2s_default", "oid=%c", handleConfigI2SDefault)

	RegisterCommand("i2s_write", "oid=%c data=%*s", handleI2SWrite)
	RegisterCommand("i2s_write_stereo", "oid=%c data=%*s", handleI2SWriteStereo)
	RegisterCommand("i2s_set_sample_rate", "oid=%c rate=%u", handleI2SSetSampleRate)
	RegisterCommand("i2s_start", "oid=%c", handleI2SStart)
	RegisterCommand("i2s_stop", "oid=%c", handleI2SStop)
	RegisterCommand("i2s_zero_dma", "oid=%c", handleI2SZeroDMA)
	RegisterCommand("i2s_tone", "oid=%c freq=%u amplitude=%hu duration_ms=%u", handleI2STone)
	RegisterCommand("i2s_query_state", "oid=%c", handleI2SQueryState)
	RegisterCommand("i2s_report", "oid=%c clock=%u rest_ticks=%u", handleI2SReport)
	RegisterCommand("config_i2s_amp", "oid=%c pin=%u active_high=%c", handleConfigI2SAmp)

	RegisterResponse("i2s_state", "oid=%c running=%c queued=%hu free=%hu underruns=%u sample_rate=%u")

	// Board wiring and defaults, so the host can mirror them
	def := DefaultI2SConfig()
	pins := DefaultI2SPinConfig()
	RegisterConstant("I2S_DOUT_PIN", int(pins.DataOut))
	RegisterConstant("I2S_BCK_PIN", int(pins.BitClock))
	RegisterConstant("I2S_WS_PIN", int(pins.WordSelect))
	RegisterConstant("I2S_SAMPLE_RATE", def.SampleRate)
	RegisterConstant("I2S_BITS_PER_SAMPLE", int(def.BitsPerSample))
	RegisterConstant("I2S_CHANNEL_FORMAT", def.ChannelFormat.String())
	RegisterConstant("I2S_DMA_BUF_COUNT", int(def.DMABufCount))
	RegisterConstant("I2S_DMA_BUF_LEN", int(def.DMABufLen))
}

// ConfigureI2S validates and installs an I2S output under oid.
// Reconfiguring the same oid replaces the previous setup.
func ConfigureI2S(oid uint8, cfg I2SConfig, pins I2SPinConfig) (*I2SOutput, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := pins.Validate(cfg.Mode); err != nil {
		return nil, err
	}
	for other := range i2sOutputs {
		if other != oid {
			return nil, ErrI2SAlreadyConfigured
		}
	}

	drv := MustI2S()
	if old, exists := i2sOutputs[oid]; exists {
		if err := old.reinstall(drv, cfg, pins); err != nil {
			return nil, err
		}
		old.retire()
		delete(i2sOutputs, oid)
	} else if err := drv.Install(cfg, pins); err != nil {
		return nil, err
	}

	out := &I2SOutput{
		OID:      oid,
		Config:   cfg,
		Pins:     pins,
		Ring:     NewI2SRing(cfg),
		dmaBuf:   make([]uint32, cfg.DMABufLen),
		writeBuf: make([]uint32, writeChunk),
	}
	i2sOutputs[oid] = out

	RecordTiming(EvtI2SConfig, oid, cfg.SampleRate, uint32(cfg.DMABufCount)<<16|uint32(cfg.DMABufLen))
	DebugPrintln("[I2S] configured oid=" + itoa(int(oid)) +
		" rate=" + utoa(cfg.SampleRate) +
		" bits=" + cfg.BitsPerSample.String() +
		" fmt=" + cfg.ChannelFormat.String() +
		" dma=" + itoa(int(cfg.DMABufCount)) + "x" + itoa(int(cfg.DMABufLen)))
	return out, nil
}

// GetI2SOutput returns the output registered under oid
func GetI2SOutput(oid uint8) (*I2SOutput, bool) {
	out, ok := i2sOutputs[oid]
	return out, ok
}

// handleConfigI2S configures an I2S output from explicit parameters
// Format: config_i2s oid=%c mode=%c sample_rate=%u bits=%c channel_format=%c comm_format=%c
// intr_flags=%u dma_buf_count=%c dma_buf_len=%hu use_apll=%c tx_desc_auto_clear=%c
// fixed_mclk=%u bck_pin=%i ws_pin=%i dout_pin=%i din_pin=%i
func handleConfigI2S(data *[]byte) error {
	var args [12]uint32
	for i := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		args[i] = v
	}
	var pinArgs [4]int32
	for i := range pinArgs {
		v, err := protocol.DecodeVLQInt(data)
		if err != nil {
			return err
		}
		pinArgs[i] = v
	}

	cfg := I2SConfig{
		Mode:            I2SMode(args[1]),
		SampleRate:      args[2],
		BitsPerSample:   I2SBitsPerSample(args[3]),
		ChannelFormat:   I2SChannelFormat(args[4]),
		CommFormat:      I2SCommFormat(args[5]),
		IntrFlags:       I2SIntrFlags(args[6]),
		DMABufCount:     uint8(args[7]),
		DMABufLen:       uint16(args[8]),
		UseAPLL:         args[9] != 0,
		TxDescAutoClear: args[10] != 0,
		FixedMCLK:       args[11],
	}
	pins := I2SPinConfig{
		BitClock:   I2SPin(pinArgs[0]),
		WordSelect: I2SPin(pinArgs[1]),
		DataOut:    I2SPin(pinArgs[2]),
		DataIn:     I2SPin(pinArgs[3]),
	}

	_, err := ConfigureI2S(uint8(args[0]), cfg, pins)
	return err
}

// handleConfigI2SDefault configures an I2S output with the board defaults
// Format: config_i2s_default oid=%c
func handleConfigI2SDefault(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	_, err = ConfigureI2S(uint8(oid), DefaultI2SConfig(), DefaultI2SPinConfig())
	return err
}

// decodeOIDAndData decodes the common "oid=%c data=%*s" arguments
func decodeOIDAndData(data *[]byte) (*I2SOutput, []byte, error) {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return nil, nil, err
	}
	payload, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return nil, nil, err
	}
	out, _ := GetI2SOutput(uint8(oid))
	return out, payload, nil
}

// handleI2SWrite queues little-endian int16 mono samples
// Format: i2s_write oid=%c data=%*s
func handleI2SWrite(data *[]byte) error {
	out, payload, err := decodeOIDAndData(data)
	if err != nil || out == nil {
		return err
	}
	out.WriteSamples(payload)
	return nil
}

// handleI2SWriteStereo queues interleaved little-endian int16 L/R pairs
// Format: i2s_write_stereo oid=%c data=%*s
func handleI2SWriteStereo(data *[]byte) error {
	out, payload, err := decodeOIDAndData(data)
	if err != nil || out == nil {
		return err
	}
	out.WriteStereo(payload)
	return nil
}

// handleI2SSetSampleRate changes the sample rate of a running output
// Format: i2s_set_sample_rate oid=%c rate=%u
func handleI2SSetSampleRate(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rate, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	out, exists := GetI2SOutput(uint8(oid))
	if !exists {
		return nil
	}
	return out.SetSampleRate(rate)
}

// handleI2SStart starts clocking out audio
// Format: i2s_start oid=%c
func handleI2SStart(data *[]byte) error {
	out, err := decodeOID(data)
	if err != nil || out == nil {
		return err
	}
	if IsShutdown() {
		return ErrShutdown
	}
	return out.Start()
}

// handleI2SStop stops the peripheral, keeping queued audio
// Format: i2s_stop oid=%c
func handleI2SStop(data *[]byte) error {
	out, err := decodeOID(data)
	if err != nil || out == nil {
		return err
	}
	return out.Stop()
}

// handleI2SZeroDMA drops queued audio and any running tone
// Format: i2s_zero_dma oid=%c
func handleI2SZeroDMA(data *[]byte) error {
	out, err := decodeOID(data)
	if err != nil || out == nil {
		return err
	}
	out.Zero()
	return nil
}

// handleI2STone starts an on-board test tone
// Format: i2s_tone oid=%c freq=%u amplitude=%hu duration_ms=%u
func handleI2STone(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	freq, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	amplitude, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	duration, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	out, exists := GetI2SOutput(uint8(oid))
	if !exists {
		return nil
	}
	if IsShutdown() {
		return ErrShutdown
	}
	out.PlayTone(freq, uint16(amplitude), duration)
	return nil
}

// handleI2SQueryState reports ring and playback state
// Format: i2s_query_state oid=%c
func handleI2SQueryState(data *[]byte) error {
	out, err := decodeOID(data)
	if err != nil || out == nil {
		return err
	}
	out.sendState()
	return nil
}

// handleI2SReport schedules periodic i2s_state reports; rest_ticks=0 stops them
// Format: i2s_report oid=%c clock=%u rest_ticks=%u
func handleI2SReport(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	restTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	out, exists := GetI2SOutput(uint8(oid))
	if !exists {
		return nil
	}

	UnscheduleTimer(&out.ReportTimer)
	out.ReportTicks = restTicks
	if restTicks == 0 {
		return nil
	}
	out.ReportTimer.WakeTime = clock
	out.ReportTimer.Handler = out.reportTimerHandler
	ScheduleTimer(&out.ReportTimer)
	return nil
}

// reportTimerHandler runs in timer context and flags a report for Task
func (o *I2SOutput) reportTimerHandler(t *Timer) uint8 {
	o.reportWanted = true
	if o.ReportTicks == 0 {
		return SF_DONE
	}
	t.WakeTime += o.ReportTicks
	return SF_RESCHEDULE
}

func decodeOID(data *[]byte) (*I2SOutput, error) {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	out, _ := GetI2SOutput(uint8(oid))
	return out, nil
}

// WriteSamples packs mono samples and queues them. Returns frames queued;
// samples that do not fit in the ring are dropped.
func (o *I2SOutput) WriteSamples(payload []byte) int {
	queued := 0
	for len(payload) >= 2 {
		n := o.Config.PackSamplesLE(o.writeBuf, payload)
		payload = payload[2*n:]
		w := o.Ring.Write(o.writeBuf[:n])
		queued += w
		if w < n {
			break
		}
	}
	if queued > 0 {
		RecordTiming(EvtI2SWrite, o.OID, uint32(queued), uint32(o.Ring.Queued()))
	}
	return queued
}

// WriteStereo packs stereo pairs and queues them
func (o *I2SOutput) WriteStereo(payload []byte) int {
	queued := 0
	for len(payload) >= 4 {
		n := o.Config.PackStereoLE(o.writeBuf, payload)
		payload = payload[4*n:]
		w := o.Ring.Write(o.writeBuf[:n])
		queued += w
		if w < n {
			break
		}
	}
	if queued > 0 {
		RecordTiming(EvtI2SWrite, o.OID, uint32(queued), uint32(o.Ring.Queued()))
	}
	return queued
}

// SetSampleRate validates a new rate and reprograms the hardware
func (o *I2SOutput) SetSampleRate(rate uint32) error {
	next := o.Config
	next.SampleRate = rate
	if err := next.Validate(); err != nil {
		return err
	}
	if err := MustI2S().SetSampleRate(rate); err != nil {
		o.LastError = err
		return err
	}
	o.Config = next
	return nil
}

// Start begins playback
func (o *I2SOutput) Start() error {
	if o.Running {
		return nil
	}
	if err := MustI2S().Start(); err != nil {
		o.LastError = err
		return err
	}
	o.Running = true
	o.Amp.set(true)
	RecordTiming(EvtI2SStart, o.OID, uint32(o.Ring.Queued()), 0)
	return nil
}

// Stop halts playback. Frames already handed to the hardware are lost,
// frames still in the ring are kept.
func (o *I2SOutput) Stop() error {
	if !o.Running {
		return nil
	}
	o.Running = false
	o.Amp.set(false)
	o.pending = nil
	RecordTiming(EvtI2SStop, o.OID, uint32(o.Ring.Queued()), o.Ring.Underruns())
	if err := MustI2S().Stop(); err != nil {
		o.LastError = err
		return err
	}
	return nil
}

// Zero drops queued audio and cancels a running tone
func (o *I2SOutput) Zero() {
	o.tone = nil
	o.pending = nil
	o.Ring.Zero()
}

// PlayTone replaces queued audio with a sine tone
func (o *I2SOutput) PlayTone(freq uint32, amplitude uint16, durationMS uint32) {
	o.Zero()
	if freq == 0 || amplitude == 0 {
		return
	}
	o.tone = NewToneGenerator(freq, o.Config.SampleRate, amplitude, durationMS)
}

// ToneActive reports whether a test tone is still being generated
func (o *I2SOutput) ToneActive() bool {
	return o.tone != nil
}

// Task sends pending reports, generates tone frames and moves frames from
// the ring to the driver
func (o *I2SOutput) Task() {
	state := disableInterrupts()
	report := o.reportWanted
	o.reportWanted = false
	restoreInterrupts(state)
	if report {
		o.sendState()
	}

	if !o.Running {
		return
	}
	if o.tone != nil {
		free := o.Ring.Free()
		for free > 0 && !o.tone.Done() {
			chunk := o.writeBuf
			if free < len(chunk) {
				chunk = chunk[:free]
			}
			n := o.tone.Fill(o.Config, chunk)
			o.Ring.Write(chunk[:n])
			free -= n
		}
		if o.tone.Done() {
			o.tone = nil
		}
	}
	o.pump()
}

// pump hands whole DMA buffers to the driver. A partial buffer is only
// padded (silence or replay) once the hardware has nothing left to send.
func (o *I2SOutput) pump() {
	drv := MustI2S()
	padded := false
	for {
		if len(o.pending) == 0 {
			switch {
			case o.Ring.Queued() >= len(o.dmaBuf):
				n := o.Ring.Take(o.dmaBuf)
				o.pending = o.dmaBuf[:n]
			case !padded && drv.Idle():
				padded = true
				before := o.Ring.Underruns()
				o.Ring.Drain(o.dmaBuf)
				if o.Ring.Underruns() != before {
					RecordTiming(EvtI2SUnderrun, o.OID, o.Ring.Underruns(), 0)
				}
				o.pending = o.dmaBuf
			default:
				return
			}
		}

		n, err := drv.WriteFrames(o.pending)
		if err != nil {
			o.LastError = err
			o.pending = nil
			return
		}
		o.pending = o.pending[n:]
		if n == 0 {
			return
		}
	}
}

// sendState sends an i2s_state response
func (o *I2SOutput) sendState() {
	SendResponse("i2s_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(o.OID))
		protocol.EncodeVLQUint(output, boolToUint(o.Running))
		protocol.EncodeVLQUint(output, uint32(o.Ring.Queued()))
		protocol.EncodeVLQUint(output, uint32(o.Ring.Free()))
		protocol.EncodeVLQUint(output, o.Ring.Underruns())
		protocol.EncodeVLQUint(output, o.Config.SampleRate)
	})
}

// release stops and uninstalls the driver for this output
func (o *I2SOutput) release(drv I2SDriver) {
	if o.Running {
		_ = drv.Stop()
	}
	o.retire()
	_ = drv.Uninstall()
}

// retire drops the output's amp, queued audio and report timer
func (o *I2SOutput) retire() {
	o.Amp.set(false)
	o.Running = false
	o.Zero()
	UnscheduleTimer(&o.ReportTimer)
	o.ReportTicks = 0
}

// reinstall moves the peripheral from this output's setup to cfg/pins.
// When the driver refuses the new setup the old one is installed again and
// the output keeps playing as before.
func (o *I2SOutput) reinstall(drv I2SDriver, cfg I2SConfig, pins I2SPinConfig) error {
	if o.Running {
		_ = drv.Stop()
	}
	_ = drv.Uninstall()
	err := drv.Install(cfg, pins)
	if err == nil {
		return nil
	}
	if rerr := drv.Install(o.Config, o.Pins); rerr != nil {
		o.LastError = rerr
		o.retire()
		delete(i2sOutputs, o.OID)
		return err
	}
	if o.Running {
		if serr := drv.Start(); serr != nil {
			o.LastError = serr
			o.Running = false
			o.Amp.set(false)
		}
	}
	return err
}

// I2STask runs the I2S pump for every output. Call it from the main loop.
func I2STask() {
	for _, out := range i2sOutputs {
		out.Task()
	}
}

// ShutdownAllI2S stops every output and drops queued audio
func ShutdownAllI2S() {
	for _, out := range i2sOutputs {
		_ = out.Stop()
		out.Zero()
	}
}

// ReleaseAllI2S uninstalls every output, freeing the peripheral
func ReleaseAllI2S() {
	if len(i2sOutputs) == 0 {
		return
	}
	drv := MustI2S()
	for oid, out := range i2sOutputs {
		out.release(drv)
		delete(i2sOutputs, oid)
	}
}
