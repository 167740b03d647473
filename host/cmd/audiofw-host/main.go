// Command audiofw-host drives the I2S audio firmware over USB serial
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"audiofw/core"
	"audiofw/host/audio"
	"audiofw/host/mcu"
	"audiofw/host/serial"
)

var (
	device  = flag.String("device", "", "Serial device path (default: first USB CDC port)")
	baud    = flag.Int("baud", 250000, "Baud rate (ignored for USB CDC)")
	verbose = flag.Bool("verbose", false, "Enable debug logging")
	oid     = flag.Uint("oid", 0, "I2S output object id")
	ampPin  = flag.Int("amp-pin", -1, "amplifier enable GPIO, -1 for none")
	ampLow  = flag.Bool("amp-active-low", false, "amplifier enable is active low")
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: audiofw-host [flags] <command> [args]

commands:
  info              print the firmware dictionary summary
  default           configure the output with the board defaults
  tone [flags]      play a sine tone
  play [flags] FILE stream an mp3, flac or raw s16le file
  state             print the output state
  stop              stop the output and drop queued audio
  estop             emergency stop: silence and refuse playback
  clear             clear a shutdown
  debug on|off      switch the firmware debug UART log

flags:
`)
	flag.PrintDefaults()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = ""
	return cfg.Build()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Error("command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func run(log *zap.Logger, cmd string, args []string) error {
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	m, err := mcu.Open(cfg, log)
	if err != nil {
		return err
	}
	defer m.Close()
	log.Info("connected", zap.String("device", cfg.Device))

	if err := m.RetrieveDictionary(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	id := uint8(*oid)
	switch cmd {
	case "info":
		printInfo(m.Dictionary())
		return printStatus(log, m)
	case "default":
		return configureDefault(m, id)
	case "tone":
		return runTone(m, id, args)
	case "play":
		return runPlay(ctx, log, m, id, args)
	case "state":
		st, err := m.QueryI2SState(id)
		if err != nil {
			return err
		}
		printState(st)
		return nil
	case "stop":
		if err := m.StopI2S(id); err != nil {
			return err
		}
		return m.ZeroI2S(id)
	case "estop":
		return m.EmergencyStop()
	case "clear":
		return m.ClearShutdown()
	case "debug":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: debug on|off")
		}
		return m.SetDebug(args[0] == "on")
	}
	usage()
	return fmt.Errorf("unknown command %q", cmd)
}

// configureDefault applies the board defaults and the optional amp pin
func configureDefault(m *mcu.MCU, id uint8) error {
	return configureOutput(m, id, false)
}

// stereoConfig is the board default with both slots carrying their own channel
func stereoConfig() core.I2SConfig {
	cfg := core.DefaultI2SConfig()
	cfg.ChannelFormat = core.I2SChannelRightLeft
	return cfg
}

// configureOutput configures the output for mono or stereo streaming and
// attaches the optional amp pin
func configureOutput(m *mcu.MCU, id uint8, stereo bool) error {
	var err error
	if stereo {
		err = m.ConfigureI2S(id, stereoConfig(), core.DefaultI2SPinConfig())
	} else {
		err = m.ConfigureI2SDefault(id)
	}
	if err != nil {
		return err
	}
	if *ampPin < 0 {
		return nil
	}
	return m.ConfigureI2SAmp(id, uint32(*ampPin), !*ampLow)
}

func printInfo(d *mcu.Dictionary) {
	fmt.Printf("version: %s (%s)\n", d.Version, d.BuildVersions)

	keys := make([]string, 0, len(d.Config))
	for k := range d.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("config:")
	for _, k := range keys {
		fmt.Printf("  %-22s %s\n", k, d.Config[k])
	}

	var i2s []string
	for format := range d.Commands {
		if strings.HasPrefix(format, "i2s_") || strings.HasPrefix(format, "config_i2s") {
			i2s = append(i2s, format)
		}
	}
	sort.Strings(i2s)
	fmt.Printf("commands: %d (%d i2s)\n", len(d.Commands), len(i2s))
	for _, format := range i2s {
		fmt.Printf("  %s\n", format)
	}
	fmt.Printf("responses: %d\n", len(d.Responses))
}

// printStatus prints uptime and shutdown state; older firmware without
// these commands only gets a warning
func printStatus(log *zap.Logger, m *mcu.MCU) error {
	up, err := m.Uptime()
	if err != nil {
		log.Warn("uptime unavailable", zap.Error(err))
	} else {
		fmt.Printf("uptime: %s\n", up.Round(time.Millisecond))
	}
	cfg, err := m.GetConfig()
	if err != nil {
		log.Warn("config unavailable", zap.Error(err))
		return nil
	}
	fmt.Printf("configured: %t shutdown: %t\n", cfg.IsConfig, cfg.IsShutdown)
	return nil
}

func printState(st mcu.I2SState) {
	fmt.Printf("oid=%d running=%t queued=%d free=%d underruns=%d sample_rate=%d\n",
		st.OID, st.Running, st.Queued, st.Free, st.Underruns, st.SampleRate)
}

func runTone(m *mcu.MCU, id uint8, args []string) error {
	fs := flag.NewFlagSet("tone", flag.ContinueOnError)
	freq := fs.Uint("freq", 440, "tone frequency in Hz")
	amp := fs.Uint("amp", 8000, "amplitude 0-32767")
	ms := fs.Uint("ms", 1000, "duration in ms, 0 plays until stopped")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *amp > 32767 {
		return fmt.Errorf("amplitude %d out of range", *amp)
	}
	if err := m.ToneI2S(id, uint32(*freq), uint16(*amp), uint32(*ms)); err != nil {
		return err
	}
	return m.StartI2S(id)
}

func runPlay(ctx context.Context, log *zap.Logger, m *mcu.MCU, id uint8, args []string) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	rawRate := fs.Int("raw-rate", 22050, "sample rate of raw input")
	rawChannels := fs.Int("raw-channels", 1, "channel count of raw input")
	configure := fs.Bool("configure", true, "configure the output first (right_left with -stereo)")
	stereo := fs.Bool("stereo", false, "send stereo frames")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("play needs exactly one file")
	}

	if *configure {
		if err := configureOutput(m, id, *stereo); err != nil {
			return err
		}
	}
	st, err := m.QueryI2SState(id)
	if err != nil {
		return err
	}

	channels := 1
	if *stereo {
		channels = 2
	}

	src, err := audio.Open(fs.Arg(0), audio.RawFormat{SampleRate: *rawRate, Channels: *rawChannels})
	if err != nil {
		return err
	}
	stream, err := audio.NewStream(src, int(st.SampleRate), channels)
	if err != nil {
		src.Close()
		return err
	}
	defer stream.Close()

	log.Info("playing",
		zap.String("file", fs.Arg(0)),
		zap.Int("source_rate", src.SampleRate()),
		zap.Int("source_channels", src.Channels()),
		zap.Uint32("rate", st.SampleRate),
		zap.Int("channels", channels))

	p := &player{m: m, log: log, oid: id, stream: stream, channels: channels, rate: st.SampleRate}
	err = p.run(ctx, st)
	if errors.Is(err, context.Canceled) {
		log.Info("interrupted")
		_ = m.StopI2S(id)
		return m.ZeroI2S(id)
	}
	return err
}

// player streams a converted file with flow control from i2s_state.free
type player struct {
	m        *mcu.MCU
	log      *zap.Logger
	oid      uint8
	stream   *audio.Stream
	channels int
	rate     uint32

	sent    int
	started bool
}

func (p *player) run(ctx context.Context, st mcu.I2SState) error {
	chunkBytes := audio.ChunkBytes(p.channels)
	chunkFrames := chunkBytes / (2 * p.channels)
	samples := make([]int16, chunkBytes/2)
	payload := make([]byte, 0, chunkBytes)
	free := st.Free
	underruns := st.Underruns

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if free < chunkFrames {
			if !p.started {
				if err := p.start(); err != nil {
					return err
				}
			}
			// Roughly the time to play one chunk
			time.Sleep(time.Duration(chunkFrames) * time.Second / time.Duration(p.rate))
			st, err := p.m.QueryI2SState(p.oid)
			if err != nil {
				return err
			}
			if st.Underruns != underruns {
				p.log.Warn("underrun", zap.Uint32("count", st.Underruns))
				underruns = st.Underruns
			}
			free = st.Free
			continue
		}

		n, err := p.stream.Read(samples)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		payload = audio.EncodeLE(payload[:0], samples[:n])
		if p.channels == 2 {
			err = p.m.WriteI2SStereo(p.oid, payload)
		} else {
			err = p.m.WriteI2S(p.oid, payload)
		}
		if err != nil {
			return err
		}
		frames := n / p.channels
		free -= frames
		p.sent += frames
	}

	if !p.started {
		if err := p.start(); err != nil {
			return err
		}
	}
	return p.drain(ctx)
}

func (p *player) start() error {
	p.started = true
	p.log.Debug("starting output", zap.Int("queued_frames", p.sent))
	return p.m.StartI2S(p.oid)
}

// drain waits for the ring to empty, then stops the output
func (p *player) drain(ctx context.Context) error {
	for {
		st, err := p.m.QueryI2SState(p.oid)
		if err != nil {
			return err
		}
		if st.Queued == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(st.Queued) * time.Second / time.Duration(p.rate)):
		}
	}
	p.log.Info("done", zap.Int("frames", p.sent), zap.Float64("seconds", float64(p.sent)/float64(p.rate)))
	return p.m.StopI2S(p.oid)
}
