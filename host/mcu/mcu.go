// Package mcu is the host-side client for the audio firmware
package mcu

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"audiofw/host/serial"
	"audiofw/protocol"
)

// Bootstrap ids, fixed before the dictionary is known
const (
	identifyResponseID = 0
	identifyID         = 1

	identifyChunk   = 40
	maxDictionary   = 64 * 1024
	responseTimeout = time.Second
)

var ErrNoDictionary = errors.New("dictionary not loaded")

// MCU is a connection to the audio firmware
type MCU struct {
	transport *protocol.HostTransport
	log       *zap.Logger

	dictionary     *Dictionary
	dictionaryData []byte
}

// New wraps an already open port
func New(port io.ReadWriteCloser, log *zap.Logger) *MCU {
	if log == nil {
		log = zap.NewNop()
	}
	return &MCU{
		transport: protocol.NewHostTransport(port),
		log:       log,
	}
}

// Open opens a serial port and connects to the MCU on it
func Open(cfg *serial.Config, log *zap.Logger) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	m := New(port, log)
	m.log.Debug("serial port open", zap.String("device", cfg.Device), zap.Int("baud", cfg.Baud))
	return m, nil
}

// Close closes the transport and the underlying port
func (m *MCU) Close() error {
	return m.transport.Close()
}

// RetrieveDictionary reads the dictionary with identify and parses it
func (m *MCU) RetrieveDictionary() error {
	var buf bytes.Buffer
	offset := uint32(0)
	for {
		chunk, err := m.identify(offset, identifyChunk)
		if err != nil {
			return fmt.Errorf("identify at offset %d: %w", offset, err)
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
		if buf.Len() > maxDictionary {
			return fmt.Errorf("dictionary larger than %d bytes", maxDictionary)
		}
	}
	m.log.Debug("dictionary retrieved", zap.Int("bytes", buf.Len()))

	dict, err := ParseDictionary(buf.Bytes())
	if err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}
	m.dictionaryData = buf.Bytes()
	m.dictionary = dict
	m.log.Info("dictionary loaded",
		zap.String("version", dict.Version),
		zap.Int("commands", len(dict.Commands)),
		zap.Int("responses", len(dict.Responses)))
	return nil
}

// identify fetches one dictionary chunk
func (m *MCU) identify(offset uint32, count uint8) ([]byte, error) {
	m.drainResponses()
	err := m.transport.SendCommand(identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(responseTimeout)
	for {
		msg, err := m.transport.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return nil, err
		}
		payload := msg.Payload
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil || id != identifyResponseID {
			continue
		}
		respOffset, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("decode offset: %w", err)
		}
		if respOffset != offset {
			return nil, fmt.Errorf("offset mismatch: got %d, want %d", respOffset, offset)
		}
		data, err := protocol.DecodeVLQBytes(&payload)
		if err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
		return data, nil
	}
}

// drainResponses drops responses left over from earlier exchanges
func (m *MCU) drainResponses() {
	if n := m.transport.DrainResponses(); n > 0 {
		m.log.Debug("dropped stale responses", zap.Int("count", n))
	}
}

// Dictionary returns the parsed dictionary, nil before RetrieveDictionary
func (m *MCU) Dictionary() *Dictionary {
	return m.dictionary
}

// DictionaryRaw returns the dictionary as received
func (m *MCU) DictionaryRaw() []byte {
	return m.dictionaryData
}

// Send sends a command by name with positional arguments
func (m *MCU) Send(name string, args ...interface{}) error {
	if m.dictionary == nil {
		return ErrNoDictionary
	}
	mf, err := m.dictionary.Command(name)
	if err != nil {
		return err
	}
	enc, err := mf.Encode(args...)
	if err != nil {
		return err
	}
	m.log.Debug("send", zap.String("cmd", name), zap.Uint16("id", mf.ID))
	if err := m.transport.SendCommand(mf.ID, enc); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Query sends a command and waits for the named response
func (m *MCU) Query(response string, timeout time.Duration, name string, args ...interface{}) (*Response, error) {
	if m.dictionary == nil {
		return nil, ErrNoDictionary
	}
	m.drainResponses()
	if err := m.Send(name, args...); err != nil {
		return nil, err
	}
	return m.WaitFor(response, timeout)
}

// WaitFor returns the next response with the given name.
// Other responses received meanwhile are logged and dropped.
func (m *MCU) WaitFor(response string, timeout time.Duration) (*Response, error) {
	if m.dictionary == nil {
		return nil, ErrNoDictionary
	}
	deadline := time.Now().Add(timeout)
	for {
		msg, err := m.transport.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", response, err)
		}
		payload := msg.Payload
		for len(payload) > 0 {
			resp, err := m.dictionary.DecodeResponse(&payload)
			if err != nil {
				m.log.Warn("undecodable response", zap.Error(err))
				break
			}
			if resp.Name == response {
				return resp, nil
			}
			m.log.Debug("skipping response", zap.String("name", resp.Name))
		}
	}
}
