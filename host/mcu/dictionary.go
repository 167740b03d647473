package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"audiofw/protocol"
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrUnknownResponse = errors.New("unknown response")
	ErrArgCount        = errors.New("wrong number of arguments")
	ErrArgType         = errors.New("unsupported argument type")
)

// Dictionary is the parsed MCU data dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	commands  map[string]*MessageFormat
	responses map[uint16]*MessageFormat
}

// MessageFormat is one "name param=%type ..." dictionary entry
type MessageFormat struct {
	ID     uint16
	Name   string
	Params []Param
}

// Param is a single named message parameter
type Param struct {
	Name string
	Type string // c, u, hu, i, hi, *s, .*s, s
}

// ParseDictionary decodes a dictionary blob, inflating it if it is zlib data
func ParseDictionary(data []byte) (*Dictionary, error) {
	raw, err := inflate(data)
	if err != nil {
		return nil, err
	}

	d := &Dictionary{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("unmarshal dictionary: %w", err)
	}

	d.commands = make(map[string]*MessageFormat, len(d.Commands))
	for format, id := range d.Commands {
		mf, err := parseFormat(format, id)
		if err != nil {
			return nil, err
		}
		d.commands[mf.Name] = mf
	}
	d.responses = make(map[uint16]*MessageFormat, len(d.Responses))
	for format, id := range d.Responses {
		mf, err := parseFormat(format, id)
		if err != nil {
			return nil, err
		}
		d.responses[mf.ID] = mf
	}
	return d, nil
}

// inflate returns data decompressed when it carries a zlib header
func inflate(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x78 {
		return data, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open zlib stream: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate dictionary: %w", err)
	}
	return raw, nil
}

// parseFormat splits "name a=%c b=%*s" into a MessageFormat
func parseFormat(format string, id int) (*MessageFormat, error) {
	fields := strings.Fields(format)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty message format for id %d", id)
	}
	mf := &MessageFormat{ID: uint16(id), Name: fields[0]}
	for _, f := range fields[1:] {
		name, typ, ok := strings.Cut(f, "=%")
		if !ok {
			return nil, fmt.Errorf("bad parameter %q in %q", f, format)
		}
		mf.Params = append(mf.Params, Param{Name: name, Type: typ})
	}
	return mf, nil
}

// Command looks up a command by name
func (d *Dictionary) Command(name string) (*MessageFormat, error) {
	mf, ok := d.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return mf, nil
}

// Response looks up a response by message id
func (d *Dictionary) Response(id uint16) (*MessageFormat, error) {
	mf, ok := d.responses[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownResponse, id)
	}
	return mf, nil
}

// Constant returns a config constant as a string
func (d *Dictionary) Constant(name string) (string, bool) {
	v, ok := d.Config[name]
	return v, ok
}

// ConstantInt returns a config constant parsed as an integer
func (d *Dictionary) ConstantInt(name string) (int64, error) {
	v, ok := d.Config[name]
	if !ok {
		return 0, fmt.Errorf("constant %s not in dictionary", name)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("constant %s: %w", name, err)
	}
	return n, nil
}

// Encode writes positional arguments in the order of the format parameters.
// Integers of any width, bool, []byte and string are accepted.
func (mf *MessageFormat) Encode(args ...interface{}) (func(protocol.OutputBuffer), error) {
	if len(args) != len(mf.Params) {
		return nil, fmt.Errorf("%s: %w: got %d, want %d", mf.Name, ErrArgCount, len(args), len(mf.Params))
	}
	for i, a := range args {
		if err := checkArg(mf.Params[i], a); err != nil {
			return nil, fmt.Errorf("%s %s: %w", mf.Name, mf.Params[i].Name, err)
		}
	}
	return func(output protocol.OutputBuffer) {
		for i, a := range args {
			encodeArg(output, mf.Params[i], a)
		}
	}, nil
}

func checkArg(p Param, a interface{}) error {
	switch p.Type {
	case "*s", ".*s", "s":
		switch a.(type) {
		case []byte, string:
			return nil
		}
	default:
		if _, ok := toInt64(a); ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %T for %%%s", ErrArgType, a, p.Type)
}

func encodeArg(output protocol.OutputBuffer, p Param, a interface{}) {
	switch p.Type {
	case "*s", ".*s":
		if s, ok := a.(string); ok {
			a = []byte(s)
		}
		protocol.EncodeVLQBytes(output, a.([]byte))
	case "s":
		if b, ok := a.([]byte); ok {
			a = string(b)
		}
		protocol.EncodeVLQString(output, a.(string))
	case "i", "hi":
		v, _ := toInt64(a)
		protocol.EncodeVLQInt(output, int32(v))
	default:
		v, _ := toInt64(a)
		protocol.EncodeVLQUint(output, uint32(v))
	}
}

func toInt64(a interface{}) (int64, bool) {
	switch v := a.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Response is a decoded MCU message
type Response struct {
	Name   string
	Params map[string]interface{}
}

// Uint returns an unsigned parameter, 0 if absent
func (r *Response) Uint(name string) uint32 {
	v, _ := r.Params[name].(uint32)
	return v
}

// Int returns a signed parameter, 0 if absent
func (r *Response) Int(name string) int32 {
	v, _ := r.Params[name].(int32)
	return v
}

// Bytes returns a byte string parameter
func (r *Response) Bytes(name string) []byte {
	v, _ := r.Params[name].([]byte)
	return v
}

// DecodeResponse decodes one message from the front of a frame payload
func (d *Dictionary) DecodeResponse(payload *[]byte) (*Response, error) {
	id, err := protocol.DecodeVLQUint(payload)
	if err != nil {
		return nil, fmt.Errorf("decode message id: %w", err)
	}
	mf, err := d.Response(uint16(id))
	if err != nil {
		return nil, err
	}
	resp := &Response{Name: mf.Name, Params: make(map[string]interface{}, len(mf.Params))}
	for _, p := range mf.Params {
		var v interface{}
		switch p.Type {
		case "*s", ".*s":
			v, err = protocol.DecodeVLQBytes(payload)
		case "s":
			v, err = protocol.DecodeVLQString(payload)
		case "i", "hi":
			v, err = protocol.DecodeVLQInt(payload)
		default:
			v, err = protocol.DecodeVLQUint(payload)
		}
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", mf.Name, p.Name, err)
		}
		resp.Params[p.Name] = v
	}
	return resp, nil
}
