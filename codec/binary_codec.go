package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"temctl/message"
)

var errShortBuffer = errors.New("BinaryCodec: truncated data")

// BinaryCodec lays envelopes out as length-prefixed fields. Argument and
// result values stay JSON inside their fields.
//
//	Request:  u16 len, operation | u16 argc, { u32 len, value } | u16 kwargc, { u16 len, name, u32 len, value }
//	Response: u16 status | u32 len, payload
//	string:   raw bytes
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *message.Request:
		return encodeRequest(msg)
	case *message.Response:
		return encodeResponse(msg)
	case string:
		return []byte(msg), nil
	default:
		return nil, fmt.Errorf("BinaryCodec: cannot encode %T", v)
	}
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	switch msg := v.(type) {
	case *message.Request:
		return decodeRequest(data, msg)
	case *message.Response:
		return decodeResponse(data, msg)
	case *string:
		*msg = string(data)
		return nil
	default:
		return fmt.Errorf("BinaryCodec: cannot decode into %T", v)
	}
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func encodeRequest(req *message.Request) ([]byte, error) {
	if len(req.Operation) > math.MaxUint16 || len(req.Args) > math.MaxUint16 || len(req.Kwargs) > math.MaxUint16 {
		return nil, errors.New("BinaryCodec: request too large")
	}

	total := 2 + len(req.Operation) + 2 + 2
	for _, a := range req.Args {
		total += 4 + len(a)
	}
	names := make([]string, 0, len(req.Kwargs))
	for name, v := range req.Kwargs {
		if len(name) > math.MaxUint16 {
			return nil, errors.New("BinaryCodec: keyword name too long")
		}
		names = append(names, name)
		total += 2 + len(name) + 4 + len(v)
	}
	sort.Strings(names)

	buf := make([]byte, 0, total)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(req.Operation)))
	buf = append(buf, req.Operation...)

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(req.Args)))
	for _, a := range req.Args {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(a)))
		buf = append(buf, a...)
	}

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(names)))
	for _, name := range names {
		v := req.Kwargs[name]
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(name)))
		buf = append(buf, name...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	}
	return buf, nil
}

func decodeRequest(data []byte, req *message.Request) error {
	r := reader{data: data}

	req.Operation = string(r.bytes16())
	argc := int(r.uint16())
	if r.err != nil {
		return r.err
	}
	req.Args = make([]json.RawMessage, 0, argc)
	for i := 0; i < argc && r.err == nil; i++ {
		req.Args = append(req.Args, json.RawMessage(r.bytes32()))
	}

	kwargc := int(r.uint16())
	if r.err != nil {
		return r.err
	}
	req.Kwargs = nil
	if kwargc > 0 {
		req.Kwargs = make(map[string]json.RawMessage, kwargc)
	}
	for i := 0; i < kwargc && r.err == nil; i++ {
		name := string(r.bytes16())
		req.Kwargs[name] = json.RawMessage(r.bytes32())
	}
	return r.done()
}

func encodeResponse(resp *message.Response) ([]byte, error) {
	if resp.Status < 0 || resp.Status > math.MaxUint16 {
		return nil, fmt.Errorf("BinaryCodec: status %d out of range", resp.Status)
	}
	buf := make([]byte, 0, 2+4+len(resp.Payload))
	buf = binary.BigEndian.AppendUint16(buf, uint16(resp.Status))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(resp.Payload)))
	buf = append(buf, resp.Payload...)
	return buf, nil
}

func decodeResponse(data []byte, resp *message.Response) error {
	r := reader{data: data}
	resp.Status = int(r.uint16())
	resp.Payload = json.RawMessage(r.bytes32())
	return r.done()
}

// reader walks a buffer, remembering the first out-of-bounds read.
type reader struct {
	data   []byte
	offset int
	err    error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.offset < n {
		r.err = errShortBuffer
		return nil
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b
}

func (r *reader) uint16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// bytes16 and bytes32 read a length-prefixed field and copy it out.
func (r *reader) bytes16() []byte { return r.copyOf(int(r.uint16())) }
func (r *reader) bytes32() []byte { return r.copyOf(int(r.uint32())) }

func (r *reader) copyOf(n int) []byte {
	b := r.next(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.offset != len(r.data) {
		return fmt.Errorf("BinaryCodec: %d trailing bytes", len(r.data)-r.offset)
	}
	return nil
}
