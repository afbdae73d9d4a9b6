// Package protocol implements the binary frame protocol spoken between temctl
// clients and the microscope server.
//
// Every message travels as a fixed-size 14-byte header followed by a
// variable-length body. The receiver reads the header first to learn the body
// length, then reads exactly that many bytes, so a response is never truncated
// by a fixed read buffer. Bodies larger than the configured maximum are
// rejected before any allocation happens.
//
// Frame format:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ tem  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic number bytes: "tem".
// Rejects connections that are not speaking the protocol (e.g., an HTTP client
// pointed at the server port).
const (
	MagicNumber byte = 0x74 // 't'
	MagicByte2  byte = 0x65 // 'e'
	MagicByte3  byte = 0x6d // 'm'
	Version     byte = 0x01
	HeaderSize  int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// DefaultMaxBodySize bounds a single frame body unless the caller picks another limit.
	DefaultMaxBodySize uint32 = 16 << 20
)

// ErrFrameTooLarge is returned when a frame body exceeds the size limit.
var ErrFrameTooLarge = errors.New("protocol: frame body exceeds maximum size")

// MsgType distinguishes request, response, heartbeat and control frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // Client → Server operation request
	MsgTypeResponse  MsgType = 1 // Server → Client (status, payload) response
	MsgTypeHeartbeat MsgType = 2 // KeepAlive probe (no body)
	MsgTypeControl   MsgType = 3 // Client → Server bare control string ("close", "kill")
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeRequest:
		return "request"
	case MsgTypeResponse:
		return "response"
	case MsgTypeHeartbeat:
		return "heartbeat"
	case MsgTypeControl:
		return "control"
	default:
		return fmt.Sprintf("msgtype(%d)", byte(t))
	}
}

// Codec type constants, mirrored from codec package to avoid circular import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

// Header represents the fixed 14-byte frame header.
type Header struct {
	CodecType byte    // Serialization format: 0=JSON, 1=Binary
	MsgType   MsgType // Request, Response, Heartbeat or Control
	Seq       uint32  // Sequence ID, echoed by the server so the client can match request ↔ response
	BodyLen   uint32  // Body length in bytes
}

// Encode writes a complete frame (header + body) to w with the default size limit.
// The caller must hold a write lock if multiple goroutines share the same writer,
// otherwise frames from different writers will interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	return EncodeLimit(w, h, body, DefaultMaxBodySize)
}

// EncodeLimit is Encode with an explicit body size limit.
func EncodeLimit(w io.Writer, h *Header, body []byte, maxBody uint32) error {
	if uint64(len(body)) > uint64(maxBody) {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(body), maxBody)
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(body))

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	// Sequence number and body length are big-endian (network byte order)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(body)))

	// Header and body go out in one write so a heartbeat can never split a frame.
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame (header + body) from r with the default size limit.
func Decode(r io.Reader) (*Header, []byte, error) {
	return DecodeLimit(r, DefaultMaxBodySize)
}

// DecodeLimit reads a complete frame from r. It validates the magic number,
// version, codec type and message type, and refuses bodies larger than maxBody.
// Uses io.ReadFull to guarantee exactly N bytes are read, preventing partial reads.
func DecodeLimit(r io.Reader, maxBody uint32) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}

	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}

	msgType := MsgType(headerBuf[5])
	switch msgType {
	case MsgTypeRequest, MsgTypeResponse, MsgTypeHeartbeat, MsgTypeControl:
	default:
		return nil, nil, fmt.Errorf("unsupported message type: %d", headerBuf[5])
	}

	seq := binary.BigEndian.Uint32(headerBuf[6:10])
	bodyLen := binary.BigEndian.Uint32(headerBuf[10:14])
	if bodyLen > maxBody {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, bodyLen, maxBody)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   msgType,
		Seq:       seq,
		BodyLen:   bodyLen,
	}, body, nil
}
