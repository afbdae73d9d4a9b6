// Package transport implements the client side of a connection to the
// microscope server.
//
// A ClientTransport owns one TCP connection and carries one call at a time:
// Call writes a request frame and blocks until the response with the same
// sequence number arrives. A background goroutine (recvLoop) reads every
// frame so a dropped connection is noticed even between calls, and an
// optional heartbeat goroutine keeps idle connections alive.
//
//	Call(seq=7) ──request──→ server
//	recvLoop   ←─response(seq=7)── server → pending → Call returns
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"temctl/codec"
	"temctl/message"
	"temctl/protocol"
)

var log = commonlog.GetLogger("temctl.transport")

var (
	// ErrConnection marks transport failures: unreachable peer, broken or
	// closed connection, framing errors and unexpected responses.
	ErrConnection = errors.New("connection error")

	ErrFrameTooLarge = protocol.ErrFrameTooLarge
)

func connectionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConnection, fmt.Sprintf(format, args...))
}

// Options tune a transport. Zero values select the defaults.
type Options struct {
	Codec             codec.CodecType
	MaxMessageSize    uint32        // defaults to protocol.DefaultMaxBodySize
	HeartbeatInterval time.Duration // 0 disables heartbeats
}

type result struct {
	resp *message.Response
	err  error
}

// ClientTransport manages a single TCP connection.
type ClientTransport struct {
	conn    net.Conn
	codec   codec.Codec
	maxBody uint32

	calling sync.Mutex // one outstanding call
	sending sync.Mutex // whole frames only; heartbeats share the connection

	mu      sync.Mutex
	seq     uint32
	pending map[uint32]chan result
	err     error // set once the connection is unusable
	done    chan struct{}
}

// NewClientTransport wraps conn and starts its background goroutines.
func NewClientTransport(conn net.Conn, opts Options) *ClientTransport {
	if opts.MaxMessageSize == 0 {
		opts.MaxMessageSize = protocol.DefaultMaxBodySize
	}
	t := &ClientTransport{
		conn:    conn,
		codec:   codec.GetCodec(opts.Codec),
		maxBody: opts.MaxMessageSize,
		pending: make(map[uint32]chan result),
		done:    make(chan struct{}),
	}
	go t.recvLoop()
	if opts.HeartbeatInterval > 0 {
		go t.heartbeatLoop(opts.HeartbeatInterval)
	}
	return t
}

// Call sends req and waits for its response. Any failure of the connection
// itself is returned wrapped in ErrConnection and leaves the transport closed;
// an error response from the server is a normal *message.Response.
func (t *ClientTransport) Call(req *message.Request) (*message.Response, error) {
	t.calling.Lock()
	defer t.calling.Unlock()

	body, err := t.codec.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Operation, err)
	}

	t.mu.Lock()
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return nil, err
	}
	t.seq++
	seq := t.seq
	ch := make(chan result, 1)
	t.pending[seq] = ch
	t.mu.Unlock()

	header := protocol.Header{
		CodecType: byte(t.codec.Type()),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       seq,
	}
	if err := t.write(&header, body); err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			t.forget(seq)
			return nil, err
		}
		t.fail(connectionError("send %s: %v", req.Operation, err))
	}

	r := <-ch
	return r.resp, r.err
}

// SendControl writes a bare control string. The server answers control
// strings by closing the connection, so no response is awaited.
func (t *ClientTransport) SendControl(cmd string) error {
	t.calling.Lock()
	defer t.calling.Unlock()

	if err := t.Err(); err != nil {
		return err
	}
	body, err := t.codec.Encode(cmd)
	if err != nil {
		return err
	}
	header := protocol.Header{
		CodecType: byte(t.codec.Type()),
		MsgType:   protocol.MsgTypeControl,
	}
	if err := t.write(&header, body); err != nil {
		err = connectionError("send control %q: %v", cmd, err)
		t.fail(err)
		return err
	}
	return nil
}

func (t *ClientTransport) write(h *protocol.Header, body []byte) error {
	t.sending.Lock()
	defer t.sending.Unlock()
	return protocol.EncodeLimit(t.conn, h, body, t.maxBody)
}

func (t *ClientTransport) forget(seq uint32) {
	t.mu.Lock()
	delete(t.pending, seq)
	t.mu.Unlock()
}

// recvLoop reads frames until the connection breaks. A response whose
// sequence number matches no pending call means the stream is out of step,
// which is fatal for the connection.
func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.DecodeLimit(t.conn, t.maxBody)
		if err != nil {
			t.fail(connectionError("receive: %v", err))
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			log.Debugf("ignoring %s frame from server", header.MsgType)
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[header.Seq]
		delete(t.pending, header.Seq)
		t.mu.Unlock()
		if !ok {
			t.fail(connectionError("response for unknown sequence number %d", header.Seq))
			return
		}

		resp := new(message.Response)
		if err := codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, resp); err != nil {
			ch <- result{err: connectionError("decode response: %v", err)}
			t.fail(connectionError("undecodable response: %v", err))
			return
		}
		if !resp.Valid() {
			err := connectionError("unexpected response status %d", resp.Status)
			t.fail(err)
			ch <- result{err: err}
			return
		}
		ch <- result{resp: resp}
	}
}

// fail records the first fatal error, closes the connection and releases
// every pending call.
func (t *ClientTransport) fail(err error) {
	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		return
	}
	t.err = err
	pending := t.pending
	t.pending = make(map[uint32]chan result)
	close(t.done)
	t.mu.Unlock()

	t.conn.Close()
	for _, ch := range pending {
		ch <- result{err: err}
	}
}

// Close closes the connection. Calls made afterwards fail with ErrConnection.
func (t *ClientTransport) Close() error {
	t.fail(connectionError("transport closed"))
	return nil
}

// Err returns the error that made the transport unusable, or nil.
func (t *ClientTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed once the transport becomes unusable.
func (t *ClientTransport) Done() <-chan struct{} {
	return t.done
}

// Conn returns the underlying TCP connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// heartbeatLoop sends empty heartbeat frames until the transport fails.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{
			CodecType: byte(t.codec.Type()),
			MsgType:   protocol.MsgTypeHeartbeat,
		}
		if err := t.write(header, nil); err != nil {
			t.fail(connectionError("heartbeat: %v", err))
			return
		}
	}
}
