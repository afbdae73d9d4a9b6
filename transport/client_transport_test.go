package transport

import (
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"temctl/codec"
	"temctl/config"
	"temctl/device"
	"temctl/dispatch"
	"temctl/message"
	"temctl/protocol"
	"temctl/server"
	"temctl/simulate"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	dev, err := simulate.New(config.Default().Simulation)
	if err != nil {
		t.Fatal(err)
	}
	table, err := dispatch.New(dev)
	if err != nil {
		t.Fatal(err)
	}
	svr := server.NewServer(simulate.Name, table)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go svr.ServeListener(l)
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr
}

func newTransport(t *testing.T, svr *server.Server, opts Options) *ClientTransport {
	t.Helper()
	conn, err := net.Dial("tcp", svr.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	ct := NewClientTransport(conn, opts)
	t.Cleanup(func() { ct.Close() })
	return ct
}

// Serial requests over one connection
func TestClientTransportSerial(t *testing.T) {
	svr := startServer(t)

	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeBinary} {
		tr := newTransport(t, svr, Options{Codec: ct})

		for _, want := range []int{1, 500, 65535} {
			req, err := message.NewRequest("setBrightness", []any{want}, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := tr.Call(req)
			if err != nil {
				t.Fatal(err)
			}
			if err := resp.Err(); err != nil {
				t.Fatalf("server error: %s", err)
			}

			resp, err = tr.Call(&message.Request{Operation: "getBrightness"})
			if err != nil {
				t.Fatal(err)
			}
			var got int
			if err := json.Unmarshal(resp.Payload, &got); err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Fatalf("%s: expect %d, got %d", ct, want, got)
			}
		}
	}
}

func TestClientTransportErrorResponse(t *testing.T) {
	svr := startServer(t)
	tr := newTransport(t, svr, Options{})

	req, err := message.NewRequest("setMagnificationIndex", []any{-1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := tr.Call(req)
	if err != nil {
		t.Fatalf("an error response is not a transport error: %v", err)
	}
	if !errors.Is(resp.Err(), device.ErrIndex) {
		t.Fatalf("expect IndexError, got %v", resp.Err())
	}
}

func TestClientTransportClosedByServer(t *testing.T) {
	svr := startServer(t)
	tr := newTransport(t, svr, Options{})

	if err := tr.SendControl(message.ControlClose); err != nil {
		t.Fatal(err)
	}

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not notice the closed connection")
	}

	_, err := tr.Call(&message.Request{Operation: "getBrightness"})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expect ErrConnection, got %v", err)
	}
	if tr.Err() == nil {
		t.Fatal("expect the transport to be closed after an unexpected status")
	}
	if _, err := tr.Call(&message.Request{Operation: "getBrightness"}); !errors.Is(err, ErrConnection) {
		t.Fatalf("expect ErrConnection on a closed transport, got %v", err)
	}
}

func TestClientTransportFrameTooLarge(t *testing.T) {
	svr := startServer(t)
	tr := newTransport(t, svr, Options{MaxMessageSize: 32})

	req, err := message.NewRequest("setScreenPosition", []any{"this argument does not fit in the frame"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Call(req); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expect ErrFrameTooLarge, got %v", err)
	}
	if tr.Err() != nil {
		t.Fatalf("an oversized request must not break the connection: %v", tr.Err())
	}
}

// fakeServer answers every request with the frame produced by reply.
func fakeServer(t *testing.T, reply func(h *protocol.Header) (*protocol.Header, []byte)) net.Conn {
	t.Helper()
	client, srv := net.Pipe()
	go func() {
		defer srv.Close()
		for {
			h, _, err := protocol.Decode(srv)
			if err != nil {
				return
			}
			rh, body := reply(h)
			if err := protocol.Encode(srv, rh, body); err != nil {
				return
			}
		}
	}()
	return client
}

func TestClientTransportSequenceMismatch(t *testing.T) {
	conn := fakeServer(t, func(h *protocol.Header) (*protocol.Header, []byte) {
		return &protocol.Header{MsgType: protocol.MsgTypeResponse, Seq: h.Seq + 100}, []byte(`[200,null]`)
	})
	tr := NewClientTransport(conn, Options{})
	defer tr.Close()

	_, err := tr.Call(&message.Request{Operation: "getBrightness"})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expect ErrConnection, got %v", err)
	}
	if tr.Err() == nil {
		t.Fatal("expect the transport to be closed after an unexpected status")
	}
	if _, err := tr.Call(&message.Request{Operation: "getBrightness"}); !errors.Is(err, ErrConnection) {
		t.Fatalf("expect ErrConnection on a closed transport, got %v", err)
	}
}

func TestClientTransportUnexpectedStatus(t *testing.T) {
	conn := fakeServer(t, func(h *protocol.Header) (*protocol.Header, []byte) {
		return &protocol.Header{MsgType: protocol.MsgTypeResponse, Seq: h.Seq}, []byte(`[302,null]`)
	})
	tr := NewClientTransport(conn, Options{})
	defer tr.Close()

	_, err := tr.Call(&message.Request{Operation: "getBrightness"})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expect ErrConnection, got %v", err)
	}
	if tr.Err() == nil {
		t.Fatal("expect the transport to be closed after an unexpected status")
	}
	if _, err := tr.Call(&message.Request{Operation: "getBrightness"}); !errors.Is(err, ErrConnection) {
		t.Fatalf("expect ErrConnection on a closed transport, got %v", err)
	}
}

func TestClientTransportHeartbeat(t *testing.T) {
	client, srv := net.Pipe()
	defer srv.Close()
	tr := NewClientTransport(client, Options{HeartbeatInterval: 10 * time.Millisecond})
	defer tr.Close()

	srv.SetReadDeadline(time.Now().Add(2 * time.Second))
	h, body, err := protocol.Decode(srv)
	if err != nil {
		t.Fatal(err)
	}
	if h.MsgType != protocol.MsgTypeHeartbeat || len(body) != 0 {
		t.Fatalf("expect an empty heartbeat, got %s with %d bytes", h.MsgType, len(body))
	}
}
