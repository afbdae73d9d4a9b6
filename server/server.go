// Package server runs one microscope behind a TCP listener.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (one goroutine per connection, one request at a time)
//	  → Codec.Decode → Middleware Chain → businessHandler (dispatch table) → Codec.Encode → write response
//
// Control strings are recognized before dispatch: "close" ends the current
// connection, "kill" ends it and stops the accept loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"temctl/codec"
	"temctl/device"
	"temctl/dispatch"
	"temctl/message"
	"temctl/middleware"
	"temctl/protocol"
	"temctl/registry"
)

var log = commonlog.GetLogger("temctl.server")

// DefaultTTL is the registry lease TTL in seconds when none is configured.
const DefaultTTL = 10

// Server executes requests against a single device.
type Server struct {
	device  string          // registry name of the device
	table   *dispatch.Table // built once, shared by all connections
	maxBody uint32

	listener    net.Listener
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc

	registry      registry.Registry
	advertiseAddr string // address registered in the registry
	ttl           int64

	wg       sync.WaitGroup // in-flight requests
	shutdown atomic.Bool    // set before the listener is closed on purpose
	stopOnce sync.Once

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
	ready  chan struct{} // closed once the listener is set
}

// Option configures a Server.
type Option func(*Server)

// WithMaxMessageSize bounds request and response frame bodies.
func WithMaxMessageSize(n uint32) Option {
	return func(s *Server) { s.maxBody = n }
}

// WithRegistry advertises the server under its device name while it serves.
// An empty advertiseAddr advertises the listener's own address.
func WithRegistry(reg registry.Registry, advertiseAddr string, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.advertiseAddr = advertiseAddr
		s.ttl = ttl
	}
}

// NewServer creates a server executing requests through table.
func NewServer(deviceName string, table *dispatch.Table, opts ...Option) *Server {
	s := &Server{
		device:  deviceName,
		table:   table,
		maxBody: protocol.DefaultMaxBodySize,
		ttl:     DefaultTTL,
		conns:   make(map[net.Conn]struct{}),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address and serves until Shutdown or a "kill" control.
func (svr *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener)
}

// ServeListener serves on an existing listener. It returns nil when the
// server was stopped on purpose.
func (svr *Server) ServeListener(listener net.Listener) error {
	// Chain(A, B, C)(handler) → A(B(C(handler)))
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)

	// stop takes connMu too, so a Shutdown that ran before this point is seen here
	svr.connMu.Lock()
	svr.listener = listener
	if svr.advertiseAddr == "" {
		svr.advertiseAddr = listener.Addr().String()
	}
	close(svr.ready)
	if svr.shutdown.Load() {
		svr.connMu.Unlock()
		listener.Close()
		return nil
	}
	if svr.registry != nil {
		instance := registry.ServiceInstance{
			Addr:    svr.advertiseAddr,
			Device:  svr.device,
			PID:     os.Getpid(),
			Started: time.Now(),
		}
		if err := svr.registry.Register(svr.device, instance, svr.ttl); err != nil {
			log.Warningf("could not advertise %s: %s", svr.advertiseAddr, err)
		}
	}
	svr.connMu.Unlock()

	log.Noticef("serving %s (%d operations) on %s", svr.device, svr.table.Len(), listener.Addr())
	for {
		conn, err := listener.Accept()
		if err != nil {
			// Closing the listener on purpose also makes Accept fail.
			if svr.shutdown.Load() {
				return nil
			}
			svr.stop()
			return err
		}
		if !svr.track(conn) {
			conn.Close()
			continue
		}
		go svr.handleConn(conn)
	}
}

// Addr returns the listener address, waiting for Serve to start.
func (svr *Server) Addr() net.Addr {
	<-svr.ready
	return svr.listener.Addr()
}

func (svr *Server) track(conn net.Conn) bool {
	svr.connMu.Lock()
	defer svr.connMu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[conn] = struct{}{}
	return true
}

func (svr *Server) untrack(conn net.Conn) {
	svr.connMu.Lock()
	delete(svr.conns, conn)
	svr.connMu.Unlock()
}

// handleConn serves a single connection, strictly one request after another.
func (svr *Server) handleConn(conn net.Conn) {
	defer svr.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr()
	log.Infof("connection from %s", remote)
	defer log.Infof("connection from %s closed", remote)

	for {
		header, body, err := protocol.DecodeLimit(conn, svr.maxBody)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warningf("dropping %s: %s", remote, err)
			}
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue

		case protocol.MsgTypeControl:
			var cmd string
			if err := codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, &cmd); err != nil {
				log.Warningf("undecodable control from %s: %s", remote, err)
				return
			}
			switch cmd {
			case message.ControlClose:
				log.Infof("%s asked to close the connection", remote)
				return
			case message.ControlKill:
				log.Noticef("%s asked the server to stop", remote)
				conn.Close()
				svr.stop()
				return
			default:
				log.Warningf("ignoring unknown control %q from %s", cmd, remote)
			}

		case protocol.MsgTypeRequest:
			if err := svr.handleRequest(header, body, conn); err != nil {
				log.Warningf("reply to %s: %s", remote, err)
				return
			}

		default:
			log.Warningf("unexpected %s frame from %s", header.MsgType, remote)
			return
		}
	}
}

// handleRequest decodes one request, runs it through the middleware chain
// and writes the response with the request's sequence number.
func (svr *Server) handleRequest(header *protocol.Header, body []byte, conn net.Conn) error {
	svr.wg.Add(1)
	defer svr.wg.Done()

	c := codec.GetCodec(codec.CodecType(header.CodecType))

	var resp *message.Response
	req := new(message.Request)
	if err := c.Decode(body, req); err != nil {
		resp = message.Failure(device.Errorf(device.KindType, "malformed request: %v", err))
	} else {
		resp = svr.handler(context.Background(), req)
	}

	result, err := c.Encode(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq,
	}
	if err := protocol.EncodeLimit(conn, &replyHeader, result, svr.maxBody); err != nil {
		if !errors.Is(err, protocol.ErrFrameTooLarge) {
			return err
		}
		// Tell the caller instead of leaving it waiting.
		tooLarge, _ := c.Encode(message.Failure(device.Errorf(device.KindInternal, "%s: %v", req.Operation, err)))
		return protocol.EncodeLimit(conn, &replyHeader, tooLarge, svr.maxBody)
	}
	return nil
}

// businessHandler is the innermost handler: it executes the request against
// the dispatch table.
func (svr *Server) businessHandler(ctx context.Context, req *message.Request) *message.Response {
	if !svr.table.Has(req.Operation) {
		log.Warningf("client asked for undeclared operation %q", req.Operation)
	}
	result, err := svr.table.Call(req)
	if err != nil {
		return message.Failure(err)
	}
	resp, err := message.OK(result)
	if err != nil {
		return message.Failure(device.Errorf(device.KindInternal, "encode result of %s: %v", req.Operation, err))
	}
	return resp
}

// stop deregisters from the registry and closes the listener, once.
func (svr *Server) stop() {
	svr.stopOnce.Do(func() {
		svr.connMu.Lock()
		defer svr.connMu.Unlock()
		if svr.registry != nil && svr.listener != nil {
			if err := svr.registry.Deregister(svr.device, svr.advertiseAddr); err != nil {
				log.Warningf("could not deregister %s: %s", svr.advertiseAddr, err)
			}
		}
		svr.shutdown.Store(true)
		if svr.listener != nil {
			svr.listener.Close()
		}
	})
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry so clients stop resolving this server
//  2. Close the listener
//  3. Wait for in-flight requests to finish (with timeout)
//  4. Close the remaining connections
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.stop()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	svr.connMu.Lock()
	for conn := range svr.conns {
		conn.Close()
	}
	svr.connMu.Unlock()
	return err
}
