// Package client is the remote proxy for a microscope served by temctl.
//
// A Client knows the declared operation set of its device type without
// talking to the network, so undeclared names fail immediately. Declared
// calls are forwarded over a single connection, established lazily through a
// Connector (usually a supervisor that starts the server on demand), and
// errors raised by the device come back with their original kind.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/tliron/commonlog"

	"temctl/codec"
	"temctl/config"
	"temctl/device"
	"temctl/exithook"
	"temctl/message"
	"temctl/registry"
	"temctl/supervisor"
	"temctl/transport"
)

var log = commonlog.GetLogger("temctl.client")

var (
	ErrConnection       = transport.ErrConnection
	ErrTimeout          = supervisor.ErrTimeout
	ErrUnknownOperation = device.ErrUnknownOperation
)

// Connector opens the connection to the server.
type Connector interface {
	Connect(ctx context.Context) (net.Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (net.Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context) (net.Conn, error) { return f(ctx) }

type Client struct {
	device    string
	ops       map[string]device.Operation
	connector Connector
	opts      transport.Options

	mu sync.Mutex
	t  *transport.ClientTransport

	closers    []func() error // run by Close after the connection
	removeHook func()
}

// NewClient creates a client for the named device type. No connection is
// made until the first call.
func NewClient(deviceName string, connector Connector, opts transport.Options) (*Client, error) {
	ops, err := device.OperationsOf(deviceName)
	if err != nil {
		return nil, err
	}
	c := &Client{
		device:    deviceName,
		ops:       make(map[string]device.Operation, len(ops)),
		connector: connector,
		opts:      opts,
	}
	for _, op := range ops {
		c.ops[op.Name] = op
	}
	c.removeHook = exithook.Register("close "+deviceName+" client", func() { c.closeConn() })
	return c, nil
}

// Dial builds a client from configuration and connects it. The server
// address is resolved through the registry when one is configured, and the
// server is started on demand through a supervisor, which is killed when the
// client is closed or the process exits.
func Dial(ctx context.Context, cfg config.Config) (*Client, error) {
	ct, err := codec.ParseType(cfg.Server.Codec)
	if err != nil {
		return nil, err
	}

	addr := ResolveAddr(cfg)
	sup := supervisor.New(addr, cfg.Supervisor)
	removeKill := exithook.Register("kill servers started for "+cfg.Device, func() { sup.Close() })

	c, err := NewClient(cfg.Device, sup, transport.Options{
		Codec:             ct,
		MaxMessageSize:    cfg.Server.MaxMessageSize,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
	})
	if err != nil {
		removeKill()
		return nil, err
	}
	c.closers = append(c.closers, func() error {
		removeKill()
		return sup.Close()
	})

	if err := c.Connect(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Open returns the configured microscope, either in process or, when
// useServer is set, as a remote proxy from Dial. Both implement
// device.Microscope, so callers need not know which one they hold.
func Open(ctx context.Context, cfg config.Config, useServer bool) (device.Microscope, error) {
	if !useServer {
		return device.New(cfg.Device, cfg)
	}
	c, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveAddr returns the most recently advertised server for the configured
// device, or the configured host and port.
func ResolveAddr(cfg config.Config) string {
	if !cfg.Registry.Enabled() {
		return cfg.Server.Addr()
	}
	reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints)
	if err != nil {
		log.Warningf("registry unavailable, using %s: %s", cfg.Server.Addr(), err)
		return cfg.Server.Addr()
	}
	defer reg.Close()

	instances, err := reg.Discover(cfg.Device)
	if err != nil || len(instances) == 0 {
		log.Infof("no %s server advertised, using %s", cfg.Device, cfg.Server.Addr())
		return cfg.Server.Addr()
	}
	log.Infof("resolved %s server at %s", cfg.Device, instances[0].Addr)
	return instances[0].Addr
}

// Device returns the device type name.
func (c *Client) Device() string {
	return c.device
}

// Has reports whether name is a declared operation.
func (c *Client) Has(name string) bool {
	_, ok := c.ops[name]
	return ok
}

// Connect establishes the connection if there is no live one.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.transportLocked(ctx)
	return err
}

func (c *Client) transportLocked(ctx context.Context) (*transport.ClientTransport, error) {
	if c.t != nil && c.t.Err() == nil {
		return c.t, nil
	}
	conn, err := c.connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	log.Infof("connected to %s server at %s", c.device, conn.RemoteAddr())
	c.t = transport.NewClientTransport(conn, c.opts)
	return c.t, nil
}

// Call forwards a call with positional arguments and returns the raw result.
func (c *Client) Call(operation string, args ...any) (json.RawMessage, error) {
	return c.CallKw(operation, args, nil)
}

// CallKw forwards a call with positional and keyword arguments.
func (c *Client) CallKw(operation string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	if !c.Has(operation) {
		return nil, device.Errorf(device.KindUnknownOperation, "%s has no operation %q", c.device, operation)
	}
	req, err := message.NewRequest(operation, args, kwargs)
	if err != nil {
		return nil, device.Errorf(device.KindType, "%v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.transportLocked(context.Background())
	if err != nil {
		return nil, err
	}
	resp, err := t.Call(req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// callInto forwards a call and decodes its result into v.
func (c *Client) callInto(v any, operation string, args ...any) error {
	raw, err := c.Call(operation, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: result of %s: %v", ErrConnection, operation, err)
	}
	return nil
}

// Kill asks the server to stop and closes the connection.
func (c *Client) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.transportLocked(context.Background())
	if err != nil {
		return err
	}
	err = t.SendControl(message.ControlKill)
	t.Close()
	c.t = nil
	return err
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t != nil {
		c.t.Close()
		c.t = nil
	}
}

// Close closes the connection, then kills any server started for this client.
func (c *Client) Close() error {
	c.closeConn()
	if c.removeHook != nil {
		c.removeHook()
	}
	var err error
	for _, closer := range c.closers {
		if e := closer(); e != nil && err == nil {
			err = e
		}
	}
	c.closers = nil
	return err
}
