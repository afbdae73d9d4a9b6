package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"temctl/client"
	"temctl/config"
	"temctl/device"
	"temctl/dispatch"
	"temctl/middleware"
	"temctl/registry"
	"temctl/server"
	"temctl/supervisor"
	"temctl/trace"
	"temctl/transport"
)

var log = commonlog.GetLogger("temctl")

const usage = `Usage: temctl [--config PATH] <command> [arguments]

Commands:
  serve        run the server for the configured device
  call         call an operation and print its JSON result
               call <operation> [json-arg ...] [name=json ...]
  ops          list the operations of the configured device
  trace        sample a getter periodically
               trace <getter> [--interval D] [--count N] [--db PATH]
  kill         stop a running server
  version      print the version
`

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("temctl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := flags.String("config", "", "configuration file (default $"+config.EnvPath+")")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}
	command, rest := flags.Arg(0), flags.Args()[1:]

	if command == "version" {
		fmt.Fprintf(stdout, "temctl version %s\n", Version)
		return 0
	}

	path := config.ResolvePath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "temctl: %s\n", err)
		return 1
	}
	configureLogging(cfg.Log)
	if path != "" {
		// a server started on demand reads the same file
		cfg.Supervisor.Args = append([]string{"--config", path}, cfg.Supervisor.Args...)
	}

	switch command {
	case "serve":
		err = serve(ctx, cfg)
	case "call":
		err = call(ctx, cfg, rest, stdout)
	case "ops":
		err = listOperations(cfg, stdout)
	case "trace":
		err = traceGetter(ctx, cfg, rest, stdout, stderr)
	case "kill":
		err = kill(ctx, cfg, stdout)
	default:
		fmt.Fprintf(stderr, "temctl: unknown command %q\n", command)
		flags.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "temctl: %s\n", err)
		return 1
	}
	return 0
}

var logOnce sync.Once

// configureLogging applies the log settings of the first command run in this
// process only.
func configureLogging(cfg config.LogConfig) {
	logOnce.Do(func() {
		if cfg.File != "" {
			file := cfg.File
			commonlog.Configure(cfg.Verbosity, &file)
			return
		}
		commonlog.Configure(cfg.Verbosity, nil)
	})
}

func serve(ctx context.Context, cfg config.Config) error {
	dev, err := device.New(cfg.Device, cfg)
	if err != nil {
		return err
	}
	defer dev.ReleaseConnection()

	table, err := dispatch.New(dev)
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithMaxMessageSize(cfg.Server.MaxMessageSize)}
	if cfg.Registry.Enabled() {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints)
		if err != nil {
			return fmt.Errorf("registry: %w", err)
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, cfg.Server.Advertise, cfg.Registry.TTL))
	}

	svr := server.NewServer(cfg.Device, table, opts...)
	svr.Use(middleware.LoggingMiddleware())
	if cfg.Server.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.RateBurst))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- svr.Serve("tcp", cfg.Server.Addr()) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Notice("shutting down")
		if err := svr.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
			log.Warningf("%s", err)
		}
		return <-errCh
	}
}

// parseCallArgs splits command-line arguments into positional and keyword
// arguments. name=value is a keyword argument when name is a parameter of the
// operation. Values are JSON; anything that is not valid JSON is a string.
func parseCallArgs(op device.Operation, args []string) ([]any, map[string]any) {
	var positional []any
	var kwargs map[string]any
	for _, arg := range args {
		if name, value, ok := strings.Cut(arg, "="); ok && isParam(op, name) {
			if kwargs == nil {
				kwargs = make(map[string]any)
			}
			kwargs[name] = jsonOrString(value)
			continue
		}
		positional = append(positional, jsonOrString(arg))
	}
	return positional, kwargs
}

func isParam(op device.Operation, name string) bool {
	for _, p := range op.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func jsonOrString(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func call(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("call: operation name required")
	}
	op, ok := device.LookupOperation(args[0])
	if !ok {
		return device.Errorf(device.KindUnknownOperation, "%s has no operation %q", cfg.Device, args[0])
	}
	positional, kwargs := parseCallArgs(op, args[1:])

	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.CallKw(op.Name, positional, kwargs)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(result))
	return nil
}

func listOperations(cfg config.Config, stdout io.Writer) error {
	ops, err := device.OperationsOf(cfg.Device)
	if err != nil {
		return err
	}
	for _, op := range ops {
		params := make([]string, 0, len(op.Params))
		for _, p := range op.Params {
			if p.Optional {
				def, _ := json.Marshal(p.Default)
				params = append(params, fmt.Sprintf("%s=%s", p.Name, def))
			} else {
				params = append(params, p.Name)
			}
		}
		fmt.Fprintf(stdout, "%s(%s)\n", op.Name, strings.Join(params, ", "))
	}
	return nil
}

func traceGetter(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("trace", flag.ContinueOnError)
	flags.SetOutput(stderr)
	interval := flags.Duration("interval", time.Second, "time between samples")
	count := flags.Int("count", 10, "number of samples, 0 to trace until interrupted")
	dbPath := flags.String("db", "", "also store samples in this SQLite database")

	if len(args) == 0 {
		return errors.New("trace: getter name required")
	}
	getter := args[0]
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}
	op, ok := device.LookupOperation(getter)
	if !ok || len(op.Params) > 0 {
		return fmt.Errorf("trace: %q is not an operation without arguments", getter)
	}

	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	tr := &trace.Tracer{
		Name:     getter,
		Interval: *interval,
		Func: func() (any, error) {
			raw, err := c.Call(getter)
			if err != nil {
				return nil, err
			}
			var v any
			err = json.Unmarshal(raw, &v)
			return v, err
		},
	}
	if *dbPath != "" {
		sink, err := trace.OpenSQLiteSink(*dbPath)
		if err != nil {
			return err
		}
		defer sink.Close()
		tr.Sink = sink
	}

	if err := tr.Start(); err != nil {
		return err
	}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
wait:
	for *count == 0 || len(tr.Samples()) < *count {
		select {
		case <-ctx.Done():
			break wait
		case <-ticker.C:
		}
	}

	samples := tr.Stop()
	if *count > 0 && len(samples) > *count {
		samples = samples[:*count]
	}
	enc := json.NewEncoder(stdout)
	for _, s := range samples {
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return nil
}

// kill stops a running server without starting one.
func kill(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	addr := client.ResolveAddr(cfg)
	dialer := net.Dialer{Timeout: cfg.Supervisor.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if supervisor.IsRefused(err) {
		fmt.Fprintf(stdout, "no server running at %s\n", addr)
		return nil
	}
	if err != nil {
		return err
	}

	c, err := client.NewClient(cfg.Device, client.ConnectorFunc(func(context.Context) (net.Conn, error) {
		return conn, nil
	}), transport.Options{})
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if err := c.Kill(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "stopped server at %s\n", addr)
	return nil
}
