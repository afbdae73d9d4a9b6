// Package supervisor makes sure a server is listening before a client
// connects. When the first dial is refused it launches the server as a
// background process, then redials at a fixed interval until the server
// answers or the attempt budget runs out. Every process it launched is killed
// when the supervisor is closed.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/tliron/commonlog"

	"temctl/config"
)

var log = commonlog.GetLogger("temctl.supervisor")

// ErrTimeout is returned when the server did not come up within the attempt budget.
var ErrTimeout = errors.New("timed out waiting for server")

// Process is a launched server.
type Process interface {
	Kill() error
}

// Dialer opens a connection to addr.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// Starter launches the server process.
type Starter func() (Process, error)

// Supervisor connects to one server address.
type Supervisor struct {
	addr  string
	cfg   config.SupervisorConfig
	dial  Dialer
	start Starter
	sleep func(time.Duration)

	mu    sync.Mutex
	procs []Process
}

// Option customizes a supervisor.
type Option func(*Supervisor)

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(s *Supervisor) { s.dial = d }
}

// WithStarter replaces the process launcher.
func WithStarter(st Starter) Option {
	return func(s *Supervisor) { s.start = st }
}

// WithSleep replaces time.Sleep between attempts.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Supervisor) { s.sleep = sleep }
}

// New creates a supervisor for the server at addr. By default it launches
// cfg.Executable (or the running executable) with cfg.Args.
func New(addr string, cfg config.SupervisorConfig, opts ...Option) *Supervisor {
	s := &Supervisor{
		addr:  addr,
		cfg:   cfg,
		sleep: time.Sleep,
	}
	s.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: cfg.DialTimeout}
		return d.DialContext(ctx, "tcp", addr)
	}
	s.start = s.execServer
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the server address.
func (s *Supervisor) Addr() string {
	return s.addr
}

// IsRefused reports whether err means nothing listens at the address.
func IsRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// Connect dials the server, launching it first if the dial is refused. Any
// other dial error is returned as is.
func (s *Supervisor) Connect(ctx context.Context) (net.Conn, error) {
	conn, err := s.dial(ctx, s.addr)
	if err == nil {
		return conn, nil
	}
	if !IsRefused(err) {
		return nil, fmt.Errorf("dial %s: %w", s.addr, err)
	}

	log.Infof("no server at %s, starting one", s.addr)
	proc, err := s.start()
	if err != nil {
		return nil, fmt.Errorf("start server: %w", err)
	}
	s.mu.Lock()
	s.procs = append(s.procs, proc)
	s.mu.Unlock()

	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.sleep(s.cfg.Interval)

		conn, err = s.dial(ctx, s.addr)
		if err == nil {
			log.Infof("connected to %s after %d attempts", s.addr, attempt)
			return conn, nil
		}
		if s.waiting(attempt) {
			log.Noticef("waiting for the server at %s to come up...", s.addr)
		}
		log.Debugf("attempt %d/%d: %s", attempt, s.cfg.Attempts, err)
	}
	return nil, fmt.Errorf("%w at %s after %d attempts", ErrTimeout, s.addr, s.cfg.Attempts)
}

// waiting reports whether the waiting notice is due after a failed attempt.
func (s *Supervisor) waiting(attempt int) bool {
	return attempt >= s.cfg.QuietAttempts
}

// Close kills every process the supervisor launched.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	procs := s.procs
	s.procs = nil
	s.mu.Unlock()

	var errs []error
	for _, p := range procs {
		if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Launched returns how many processes are waiting to be killed.
func (s *Supervisor) Launched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

// execServer launches the server detached from our standard streams. A nil
// Stdout/Stderr on exec.Cmd discards the child's output.
func (s *Supervisor) execServer() (Process, error) {
	executable := s.cfg.Executable
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, err
		}
		executable = self
	}

	cmd := exec.Command(executable, s.cfg.Args...)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	log.Infof("started %s %v as pid %d", executable, s.cfg.Args, cmd.Process.Pid)

	// Reap the child whenever it exits.
	go func() {
		err := cmd.Wait()
		log.Debugf("server pid %d exited: %v", cmd.Process.Pid, err)
	}()
	return execProcess{cmd: cmd}, nil
}
