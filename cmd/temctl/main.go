// Command temctl serves a microscope over TCP and talks to it.
//
//	temctl [--config PATH] serve
//	temctl [--config PATH] call <operation> [json-arg ...] [name=json ...]
//	temctl [--config PATH] ops
//	temctl [--config PATH] trace <getter> [--interval D] [--count N] [--db PATH]
//	temctl [--config PATH] kill
//	temctl version
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/tliron/commonlog/simple"

	"temctl/exithook"
	_ "temctl/simulate"
)

// Version will be set during the build process using ldflags
var Version = "(dev) v0.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if n := exithook.Len(); n > 0 {
		log.Debugf("running %d exit hooks", n)
	}
	exithook.Run()
	os.Exit(code)
}
