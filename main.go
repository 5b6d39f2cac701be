package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"wildprobe/backend/application"
)

type arguments struct {
	Config   string         `arg:"-c" help:"config file; generated with defaults when missing, a .ini file is migrated to yaml" placeholder:"FILE"`
	Host     string         `arg:"-H" help:"target host"`
	Port     int            `arg:"-p" help:"target port"`
	Exec     string         `arg:"-e" help:"run a command (e.g. \"nc host port\") instead of dialing" placeholder:"COMMAND"`
	Interval *time.Duration `arg:"-i" help:"pause between payloads (e.g. 100ms)"`
	Timeout  *time.Duration `arg:"-t" help:"wait for one response line, 0 waits forever"`
	Template string         `arg:"-T" help:"payload template containing the placeholder once (default wildcat{<slot>})"`
	Alphabet string         `arg:"-a" help:"candidates to probe, one per character"`
	Output   string         `arg:"-o" help:"output format (text or jsonl)" placeholder:"FORMAT"`
	Debug    bool           `arg:"-d" help:"log every request and response"`
}

func (arguments) Version() string {
	return "wildprobe v" + application.Version
}

func (arguments) Description() string {
	return "wildprobe sends one wildcard payload per candidate to a line-oriented service and reports every change in its match count"
}

func main() {
	var args arguments
	arg.MustParse(&args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run returns the process exit code. Failures are reported on stderr.
func run(ctx context.Context, args arguments, stdout, stderr io.Writer) int {
	app, err := application.NewApp(args.Config)
	if err != nil {
		fmt.Fprintf(stderr, "wildprobe: %v\n", err)
		return 1
	}
	app.ApplyOverrides(application.Overrides{
		Host:     args.Host,
		Port:     args.Port,
		Exec:     args.Exec,
		Interval: args.Interval,
		Timeout:  args.Timeout,
		Template: args.Template,
		Alphabet: args.Alphabet,
		Output:   args.Output,
		Debug:    args.Debug,
	})

	if _, err := app.Run(ctx, stdout); err != nil {
		fmt.Fprintf(stderr, "wildprobe: %v\n", err)
		return 1
	}
	return 0
}
