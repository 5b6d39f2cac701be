package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	pkgerrors "github.com/pkg/errors"
)

const exitGrace = 2 * time.Second

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// Process talks lines to a subprocess over its stdin/stdout, the way
// `nc host port` is driven from a script.
type Process struct {
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      io.ReadCloser
	codec       *lineCodec
	readTimeout time.Duration

	stderrMu sync.Mutex
	stderr   bytes.Buffer
}

// StartExec splits command with shell quoting rules and starts it.
func StartExec(ctx context.Context, command string, readTimeout time.Duration) (*Process, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse exec command")
	}
	if len(args) == 0 {
		return nil, errors.New("empty exec command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	p := &Process{cmd: cmd, readTimeout: readTimeout}
	cmd.Stderr = &lockedWriter{mu: &p.stderrMu, w: &p.stderr}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "get exec stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "get exec stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, pkgerrors.Wrapf(err, "start %s", args[0])
	}

	p.stdin = stdin
	p.stdout = stdout
	p.codec = newLineCodec(stdout, stdin)
	return p, nil
}

func (p *Process) SendLine(line string) error {
	if err := p.codec.writeLine(line); err != nil {
		return pkgerrors.Wrap(err, "write line")
	}
	return nil
}

// ReadLine applies the read timeout when the stdout pipe supports deadlines.
func (p *Process) ReadLine() (string, error) {
	if dr, ok := p.stdout.(deadlineReader); ok && p.readTimeout > 0 {
		_ = dr.SetReadDeadline(time.Now().Add(p.readTimeout))
	}
	line, err := p.codec.readLine()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", pkgerrors.Wrapf(ErrReadTimeout, "after %s", p.readTimeout)
		}
		if stderr := p.Stderr(); stderr != "" {
			return "", pkgerrors.Wrapf(err, "read line (stderr: %s)", stderr)
		}
		return "", pkgerrors.Wrap(err, "read line")
	}
	return line, nil
}

// Close shuts stdin, gives the process a short grace period to exit and
// kills it otherwise.
func (p *Process) Close() error {
	if !p.codec.markClosed() {
		return nil
	}
	_ = p.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	select {
	case err := <-done:
		return exitError(err)
	case <-time.After(exitGrace):
		_ = p.cmd.Process.Kill()
		<-done
		return nil
	}
}

func (p *Process) Stderr() string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()
	return strings.TrimSpace(p.stderr.String())
}

// exitError ignores non-zero exits; the peer closing the session is normal.
func exitError(err error) error {
	var ee *exec.ExitError
	if err == nil || errors.As(err, &ee) {
		return nil
	}
	return err
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}
