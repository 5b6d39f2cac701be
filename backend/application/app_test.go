package application

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"wildprobe/backend/config"
	"wildprobe/backend/probe"
)

func TestGenerateConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	app, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if !fileExist(path) {
		t.Fatalf("expected %s to be generated", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var written config.Config
	if err := yaml.Unmarshal(data, &written); err != nil {
		t.Fatalf("generated config does not parse: %v", err)
	}
	if written.Probe.Template != probe.DefaultTemplate {
		t.Fatalf("expected default template, got %q", written.Probe.Template)
	}
	if app.Config.Target.ReadTimeout != 10*time.Second {
		t.Fatalf("expected 10s read timeout, got %s", app.Config.Target.ReadTimeout)
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "version: " + Version + "\ntarget:\n  host: 10.0.0.7\n  readtimeout: 0s\nprobe:\n  alphabet: xyz\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	app, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	c := app.Config
	if c.Target.Host != "10.0.0.7" {
		t.Fatalf("expected host override, got %q", c.Target.Host)
	}
	if c.Target.Port != 45040 {
		t.Fatalf("expected default port, got %d", c.Target.Port)
	}
	if c.Target.ReadTimeout != 0 {
		t.Fatalf("explicit zero read timeout was replaced by %s", c.Target.ReadTimeout)
	}
	if c.Probe.Interval != 100*time.Millisecond {
		t.Fatalf("expected default interval, got %s", c.Probe.Interval)
	}
	params, err := app.Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if params.Alphabet.Len() != 3 {
		t.Fatalf("expected 3 candidates, got %d", params.Alphabet.Len())
	}
}

func TestLoadConfigBumpsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: 0.9.0\nprobe:\n  template: \"\"\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	app, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if app.Config.Version != Version {
		t.Fatalf("expected version %s, got %s", Version, app.Config.Version)
	}
	if app.Config.Probe.Template != probe.DefaultTemplate {
		t.Fatalf("empty template should fall back to default, got %q", app.Config.Probe.Template)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "version: "+Version) {
		t.Fatalf("config file was not rewritten:\n%s", data)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("target: [unclosed\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := NewApp(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTransformIniConfig(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "config.ini")
	content := "Version = 1.0.0\n\n[Target]\nhost = 192.168.1.9\nport = 7000\n\n[Probe]\ninterval = 250ms\n"
	if err := os.WriteFile(legacy, []byte(content), 0644); err != nil {
		t.Fatalf("write ini: %v", err)
	}
	app, err := NewApp(legacy)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if fileExist(legacy) {
		t.Fatalf("legacy ini should be removed")
	}
	if app.ConfigFile != filepath.Join(dir, "config.yaml") {
		t.Fatalf("unexpected config file %s", app.ConfigFile)
	}
	if app.Config.Target.Host != "192.168.1.9" || app.Config.Target.Port != 7000 {
		t.Fatalf("target not migrated: %+v", app.Config.Target)
	}
	if app.Config.Probe.Interval != 250*time.Millisecond {
		t.Fatalf("interval not migrated: %s", app.Config.Probe.Interval)
	}
	if app.Config.Version != Version {
		t.Fatalf("expected version bump to %s, got %s", Version, app.Config.Version)
	}
}

func TestApplyOverrides(t *testing.T) {
	app, err := NewApp("")
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	interval := time.Duration(0)
	timeout := 3 * time.Second
	app.ApplyOverrides(Overrides{
		Host:     "example.org",
		Port:     9000,
		Interval: &interval,
		Timeout:  &timeout,
		Template: "flag{@}",
		Output:   "jsonl",
		Debug:    true,
	})
	c := app.Config
	if c.Target.Host != "example.org" || c.Target.Port != 9000 {
		t.Fatalf("target overrides not applied: %+v", c.Target)
	}
	if c.Probe.Interval != 0 || c.Target.ReadTimeout != timeout {
		t.Fatalf("duration overrides not applied: %+v %+v", c.Probe, c.Target)
	}
	if c.Output.Format != "jsonl" {
		t.Fatalf("output override not applied: %q", c.Output.Format)
	}
	if app.Logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("debug override not applied")
	}
	// "flag{@}" has no <slot> placeholder
	if _, err := app.Params(); err == nil {
		t.Fatalf("expected template error")
	}
}

func TestOpenerPrefersExec(t *testing.T) {
	app, _ := NewApp("")
	app.Config.Target.Exec = "cat"
	tr, err := app.Opener()(context.Background())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer tr.Close()
	if err := tr.SendLine("ping"); err != nil {
		t.Fatalf("SendLine failed: %v", err)
	}
	line, err := tr.ReadLine()
	if err != nil || line != "ping" {
		t.Fatalf("expected echo, got %q, %v", line, err)
	}
}

func TestOpenerDialFailureIsUntypedNil(t *testing.T) {
	app, _ := NewApp("")
	app.Config.Target.Host = ""
	tr, err := app.Opener()(context.Background())
	if err == nil {
		t.Fatalf("expected dial error")
	}
	if tr != nil {
		t.Fatalf("expected nil transport, got %#v", tr)
	}
}

// serveReplies answers every line it reads with the next reply, looping.
func serveReplies(t *testing.T, replies ...string) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for i := 0; ; i++ {
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			if _, err := conn.Write([]byte(replies[i%len(replies)] + "\n")); err != nil {
				return
			}
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestRunEndToEnd(t *testing.T) {
	host, port := serveReplies(t, "1 characters matched")
	app, _ := NewApp("")
	app.Config.Target.Host = host
	app.Config.Target.Port = port
	app.Config.Probe.Interval = 0
	app.Config.Probe.Alphabet = "ab"

	var out bytes.Buffer
	summary, err := app.Run(context.Background(), &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := "Attempt: wildcat{a}\nResponse: 1 characters matched\n"
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
	if summary.Sent != 2 || summary.Received != 2 || summary.Observations != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRunJSONLines(t *testing.T) {
	host, port := serveReplies(t, "1 characters matched", "2 characters matched")
	app, _ := NewApp("")
	app.Config.Target.Host = host
	app.Config.Target.Port = port
	app.Config.Probe.Interval = 0
	app.Config.Probe.Alphabet = "abc"
	app.Config.Output.Format = "jsonl"

	var out bytes.Buffer
	summary, err := app.Run(context.Background(), &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || summary.Observations != 3 {
		t.Fatalf("expected three observations, got %q", out.String())
	}
	if !strings.Contains(lines[1], `"candidate":"b"`) || !strings.Contains(lines[1], `"count":2`) {
		t.Fatalf("unexpected second line %s", lines[1])
	}
}

func TestRunUnknownFormat(t *testing.T) {
	app, _ := NewApp("")
	var logs bytes.Buffer
	app.Logger.SetOutput(&logs)
	app.Config.Output.Format = "xml"
	if _, err := app.Run(context.Background(), &bytes.Buffer{}); err == nil {
		t.Fatalf("expected format error")
	}
	if !strings.Contains(logs.String(), "unknown output format") {
		t.Fatalf("format error was not logged: %q", logs.String())
	}
}

func TestRunLogsInvalidSettings(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Application)
		want   string
	}{
		{name: "template", modify: func(a *Application) { a.Config.Probe.Template = "flag{@}" }, want: "invalid payload template"},
		{name: "alphabet", modify: func(a *Application) { a.Config.Probe.Alphabet = "a\nb" }, want: "line break"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app, _ := NewApp("")
			var logs bytes.Buffer
			app.Logger.SetOutput(&logs)
			tc.modify(app)

			_, err := app.Run(context.Background(), &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
			if !strings.Contains(logs.String(), tc.want) {
				t.Fatalf("error was not logged: %q", logs.String())
			}
		})
	}
}

func TestRunCancelWhilePeerIsSilent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	app, _ := NewApp("")
	app.Logger.SetOutput(&bytes.Buffer{})
	app.Config.Target.Host = "127.0.0.1"
	app.Config.Target.Port = ln.Addr().(*net.TCPAddr).Port
	app.Config.Target.ReadTimeout = 0
	app.Config.Probe.Interval = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		_, err := app.Run(ctx, &bytes.Buffer{})
		errCh <- err
	}()

	var peer net.Conn
	select {
	case peer = <-accepted:
		defer peer.Close()
	case <-time.After(2 * time.Second):
		t.Fatalf("no connection")
	}
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run still blocked after cancel")
	}

	// the client side was closed, so the peer sees EOF after the payload
	_ = peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadAll(peer); err != nil {
		t.Fatalf("expected peer to see the connection closed, got %v", err)
	}
}

func TestRunOpenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	app, _ := NewApp("")
	app.Config.Target.Host = "127.0.0.1"
	app.Config.Target.Port = port
	var out bytes.Buffer
	if _, err := app.Run(context.Background(), &out); err == nil {
		t.Fatalf("expected connection error")
	}
	if out.Len() != 0 {
		t.Fatalf("nothing should be written, got %q", out.String())
	}
}
