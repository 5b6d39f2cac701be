package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRunReportsInvalidTemplate(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), arguments{Template: "flag{@}"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "invalid payload template") {
		t.Fatalf("expected template error on stderr, got %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("nothing should be printed on stdout, got %q", stdout.String())
	}
}

func TestRunReportsUnknownOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), arguments{Output: "xml"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), `unknown output format "xml"`) {
		t.Fatalf("expected format error on stderr, got %q", stderr.String())
	}
}
