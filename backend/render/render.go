// Package render writes observations for people (text) or tools (JSON lines).
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"wildprobe/backend/probe"
)

const (
	FormatText  = "text"
	FormatJSONL = "jsonl"
)

type Writer interface {
	Write(obs probe.Observation) error
}

func New(format string, w io.Writer, runID int64) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return &Text{w: w}, nil
	case FormatJSONL, "json":
		return &JSONLines{enc: json.NewEncoder(w), runID: runID}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// Text prints the attempted payload and the raw response on two lines.
type Text struct {
	w io.Writer
}

func (t *Text) Write(obs probe.Observation) error {
	_, err := fmt.Fprintf(t.w, "Attempt: %s\nResponse: %s\n", obs.Payload, obs.Response)
	return err
}

type jsonLine struct {
	RunID int64 `json:"runId"`
	probe.Observation
}

type JSONLines struct {
	enc   *json.Encoder
	runID int64
}

func (j *JSONLines) Write(obs probe.Observation) error {
	return j.enc.Encode(jsonLine{RunID: j.runID, Observation: obs})
}
