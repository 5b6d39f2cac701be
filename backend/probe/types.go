package probe

import (
	"context"
	"fmt"
)

// Observation is emitted whenever the remote match count differs from the
// previously observed one.
type Observation struct {
	Index     int    `json:"index"`
	Candidate string `json:"candidate"`
	Payload   string `json:"payload"`
	Response  string `json:"response"`
	Count     int    `json:"count"`
}

// Summary describes a finished (or aborted) probe run.
type Summary struct {
	Planned      int   `json:"planned"`
	Sent         int   `json:"sent"`
	Received     int   `json:"received"`
	Misses       int   `json:"misses"`
	Observations int   `json:"observations"`
	LastCount    int   `json:"lastCount"`
	HasCount     bool  `json:"hasCount"`
	Err          error `json:"-"`
}

// Transport is a line-oriented connection to the remote service.
type Transport interface {
	SendLine(line string) error
	ReadLine() (string, error)
	Close() error
}

// Opener acquires the Transport used for a whole run.
type Opener func(ctx context.Context) (Transport, error)

// TransportError wraps any send/receive failure. It always ends the run.
type TransportError struct {
	Op        string
	Candidate string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s candidate %q: %v", e.Op, e.Candidate, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
