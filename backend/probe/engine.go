package probe

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Params configures one probe run. Zero fields fall back to the defaults
// when passed through WithDefaults.
type Params struct {
	Alphabet Alphabet
	Template Template
	Parser   *CountParser
	Interval time.Duration
}

// WithDefaults returns a copy where unset fields carry the default alphabet,
// template and phrase.
func (p Params) WithDefaults() Params {
	cp := p
	if cp.Alphabet.Len() == 0 {
		cp.Alphabet = DefaultAlphabet()
	}
	if cp.Template.String() == "" {
		cp.Template = MustParseTemplate(DefaultTemplate, DefaultPlaceholder)
	}
	if cp.Parser == nil {
		cp.Parser, _ = NewCountParser(DefaultPhrase)
	}
	if cp.Interval < 0 {
		cp.Interval = 0
	}
	return cp
}

// Engine drives candidates through a single Transport, one at a time.
type Engine struct {
	open   Opener
	logger logrus.FieldLogger
}

func NewEngine(open Opener, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = quietLogger()
	}
	return &Engine{open: open, logger: logger}
}

// Run acquires the Transport and starts probing. Observations stream on the
// first channel in alphabet order; the second channel delivers exactly one
// Summary after the Transport has been released. Cancelling ctx closes the
// Transport right away, interrupting a pending read. The observation channel is
// unbuffered, so probing only advances as fast as the caller consumes.
func (e *Engine) Run(ctx context.Context, params Params) (<-chan Observation, <-chan Summary, error) {
	if e.open == nil {
		return nil, nil, errors.New("no transport configured")
	}
	params = params.WithDefaults()

	t, err := e.open(ctx)
	if err != nil {
		return nil, nil, &TransportError{Op: "open", Err: err}
	}

	observations := make(chan Observation)
	done := make(chan Summary, 1)

	go func() {
		defer close(done)
		defer close(observations)

		emit := func(obs Observation) error {
			select {
			case observations <- obs:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var once sync.Once
		release := func() {
			once.Do(func() {
				if cerr := t.Close(); cerr != nil {
					e.logger.WithError(cerr).Warn("transport close failed")
				}
			})
		}
		// a blocked read only returns once the transport is closed
		stop := context.AfterFunc(ctx, release)

		summary, loopErr := Probe(ctx, t, params, e.logger, emit)
		stop()
		release()
		summary.Err = loopErr
		done <- summary
	}()

	return observations, done, nil
}

// Probe runs the loop on an already acquired Transport. It never closes t.
// emit is called once per observation; a non-nil return stops the loop.
func Probe(ctx context.Context, t Transport, params Params, logger logrus.FieldLogger, emit func(Observation) error) (Summary, error) {
	params = params.WithDefaults()
	if logger == nil {
		logger = quietLogger()
	}
	pacer := NewPacer(params.Interval)

	summary := Summary{Planned: params.Alphabet.Len()}
	var (
		previous int
		seen     bool
	)

	for i := 0; i < params.Alphabet.Len(); i++ {
		candidate := params.Alphabet.At(i)
		if err := pacer.Wait(ctx); err != nil {
			return summary, err
		}

		payload := params.Template.Render(candidate)
		if err := t.SendLine(payload); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			return summary, &TransportError{Op: "send", Candidate: candidate, Err: err}
		}
		summary.Sent++

		line, err := t.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			return summary, &TransportError{Op: "read", Candidate: candidate, Err: err}
		}
		summary.Received++
		response := strings.TrimSpace(line)

		count, ok := params.Parser.Parse(response)
		if !ok {
			summary.Misses++
			logger.WithField("candidate", candidate).Debug("no match count in response")
			continue
		}
		if seen && count == previous {
			continue
		}
		previous, seen = count, true
		summary.Observations++
		summary.LastCount, summary.HasCount = count, true

		logger.WithFields(logrus.Fields{
			"candidate": candidate,
			"count":     count,
		}).Debug("match count changed")

		obs := Observation{
			Index:     i + 1,
			Candidate: candidate,
			Payload:   payload,
			Response:  response,
			Count:     count,
		}
		if err := emit(obs); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
