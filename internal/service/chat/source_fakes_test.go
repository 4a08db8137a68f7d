package chat_test

import (
	"context"
	"errors"
)

var errUpstream = errors.New("upstream exploded")

// scriptedSource delivers its chunks immediately and then returns err.
type scriptedSource struct {
	chunks []string
	err    error
	calls  int
}

func (s *scriptedSource) Stream(_ context.Context, _ string, onChunk func(string) error) error {
	s.calls++
	for _, c := range s.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return s.err
}

// gatedSource delivers its chunks, then blocks until release is closed.
type gatedSource struct {
	started chan string
	release chan struct{}
	chunks  []string
	err     error
	onChunk func(string) error
}

func newGatedSource(chunks []string, err error) *gatedSource {
	return &gatedSource{
		started: make(chan string, 8),
		release: make(chan struct{}),
		chunks:  chunks,
		err:     err,
	}
}

func (s *gatedSource) Stream(ctx context.Context, prompt string, onChunk func(string) error) error {
	s.onChunk = onChunk
	for _, c := range s.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	s.started <- prompt
	select {
	case <-s.release:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type panickingSource struct{}

func (panickingSource) Stream(context.Context, string, func(string) error) error {
	panic("boom")
}
