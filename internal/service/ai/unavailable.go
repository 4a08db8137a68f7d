package ai

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnavailable = errors.New("completion provider unavailable")

// UnavailableSource fails every call. It stands in when no provider is
// configured so submissions still resolve to the error marker.
type UnavailableSource struct {
	reason error
}

// NewUnavailableSource records why no real provider could be built.
func NewUnavailableSource(reason error) *UnavailableSource {
	return &UnavailableSource{reason: reason}
}

func (s *UnavailableSource) err() error {
	if s.reason == nil {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, s.reason)
}

// Stream implements Source.
func (s *UnavailableSource) Stream(context.Context, string, func(string) error) error {
	return s.err()
}

// Complete implements Source.
func (s *UnavailableSource) Complete(context.Context, string) (string, error) {
	return "", s.err()
}

var _ Source = (*UnavailableSource)(nil)
