package conflicts

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrSourceUnavailable marks a calendar conflict source that could not answer.
var ErrSourceUnavailable = errors.New("conflict source unavailable")

// Source supplies externally booked busy intervals for an owner.
type Source interface {
	Name() string
	ListBusyIntervals(ctx context.Context, ownerID string, window Busy) ([]Busy, error)
}

// Unavailable wraps err so that errors.Is(err, ErrSourceUnavailable) holds.
func Unavailable(source string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, source, err)
}

// MultiSource queries several sources concurrently and concatenates their answers.
// Any failing source fails the whole call.
type MultiSource []Source

func (m MultiSource) Name() string { return "multi" }

func (m MultiSource) ListBusyIntervals(ctx context.Context, ownerID string, window Busy) ([]Busy, error) {
	results := make([][]Busy, len(m))

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range m {
		g.Go(func() error {
			busy, err := src.ListBusyIntervals(ctx, ownerID, window)
			if err != nil {
				return Unavailable(src.Name(), err)
			}
			results[i] = busy
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Busy
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
