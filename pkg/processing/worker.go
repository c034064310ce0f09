package processing

import (
	"context"
	"fmt"
	"iter"
)

// Result wraps either a produced value or the error that occurred computing it.
type Result[R any] struct {
	Data R
	Err  error
}

// Worker drives fn over every item of input, collecting results onto Output.
// It is built for the ingest engine's PROCESS_FILES phase: one item failing
// does not abort the run unless StopOnError was set.
type Worker[T, R any] struct {
	name        string
	fn          func(ctx context.Context, t T) (R, error)
	input       iter.Seq[T]
	output      chan Result[R]
	stopOnError bool
}

func NewWorker[T, R any](name string, input iter.Seq[T], fn func(ctx context.Context, t T) (R, error)) *Worker[T, R] {
	return &Worker[T, R]{
		name:   name,
		fn:     fn,
		input:  input,
		output: make(chan Result[R], 1),
	}
}

func (s *Worker[T, R]) StopOnError(stopOnError bool) *Worker[T, R] {
	s.stopOnError = stopOnError
	return s
}

// Output returns the channel results are published to. Run closes it when done.
func (s *Worker[T, R]) Output() <-chan Result[R] {
	return s.output
}

func (s *Worker[T, R]) Run(ctx context.Context) error {
	defer close(s.output)

	for item := range s.input {
		r, err := s.fn(ctx, item)
		if err != nil {
			if s.stopOnError {
				return fmt.Errorf("worker %s failed: %w", s.name, err)
			}
			s.output <- Result[R]{Err: err}
		} else {
			s.output <- Result[R]{Data: r}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}
