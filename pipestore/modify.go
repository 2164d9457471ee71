package pipestore

import (
	"context"
	stderrors "errors"

	"github.com/brickflow/brickflow/errors"
	"github.com/brickflow/brickflow/pkg/retry"
)

// Modify applies fn to the stored pipe in a read-modify-write loop,
// retrying when a concurrent writer wins the version race. fn sees the
// freshly loaded envelope on every attempt.
func (s *Store) Modify(ctx context.Context, id string, fn func(*StoredPipe) error) (*StoredPipe, error) {
	return retry.Do(ctx, retry.Conflicts(), func() (*StoredPipe, error) {
		sp, err := s.Get(ctx, id)
		if err != nil {
			if errors.IsInvalid(err) {
				return nil, retry.Abort(err)
			}
			return nil, err
		}

		if err := fn(sp); err != nil {
			return nil, retry.Abort(err)
		}

		if err := s.Update(ctx, sp); err != nil {
			if stderrors.Is(err, errors.ErrVersionConflict) {
				return nil, err
			}
			return nil, retry.Abort(err)
		}
		return sp, nil
	})
}
