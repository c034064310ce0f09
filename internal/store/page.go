package store

import "github.com/conatus-oss/dana-archive/internal/entity"

// Paginate runs count then list against the clamped window described by pr,
// assembling the generic entity.Page[T] every list operation in the module
// returns (spec.md §4.1). Callers are expected to have already clamped
// pr.Limit via config.Config.ClampLimit.
func Paginate[T any](pr entity.PageRange, count func() (int, error), list func(entity.PageRange) ([]T, error)) (entity.Page[T], error) {
	total, err := count()
	if err != nil {
		return entity.Page[T]{}, err
	}

	items, err := list(pr)
	if err != nil {
		return entity.Page[T]{}, err
	}

	return entity.Page[T]{Total: total, Items: items, Range: pr}, nil
}
