package finder

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/sgscope/pkg/usage"
)

// DefaultEnrichConcurrency bounds describe fan-out when Enricher.Limit is unset.
const DefaultEnrichConcurrency = 8

// Enricher runs the list-then-describe pattern: a cheap List call returns
// item keys, Enrich fetches the detail per key, and Emit (or Match) decides
// which identifiers the item contributes. Enrich calls run concurrently up to
// Limit; output order follows List order.
//
// A failed Enrich skips that item and records it on Matches.Skipped. The whole
// lookup fails instead when an item error is an authorization denial or a
// cancellation, or when every listed item fails.
type Enricher[K, D any] struct {
	List   func(ctx context.Context) ([]K, error)
	Key    func(K) string
	Enrich func(ctx context.Context, key K) (D, error)
	Match  func(D) bool
	Emit   func(key K, detail D) []string
	Limit  int
}

// Run executes the list and describe phases.
func (e Enricher[K, D]) Run(ctx context.Context) (usage.Matches, error) {
	keys, err := e.List(ctx)
	if err != nil {
		return usage.Matches{}, err
	}
	if len(keys) == 0 {
		return usage.Matches{IDs: []string{}}, nil
	}

	limit := e.Limit
	if limit <= 0 {
		limit = DefaultEnrichConcurrency
	}

	type slot struct {
		ids     []string
		skipped *usage.Skipped
	}
	slots := make([]slot, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, k := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			detail, err := e.Enrich(gctx, k)
			if err != nil {
				itemErr := usage.AsError(err)
				if abortsLookup(itemErr.Kind) {
					return itemErr
				}
				slots[i].skipped = &usage.Skipped{Item: e.Key(k), Err: itemErr}
				return nil
			}

			slots[i].ids = e.emit(k, detail)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return usage.Matches{}, err
	}

	m := usage.Matches{IDs: []string{}}
	for _, s := range slots {
		m.IDs = append(m.IDs, s.ids...)
		if s.skipped != nil {
			m.Skipped = append(m.Skipped, *s.skipped)
		}
	}

	if len(m.Skipped) == len(keys) {
		first := m.Skipped[0].Err
		return usage.Matches{}, usage.Wrap(first.Kind,
			fmt.Errorf("all %d items failed, first %s: %w", len(keys), m.Skipped[0].Item, first.Unwrap()))
	}

	return m, nil
}

func (e Enricher[K, D]) emit(key K, detail D) []string {
	if e.Emit != nil {
		return e.Emit(key, detail)
	}
	if e.Match != nil && e.Match(detail) {
		return []string{e.Key(key)}
	}
	return nil
}

func abortsLookup(kind usage.Kind) bool {
	return kind == usage.KindAuthorization || kind == usage.KindCancelled
}
