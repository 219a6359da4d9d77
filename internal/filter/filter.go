// Package filter provides display filtering for sgscope reports.
// It only hides rows; reports themselves always carry every provider.
package filter

import (
	"sort"

	"github.com/yairfalse/sgscope/pkg/usage"
)

// Filter controls which provider results are shown.
type Filter struct {
	excludeProviders map[string]bool
	hideEmpty        bool
}

// New creates a new Filter. hideEmpty hides complete results with no matches;
// failed results and results with skipped items are always shown.
func New(excludeProviders []string, hideEmpty bool) *Filter {
	excludeMap := make(map[string]bool)
	for _, p := range excludeProviders {
		if p != "" {
			excludeMap[p] = true
		}
	}

	return &Filter{
		excludeProviders: excludeMap,
		hideEmpty:        hideEmpty,
	}
}

// ShouldShow returns true if the result passes the filter.
func (f *Filter) ShouldShow(r usage.Result) bool {
	if f.excludeProviders[r.Provider] {
		return false
	}
	if f.hideEmpty && !r.Failed() && !r.Partial() && len(r.ResourceIDs) == 0 {
		return false
	}
	return true
}

// FilterResults returns only results that pass the filter, in their original order.
func (f *Filter) FilterResults(results []usage.Result) []usage.Result {
	if f.IsEmpty() {
		return results
	}

	filtered := make([]usage.Result, 0, len(results))
	for _, r := range results {
		if f.ShouldShow(r) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Unknown returns excluded names that are not in known, sorted.
func (f *Filter) Unknown(known []string) []string {
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	var unknown []string
	for p := range f.excludeProviders {
		if !knownSet[p] {
			unknown = append(unknown, p)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return len(f.excludeProviders) == 0 && !f.hideEmpty
}
