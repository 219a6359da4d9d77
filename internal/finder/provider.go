// Package finder runs security group lookups across providers and aggregates the results.
package finder

import (
	"context"
	"fmt"

	"github.com/yairfalse/sgscope/pkg/usage"
)

// Lookup finds resources that reference the given security group.
// It must be read-only and report failure through the error return.
type Lookup func(ctx context.Context, sgID string) (usage.Matches, error)

// Shape describes how a lookup reaches the security group association.
type Shape string

const (
	// ShapeSingle means one list/describe call carries the association inline.
	ShapeSingle Shape = "single-phase"
	// ShapeTwoPhase means a cheap list call is followed by a describe per item.
	ShapeTwoPhase Shape = "list-then-describe"
)

// Provider binds a resource family to its lookup.
type Provider struct {
	Name   string // Stable key (e.g. "ec2")
	Title  string // Display name (e.g. "EC2 Instances")
	Shape  Shape
	Lookup Lookup
}

// validateProviders checks the registry is usable: non-empty, unique names, every lookup set.
func validateProviders(providers []Provider) error {
	if len(providers) == 0 {
		return fmt.Errorf("no providers registered")
	}

	seen := make(map[string]bool, len(providers))
	for i, p := range providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d: empty name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider %s: registered twice", p.Name)
		}
		if p.Lookup == nil {
			return fmt.Errorf("provider %s: nil lookup", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
