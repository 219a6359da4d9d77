package emitter

import (
	"sort"
	"sync"

	"github.com/yairfalse/sgscope/pkg/usage"
)

// ChangeType is the kind of attachment change between two scans.
type ChangeType string

const (
	ChangeAttached ChangeType = "attached"
	ChangeDetached ChangeType = "detached"
)

// Change is one resource that started or stopped referencing a security group.
type Change struct {
	Type            ChangeType
	SecurityGroupID string
	Provider        string
	ResourceID      string
}

// attachment is a provider-scoped resource reference.
type attachment struct {
	provider string
	id       string
}

// DiffTracker tracks attachments per security group between scans and detects changes.
type DiffTracker struct {
	mu       sync.RWMutex
	previous map[string]map[attachment]struct{}
}

// NewDiffTracker creates a new diff tracker.
func NewDiffTracker() *DiffTracker {
	return &DiffTracker{
		previous: make(map[string]map[attachment]struct{}),
	}
}

// ComputeDiff compares a report against the previous one for the same group.
// Returns nil on the group's first scan (baseline establishment).
// Providers that failed or skipped items in the current report produce no detaches.
func (d *DiffTracker) ComputeDiff(report usage.Report) []Change {
	d.mu.RLock()
	defer d.mu.RUnlock()

	prev, ok := d.previous[report.SecurityGroupID]
	if !ok {
		return nil
	}

	unchecked := uncheckedProviders(report)
	current := indexAttachments(report)
	changes := make([]Change, 0)

	for a := range current {
		if _, exists := prev[a]; !exists {
			changes = append(changes, newChange(ChangeAttached, report.SecurityGroupID, a))
		}
	}
	for a := range prev {
		if _, skip := unchecked[a.provider]; skip {
			continue
		}
		if _, exists := current[a]; !exists {
			changes = append(changes, newChange(ChangeDetached, report.SecurityGroupID, a))
		}
	}

	sortChanges(changes)
	return changes
}

// Update stores the report's attachments as the group's new baseline.
// Attachments of providers that failed or skipped items are carried over from
// the previous baseline until a complete lookup drops them.
func (d *DiffTracker) Update(report usage.Report) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := indexAttachments(report)
	unchecked := uncheckedProviders(report)
	for a := range d.previous[report.SecurityGroupID] {
		if _, ok := unchecked[a.provider]; ok {
			next[a] = struct{}{}
		}
	}
	d.previous[report.SecurityGroupID] = next
}

func indexAttachments(report usage.Report) map[attachment]struct{} {
	m := make(map[attachment]struct{})
	for _, r := range report.Results {
		if r.Failed() {
			continue
		}
		for _, id := range r.ResourceIDs {
			m[attachment{provider: r.Provider, id: id}] = struct{}{}
		}
	}
	return m
}

// uncheckedProviders returns providers whose result does not cover every resource.
func uncheckedProviders(report usage.Report) map[string]struct{} {
	m := make(map[string]struct{})
	for _, r := range report.Results {
		if r.Failed() || r.Partial() {
			m[r.Provider] = struct{}{}
		}
	}
	return m
}

func newChange(t ChangeType, sgID string, a attachment) Change {
	return Change{
		Type:            t,
		SecurityGroupID: sgID,
		Provider:        a.provider,
		ResourceID:      a.id,
	}
}

// sortChanges orders changes by provider then resource id so logs are stable.
func sortChanges(changes []Change) {
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Provider != changes[j].Provider {
			return changes[i].Provider < changes[j].Provider
		}
		if changes[i].ResourceID != changes[j].ResourceID {
			return changes[i].ResourceID < changes[j].ResourceID
		}
		return changes[i].Type < changes[j].Type
	})
}
