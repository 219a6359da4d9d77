// Package usage defines the security group usage model for sgscope.
package usage

import "time"

// Matches is what a single lookup returns on success.
type Matches struct {
	IDs     []string  // Matching resource identifiers, in the order the API returned them
	Skipped []Skipped // Items that could not be checked (two-phase lookups only)
}

// Skipped records an item a two-phase lookup listed but could not describe.
type Skipped struct {
	Item string `json:"item" yaml:"item"`
	Err  *Error `json:"error" yaml:"error"`
}

// Result is the outcome of one provider lookup.
// Either ResourceIDs (possibly empty, never nil) or Err is set, never both.
type Result struct {
	Provider    string        `json:"provider" yaml:"provider"`
	Title       string        `json:"title" yaml:"title"`
	ResourceIDs []string      `json:"resource_ids" yaml:"resource_ids"`
	Err         *Error        `json:"error,omitempty" yaml:"error,omitempty"`
	Skipped     []Skipped     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Succeeded builds a successful result. A nil id slice is normalised to empty.
func Succeeded(provider, title string, m Matches) Result {
	ids := m.IDs
	if ids == nil {
		ids = []string{}
	}
	return Result{
		Provider:    provider,
		Title:       title,
		ResourceIDs: ids,
		Skipped:     m.Skipped,
	}
}

// Failed builds a failed result. Resource ids are never carried alongside an error.
func Failed(provider, title string, err *Error) Result {
	if err == nil {
		err = &Error{Kind: KindUnknown}
	}
	return Result{
		Provider: provider,
		Title:    title,
		Err:      err,
	}
}

// Failed reports whether the lookup errored.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Found reports whether the lookup matched at least one resource.
func (r Result) Found() bool {
	return r.Err == nil && len(r.ResourceIDs) > 0
}

// Partial reports whether a successful lookup skipped some items.
func (r Result) Partial() bool {
	return r.Err == nil && len(r.Skipped) > 0
}

// Report is the consolidated outcome of one scan.
// Results has exactly one entry per registered provider, in registry order.
type Report struct {
	SecurityGroupID string        `json:"security_group_id" yaml:"security_group_id"`
	Region          string        `json:"region" yaml:"region"`
	Results         []Result      `json:"results" yaml:"results"`
	AnyFound        bool          `json:"any_found" yaml:"any_found"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
}

// NewReport aggregates per-provider results into a report.
func NewReport(sgID, region string, startedAt time.Time, results []Result) Report {
	anyFound := false
	for _, r := range results {
		if r.Found() {
			anyFound = true
			break
		}
	}

	return Report{
		SecurityGroupID: sgID,
		Region:          region,
		Results:         results,
		AnyFound:        anyFound,
		StartedAt:       startedAt,
		Duration:        time.Since(startedAt),
	}
}

// Scanned returns the number of providers in the report.
func (r Report) Scanned() int {
	return len(r.Results)
}

// Errored returns the number of providers whose lookup failed.
func (r Report) Errored() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// Incomplete returns the number of providers that could not check every
// resource: failed lookups plus successful ones that skipped items.
func (r Report) Incomplete() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() || res.Partial() {
			n++
		}
	}
	return n
}

// Matched returns the results that found at least one resource.
func (r Report) Matched() []Result {
	var matched []Result
	for _, res := range r.Results {
		if res.Found() {
			matched = append(matched, res)
		}
	}
	return matched
}

// Result returns the result for the named provider.
func (r Report) Result(provider string) (Result, bool) {
	for _, res := range r.Results {
		if res.Provider == provider {
			return res, true
		}
	}
	return Result{}, false
}
