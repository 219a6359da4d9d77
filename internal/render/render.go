// Package render writes scan reports as a table, JSON or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/sgscope/internal/filter"
	"github.com/yairfalse/sgscope/pkg/usage"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Formats lists the supported formats.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML}

// ParseFormat parses an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Options controls rendering.
type Options struct {
	// Filter hides table rows. JSON and YAML always carry every provider.
	Filter *filter.Filter
	// Color enables ANSI colors in table output.
	Color bool
}

// Render writes the report to w in the given format.
func Render(w io.Writer, report usage.Report, format Format, opts Options) error {
	switch format {
	case FormatTable:
		return renderTable(w, report, opts)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

type palette struct {
	found *color.Color
	none  *color.Color
	err   *color.Color
	bold  *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		found: color.New(color.FgYellow, color.Bold),
		none:  color.New(color.FgGreen),
		err:   color.New(color.FgRed),
		bold:  color.New(color.Bold),
	}
	if !enabled {
		p.found.DisableColor()
		p.none.DisableColor()
		p.err.DisableColor()
		p.bold.DisableColor()
	} else {
		p.found.EnableColor()
		p.none.EnableColor()
		p.err.EnableColor()
		p.bold.EnableColor()
	}
	return p
}

func renderTable(w io.Writer, report usage.Report, opts Options) error {
	p := newPalette(opts.Color)

	results := report.Results
	if opts.Filter != nil {
		results = opts.Filter.FilterResults(results)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Provider", "Service", "Result"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, r := range results {
		table.Append([]string{r.Provider, r.Title, resultCell(r, p)})
	}
	table.Render()

	if hidden := len(report.Results) - len(results); hidden > 0 {
		fmt.Fprintf(w, "(%d providers hidden)\n", hidden)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, summary(report, p))
	return nil
}

func resultCell(r usage.Result, p palette) string {
	switch {
	case r.Failed():
		return p.err.Sprintf("error: %s", r.Err.Message())
	case len(r.ResourceIDs) == 0:
		cell := p.none.Sprint("none found")
		if len(r.Skipped) > 0 {
			cell += fmt.Sprintf(" (skipped %d)", len(r.Skipped))
		}
		return cell
	default:
		cell := p.found.Sprintf("found: [%s]", strings.Join(r.ResourceIDs, ", "))
		if len(r.Skipped) > 0 {
			cell += fmt.Sprintf(" (skipped %d)", len(r.Skipped))
		}
		return cell
	}
}

func summary(report usage.Report, p palette) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Security group %s in %s: ", report.SecurityGroupID, report.Region)
	if report.AnyFound {
		resources := 0
		matched := report.Matched()
		for _, r := range matched {
			resources += len(r.ResourceIDs)
		}
		b.WriteString(p.found.Sprintf("IN USE (%d resources across %d providers)", resources, len(matched)))
	} else {
		b.WriteString(p.none.Sprint("no usage found"))
	}

	fmt.Fprintf(&b, "\nScanned %d providers, %d errored", report.Scanned(), report.Errored())
	if partial := report.Incomplete() - report.Errored(); partial > 0 {
		fmt.Fprintf(&b, ", %d partially checked", partial)
	}
	if !report.AnyFound && report.Incomplete() > 0 {
		b.WriteString("\n")
		b.WriteString(p.err.Sprint("Result is incomplete: errored providers and skipped items were not checked"))
	}

	return b.String()
}
