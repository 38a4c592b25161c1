package render

import (
	"bytes"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
	"github.com/firefart/dmarcmbox/internal/aggregate"
	"github.com/firefart/dmarcmbox/internal/dmarc"
)

// Resolver returns the host names of a source IP
type Resolver interface {
	LookupAddr(ip netip.Addr) ([]string, error)
}

type Options struct {
	// Resolver adds a column with the reverse DNS names of the source IP
	// when set
	Resolver Resolver
	// Color marks DMARC passes green and failures red. Only set it when
	// writing to a terminal.
	Color bool
}

func newTable(w io.Writer) *tabby.Tabby {
	return tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 2, ' ', 0))
}

func join[T fmt.Stringer](values []T) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = v.String()
	}
	return strings.Join(s, ", ")
}

func sourceNames(r Resolver, ip netip.Addr) string {
	names, err := r.LookupAddr(ip)
	if err != nil {
		return ""
	}
	return strings.Join(names, ", ")
}

// columns of the DMARC results in the record table
const (
	dkimColumn = 5
	spfColumn  = 6
)

// Records writes one table line per record
func Records(w io.Writer, records []dmarc.Record, opts Options) error {
	out := w
	var buf bytes.Buffer
	if opts.Color {
		out = &buf
	}

	t := newTable(out)
	header := []any{"From domain", "IP address", "Count", "Disposition", "Override reasons", "DKIM", "SPF", "DKIM auth result", "SPF auth result"}
	if opts.Resolver != nil {
		header = append(header, "Source DNS")
	}
	t.AddHeader(header...)

	for _, r := range records {
		pe := r.Row.PolicyEvaluated
		line := []any{
			r.Identifiers.HeaderFrom,
			r.Row.SourceIP,
			humanize.Comma(int64(r.Row.Count)),
			pe.Disposition,
			join(pe.Reasons),
			pe.DKIM,
			pe.SPF,
			join(r.AuthResults.DKIM),
			join(r.AuthResults.SPF),
		}
		if opts.Resolver != nil {
			line = append(line, sourceNames(opts.Resolver, r.Row.SourceIP))
		}
		t.AddLine(line...)
	}
	t.Print()

	if opts.Color {
		_, err := io.WriteString(w, colorResults(lipgloss.NewRenderer(w), buf.String(), dkimColumn, spfColumn))
		return err
	}
	return nil
}

// columnStarts returns the rune offsets of all columns in the separator
// line below the table header
func columnStarts(separator string) []int {
	var starts []int
	prev := ' '
	for i, r := range []rune(separator) {
		if r == '-' && prev != '-' {
			starts = append(starts, i)
		}
		prev = r
	}
	return starts
}

// colorResults styles the DMARC results in the given columns of a laid out
// table. Escape sequences are added after the layout so they do not count
// towards the column widths.
func colorResults(renderer *lipgloss.Renderer, table string, columns ...int) string {
	styles := map[string]lipgloss.Style{
		string(dmarc.DMARCPass): renderer.NewStyle().Foreground(lipgloss.Color("2")),
		string(dmarc.DMARCFail): renderer.NewStyle().Foreground(lipgloss.Color("1")),
	}

	lines := strings.SplitAfter(table, "\n")
	if len(lines) < 2 {
		return table
	}
	starts := columnStarts(lines[1])

	var b strings.Builder
	for i, line := range lines {
		if i < 2 {
			b.WriteString(line)
			continue
		}
		runes := []rune(line)
		pos := 0
		for _, c := range columns {
			if c+1 >= len(starts) || starts[c+1] > len(runes) {
				continue
			}
			start, end := starts[c], starts[c+1]
			cell := string(runes[start:end])
			value := strings.TrimRight(cell, " ")
			style, ok := styles[value]
			if !ok {
				continue
			}
			b.WriteString(string(runes[pos:start]))
			b.WriteString(style.Render(value))
			b.WriteString(cell[len(value):])
			pos = end
		}
		b.WriteString(string(runes[pos:]))
	}
	return b.String()
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, " %s\n", title)
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", len(title)+2))
}

// Feedback writes the metadata and policy of a single report followed by
// its records
func Feedback(w io.Writer, f *dmarc.Feedback, opts Options) error {
	meta := f.ReportMetadata
	section(w, "DMARC Report Details")
	if f.Version != nil {
		fmt.Fprintf(w, "Version: %g\n", *f.Version)
	}
	fmt.Fprintf(w, "Provider: %s\n", meta.OrgName)
	fmt.Fprintf(w, "Coverage: %s\n", meta.DateRange)
	fmt.Fprintf(w, "Report ID: %s\n", meta.ReportID)
	fmt.Fprintf(w, "Email contact: %s\n", meta.Email)
	if meta.ExtraContactInfo != "" {
		fmt.Fprintf(w, "Extra contact: %s\n", meta.ExtraContactInfo)
	}
	if len(meta.Errors) > 0 {
		fmt.Fprintf(w, "Errors: %s\n", strings.Join(meta.Errors, "; "))
	}
	fmt.Fprintln(w)

	policy := f.PolicyPublished
	section(w, "Policy Details")
	fmt.Fprintf(w, "Domain: %s\n", policy.Domain)
	fmt.Fprintf(w, "Policy: %s\n", policy.P)
	fmt.Fprintf(w, "Sub-domain policy: %s\n", policy.SP)
	if policy.ADKIM != "" {
		fmt.Fprintf(w, "DKIM alignment: %s\n", policy.ADKIM)
	}
	if policy.ASPF != "" {
		fmt.Fprintf(w, "SPF alignment: %s\n", policy.ASPF)
	}
	fmt.Fprintf(w, "Percentage: %d\n", policy.Pct)
	if policy.Fo != "" {
		fmt.Fprintf(w, "Failure options: %s\n", policy.Fo)
	}
	fmt.Fprintln(w)

	if err := Records(w, f.Records, opts); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return nil
}

// Summary writes the timeframe of an aggregated batch and all its records
func Summary(w io.Writer, s aggregate.Summary, opts Options) error {
	if s.Reports > 0 {
		fmt.Fprintf(w, "Timeframe: %s to %s\n", s.Begin.Format(time.RFC3339), s.End.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Reports: %s, records: %s\n\n", humanize.Comma(int64(s.Reports)), humanize.Comma(int64(len(s.Records))))
	return Records(w, s.Records, opts)
}
