package aggregate

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/firefart/dmarcmbox/internal/dmarc"
)

// DedupMode selects how reports with the same report id are merged
type DedupMode string

const (
	// DedupAdjacent only drops duplicates that are next to each other after
	// sorting by begin
	DedupAdjacent DedupMode = "adjacent"
	// DedupGlobal drops every later report with an already seen report id
	DedupGlobal DedupMode = "global"
)

func ParseDedupMode(s string) (DedupMode, error) {
	switch DedupMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DedupAdjacent:
		return DedupAdjacent, nil
	case DedupGlobal:
		return DedupGlobal, nil
	}
	return "", fmt.Errorf("invalid dedup mode %q", s)
}

type Options struct {
	Dedup DedupMode
}

// Summary is the aggregated view over a batch of reports
type Summary struct {
	// Reports is the number of reports left after deduplication
	Reports int
	Begin   time.Time
	End     time.Time
	Records []dmarc.Record
}

// Sort orders the reports by the begin of their date range. Reports with
// the same begin keep their relative order.
func Sort(fs []dmarc.Feedback) {
	slices.SortStableFunc(fs, func(a, b dmarc.Feedback) int {
		return a.ReportMetadata.DateRange.Begin.Compare(b.ReportMetadata.DateRange.Begin)
	})
}

// Dedup removes reports whose report id equals the one of the preceding
// report, keeping the first. Duplicates that are not adjacent survive.
func Dedup(fs []dmarc.Feedback) []dmarc.Feedback {
	return slices.CompactFunc(fs, func(a, b dmarc.Feedback) bool {
		return a.ReportMetadata.ReportID == b.ReportMetadata.ReportID
	})
}

// DedupAll removes every report whose report id was already seen,
// keeping the first occurrence.
func DedupAll(fs []dmarc.Feedback) []dmarc.Feedback {
	seen := make(map[string]struct{}, len(fs))
	return slices.DeleteFunc(fs, func(f dmarc.Feedback) bool {
		if _, ok := seen[f.ReportMetadata.ReportID]; ok {
			return true
		}
		seen[f.ReportMetadata.ReportID] = struct{}{}
		return false
	})
}

// Timeframe returns the earliest begin and the latest end of all reports.
// ok is false for an empty batch.
func Timeframe(fs []dmarc.Feedback) (begin, end time.Time, ok bool) {
	for i, f := range fs {
		dr := f.ReportMetadata.DateRange
		if i == 0 || dr.Begin.Before(begin) {
			begin = dr.Begin
		}
		if i == 0 || dr.End.After(end) {
			end = dr.End
		}
	}
	return begin, end, len(fs) > 0
}

// Flatten returns copies of all records in report order
func Flatten(fs []dmarc.Feedback) []dmarc.Record {
	n := 0
	for _, f := range fs {
		n += len(f.Records)
	}
	records := make([]dmarc.Record, 0, n)
	for _, f := range fs {
		for _, r := range f.Records {
			records = append(records, r.Clone())
		}
	}
	return records
}

// Reduce sorts and deduplicates a batch in place and returns the
// remaining reports
func Reduce(fs []dmarc.Feedback, opts Options) []dmarc.Feedback {
	Sort(fs)
	if opts.Dedup == DedupGlobal {
		return DedupAll(fs)
	}
	return Dedup(fs)
}

// Aggregate sorts, deduplicates and flattens a batch. fs is reordered in
// place and must not be used afterwards.
func Aggregate(fs []dmarc.Feedback, opts Options) Summary {
	fs = Reduce(fs, opts)
	s := Summary{
		Reports: len(fs),
		Records: Flatten(fs),
	}
	s.Begin, s.End, _ = Timeframe(fs)
	return s
}
