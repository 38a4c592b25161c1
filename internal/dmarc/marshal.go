package dmarc

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

func ptr(s string) *string {
	return &s
}

// optional omits empty values from the output
func optional[T ~string](s T) *string {
	if s == "" {
		return nil
	}
	return ptr(string(s))
}

// Marshal writes f as an aggregate report document. Parsing the output
// yields a value equal to f.
func Marshal(f *Feedback) ([]byte, error) {
	report := xmlReport{
		ReportMetadata: &xmlReportMetadata{
			OrgName:          ptr(f.ReportMetadata.OrgName),
			Email:            ptr(f.ReportMetadata.Email),
			ExtraContactInfo: optional(f.ReportMetadata.ExtraContactInfo),
			ReportID:         ptr(f.ReportMetadata.ReportID),
			DateRange: &xmlDateRange{
				Begin: ptr(strconv.FormatInt(f.ReportMetadata.DateRange.Begin.Unix(), 10)),
				End:   ptr(strconv.FormatInt(f.ReportMetadata.DateRange.End.Unix(), 10)),
			},
			Errors: f.ReportMetadata.Errors,
		},
		PolicyPublished: &xmlPolicyPublished{
			Domain: ptr(f.PolicyPublished.Domain),
			ADKIM:  optional(f.PolicyPublished.ADKIM),
			ASPF:   optional(f.PolicyPublished.ASPF),
			P:      ptr(string(f.PolicyPublished.P)),
			SP:     ptr(string(f.PolicyPublished.SP)),
			Pct:    ptr(strconv.FormatUint(uint64(f.PolicyPublished.Pct), 10)),
			Fo:     ptr(f.PolicyPublished.Fo),
		},
	}
	if f.Version != nil {
		report.Version = ptr(strconv.FormatFloat(*f.Version, 'f', -1, 64))
	}

	for _, r := range f.Records {
		report.Records = append(report.Records, marshalRecord(r))
	}

	b, err := xml.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("could not marshal XML: %w", err)
	}
	return append([]byte(xml.Header), b...), nil
}

func marshalRecord(r Record) xmlRecord {
	pe := r.Row.PolicyEvaluated
	x := xmlRecord{
		Row: &xmlRow{
			SourceIP: ptr(r.Row.SourceIP.String()),
			Count:    ptr(strconv.FormatUint(uint64(r.Row.Count), 10)),
			PolicyEvaluated: &xmlPolicyEvaluated{
				Disposition: ptr(string(pe.Disposition)),
				DKIM:        ptr(string(pe.DKIM)),
				SPF:         ptr(string(pe.SPF)),
			},
		},
		Identifiers: &xmlIdentifiers{
			EnvelopeTo:   optional(r.Identifiers.EnvelopeTo),
			EnvelopeFrom: optional(r.Identifiers.EnvelopeFrom),
			HeaderFrom:   ptr(r.Identifiers.HeaderFrom),
		},
		AuthResults: &xmlAuthResults{},
	}

	for _, reason := range pe.Reasons {
		t := string(reason.Type)
		if reason.Raw != "" {
			t = reason.Raw
		}
		x.Row.PolicyEvaluated.Reasons = append(x.Row.PolicyEvaluated.Reasons, xmlReason{
			Type:    ptr(t),
			Comment: optional(reason.Comment),
		})
	}
	for _, d := range r.AuthResults.DKIM {
		x.AuthResults.DKIM = append(x.AuthResults.DKIM, xmlDKIM{
			Domain:      ptr(d.Domain),
			Selector:    optional(d.Selector),
			Result:      ptr(string(d.Result)),
			HumanResult: optional(d.HumanResult),
		})
	}
	for _, s := range r.AuthResults.SPF {
		x.AuthResults.SPF = append(x.AuthResults.SPF, xmlSPF{
			Domain: ptr(s.Domain),
			Scope:  optional(s.Scope),
			Result: ptr(string(s.Result)),
		})
	}
	return x
}
