package render

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/firefart/dmarcmbox/internal/dmarc"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatXML  = "xml"
)

type Time time.Time

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339))
}

func (t Time) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(time.Time(t).Format(time.RFC3339), start)
}

// DNSNames are the reverse DNS names of a source IP
type DNSNames []string

// MarshalXML writes every name as a dns child element
func (n DNSNames) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	names := struct {
		Names []string `xml:"dns"`
	}{n}
	return e.EncodeElement(names, start)
}

// Entry is a single record together with the metadata of its report
type Entry struct {
	XMLName          xml.Name        `xml:"entry" json:"-"`
	Version          string          `xml:"version,omitempty" json:"version,omitempty"`
	ReportID         string          `xml:"report_id" json:"report_id"`
	OrgName          string          `xml:"org_name" json:"org_name"`
	Email            string          `xml:"email" json:"email"`
	ExtraContactInfo string          `xml:"extra_contact_info,omitempty" json:"extra_contact_info,omitempty"`
	Errors           []string        `xml:"errors>error" json:"errors"`
	DateBegin        int64           `xml:"date_begin" json:"date_begin"`
	DateEnd          int64           `xml:"date_end" json:"date_end"`
	DateBeginParsed  Time            `xml:"date_begin_parsed" json:"date_begin_parsed"`
	DateEndParsed    Time            `xml:"date_end_parsed" json:"date_end_parsed"`
	SourceIP         string          `xml:"source_ip" json:"source_ip"`
	SourceDNS        DNSNames        `xml:"source_dns,omitempty" json:"source_dns,omitempty"`
	Count            uint32          `xml:"count" json:"count"`
	EnvelopeTo       string          `xml:"envelope_to,omitempty" json:"envelope_to,omitempty"`
	EnvelopeFrom     string          `xml:"envelope_from,omitempty" json:"envelope_from,omitempty"`
	HeaderFrom       string          `xml:"header_from" json:"header_from"`
	PolicyPublished  PolicyPublished `xml:"policy_published" json:"policy_published"`
	PolicyEvaluated  PolicyEvaluated `xml:"policy_evaluated" json:"policy_evaluated"`
	ResultSPF        []ResultSPF     `xml:"result_spf" json:"result_spf"`
	ResultDKIM       []ResultDKIM    `xml:"result_dkim" json:"result_dkim"`
}

type PolicyPublished struct {
	Domain string `xml:"domain" json:"domain"`
	ADKIM  string `xml:"adkim,omitempty" json:"adkim,omitempty"`
	ASPF   string `xml:"aspf,omitempty" json:"aspf,omitempty"`
	P      string `xml:"p" json:"p"`
	SP     string `xml:"sp" json:"sp"`
	Pct    uint8  `xml:"pct" json:"pct"`
	Fo     string `xml:"fo" json:"fo"`
}

type PolicyEvaluated struct {
	Disposition string           `xml:"disposition" json:"disposition"`
	DKIM        string           `xml:"dkim" json:"dkim"`
	SPF         string           `xml:"spf" json:"spf"`
	Reasons     []OverrideReason `xml:"reason" json:"reason"`
}

type OverrideReason struct {
	Type    string `xml:"type" json:"type"`
	Raw     string `xml:"raw,omitempty" json:"raw,omitempty"`
	Comment string `xml:"comment,omitempty" json:"comment,omitempty"`
}

type ResultSPF struct {
	Domain string `xml:"domain" json:"domain"`
	Scope  string `xml:"scope,omitempty" json:"scope,omitempty"`
	Result string `xml:"result" json:"result"`
}

type ResultDKIM struct {
	Domain      string `xml:"domain" json:"domain"`
	Selector    string `xml:"selector,omitempty" json:"selector,omitempty"`
	Result      string `xml:"result" json:"result"`
	HumanResult string `xml:"human_result,omitempty" json:"human_result,omitempty"`
}

// Entries converts every record of f into an Entry
func Entries(f *dmarc.Feedback, opts Options) []Entry {
	meta := f.ReportMetadata
	policy := f.PolicyPublished
	version := ""
	if f.Version != nil {
		version = fmt.Sprintf("%g", *f.Version)
	}

	entries := make([]Entry, len(f.Records))
	for i, record := range f.Records {
		var names DNSNames
		if opts.Resolver != nil {
			names, _ = opts.Resolver.LookupAddr(record.Row.SourceIP)
		}

		pe := record.Row.PolicyEvaluated
		reasons := make([]OverrideReason, len(pe.Reasons))
		for j, r := range pe.Reasons {
			reasons[j] = OverrideReason{
				Type:    string(r.Type),
				Raw:     r.Raw,
				Comment: r.Comment,
			}
		}
		spf := make([]ResultSPF, len(record.AuthResults.SPF))
		for j, r := range record.AuthResults.SPF {
			spf[j] = ResultSPF{
				Domain: r.Domain,
				Scope:  string(r.Scope),
				Result: string(r.Result),
			}
		}
		dkim := make([]ResultDKIM, len(record.AuthResults.DKIM))
		for j, r := range record.AuthResults.DKIM {
			dkim[j] = ResultDKIM{
				Domain:      r.Domain,
				Selector:    r.Selector,
				Result:      string(r.Result),
				HumanResult: r.HumanResult,
			}
		}

		entries[i] = Entry{
			Version:          version,
			ReportID:         meta.ReportID,
			OrgName:          meta.OrgName,
			Email:            meta.Email,
			ExtraContactInfo: meta.ExtraContactInfo,
			Errors:           meta.Errors,
			DateBegin:        meta.DateRange.Begin.Unix(),
			DateEnd:          meta.DateRange.End.Unix(),
			DateBeginParsed:  Time(meta.DateRange.Begin),
			DateEndParsed:    Time(meta.DateRange.End),
			SourceIP:         record.Row.SourceIP.String(),
			SourceDNS:        names,
			Count:            record.Row.Count,
			EnvelopeTo:       record.Identifiers.EnvelopeTo,
			EnvelopeFrom:     record.Identifiers.EnvelopeFrom,
			HeaderFrom:       record.Identifiers.HeaderFrom,
			PolicyPublished: PolicyPublished{
				Domain: policy.Domain,
				ADKIM:  string(policy.ADKIM),
				ASPF:   string(policy.ASPF),
				P:      string(policy.P),
				SP:     string(policy.SP),
				Pct:    policy.Pct,
				Fo:     policy.Fo,
			},
			PolicyEvaluated: PolicyEvaluated{
				Disposition: string(pe.Disposition),
				DKIM:        string(pe.DKIM),
				SPF:         string(pe.SPF),
				Reasons:     reasons,
			},
			ResultSPF:  spf,
			ResultDKIM: dkim,
		}
	}
	return entries
}

// Export writes one line per record of all reports in JSON or XML
func Export(w io.Writer, format string, fs []dmarc.Feedback, opts Options) error {
	var marshal func(any) ([]byte, error)
	switch strings.ToLower(format) {
	case FormatJSON:
		marshal = json.Marshal
	case FormatXML:
		marshal = xml.Marshal
	default:
		return fmt.Errorf("invalid export format %q", format)
	}

	for i := range fs {
		for _, entry := range Entries(&fs[i], opts) {
			b, err := marshal(entry)
			if err != nil {
				return fmt.Errorf("could not marshal %s: %w", format, err)
			}
			if _, err := fmt.Fprintf(w, "%s\n", b); err != nil {
				return err
			}
		}
	}
	return nil
}
