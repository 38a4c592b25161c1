package dmarc

import (
	"net/netip"
	"slices"
	"time"
)

// Feedback represents one parsed DMARC aggregate report
// https://tools.ietf.org/html/rfc7489#appendix-C
type Feedback struct {
	// Version is nil when the producer omits it (Google does)
	Version         *float64
	ReportMetadata  ReportMetadata
	PolicyPublished PolicyPublished
	Records         []Record
}

// ReportMetadata describes the report generator
type ReportMetadata struct {
	OrgName          string
	Email            string
	ExtraContactInfo string
	// ReportID identifies a report globally. Two feedbacks with the same
	// ReportID are the same report.
	ReportID  string
	DateRange DateRange
	Errors    []string
}

// DateRange is the UTC time range covered by a report
type DateRange struct {
	Begin time.Time
	End   time.Time
}

// PolicyPublished is the DMARC record that applied to the reported messages
type PolicyPublished struct {
	Domain string
	ADKIM  Alignment
	ASPF   Alignment
	P      Disposition
	// SP is always set. It inherits P when the report does not carry it.
	SP  Disposition
	Pct uint8
	Fo  string
}

// PolicyEvaluated holds the results of applying DMARC
type PolicyEvaluated struct {
	Disposition Disposition
	DKIM        DMARCResult
	SPF         DMARCResult
	Reasons     []PolicyOverrideReason
}

// PolicyOverrideReason explains why the applied disposition differs from
// the published policy
type PolicyOverrideReason struct {
	Type    OverrideType
	Comment string
	// Raw holds the original type text when it was not one of the known
	// override types and Type fell back to OverrideOther.
	Raw string
}

// Row is one source IP / disposition bucket
type Row struct {
	SourceIP        netip.Addr
	Count           uint32
	PolicyEvaluated PolicyEvaluated
}

// Identifier holds the domains a record was evaluated against
type Identifier struct {
	EnvelopeTo   string
	EnvelopeFrom string
	HeaderFrom   string
}

// DKIMAuthResult is a raw DKIM verification result
type DKIMAuthResult struct {
	Domain      string
	Selector    string
	Result      DKIMResult
	HumanResult string
}

// SPFAuthResult is a raw SPF verification result
type SPFAuthResult struct {
	Domain string
	Scope  SPFScope
	Result SPFResult
}

// AuthResult contains DKIM and SPF results, uninterpreted with respect to DMARC.
// There may be no DKIM results but there is always at least one SPF result.
type AuthResult struct {
	DKIM []DKIMAuthResult
	SPF  []SPFAuthResult
}

// Record is the atomic reportable unit: messages from one IP, for one
// domain, with one disposition and set of auth results.
type Record struct {
	Row         Row
	Identifiers Identifier
	AuthResults AuthResult
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	c := r
	c.Row.PolicyEvaluated.Reasons = slices.Clone(r.Row.PolicyEvaluated.Reasons)
	c.AuthResults.DKIM = slices.Clone(r.AuthResults.DKIM)
	c.AuthResults.SPF = slices.Clone(r.AuthResults.SPF)
	return c
}
