package dmarc

import "encoding/xml"

// xmlReport is the permissive wire shape of a DMARC report.
// Every leaf is a pointer so normalize can tell a missing element from
// an empty one.
// https://tools.ietf.org/html/rfc7489#appendix-C
type xmlReport struct {
	XMLName         xml.Name            `xml:"feedback"`
	Version         *string             `xml:"version"`
	ReportMetadata  *xmlReportMetadata  `xml:"report_metadata"`
	PolicyPublished *xmlPolicyPublished `xml:"policy_published"`
	Records         []xmlRecord         `xml:"record"`
}

type xmlReportMetadata struct {
	OrgName          *string       `xml:"org_name"`
	Email            *string       `xml:"email"`
	ExtraContactInfo *string       `xml:"extra_contact_info"`
	ReportID         *string       `xml:"report_id"`
	DateRange        *xmlDateRange `xml:"date_range"`
	// some producers misspell date_range
	DataRange *xmlDateRange `xml:"data_range"`
	Errors    []string      `xml:"error"`
}

type xmlDateRange struct {
	Begin *string `xml:"begin"`
	End   *string `xml:"end"`
}

type xmlPolicyPublished struct {
	Domain *string `xml:"domain"`
	ADKIM  *string `xml:"adkim"`
	ASPF   *string `xml:"aspf"`
	P      *string `xml:"p"`
	SP     *string `xml:"sp"`
	Pct    *string `xml:"pct"`
	Fo     *string `xml:"fo"`
}

type xmlRecord struct {
	Row         *xmlRow         `xml:"row"`
	Identifiers *xmlIdentifiers `xml:"identifiers"`
	AuthResults *xmlAuthResults `xml:"auth_results"`
}

type xmlRow struct {
	SourceIP        *string             `xml:"source_ip"`
	Count           *string             `xml:"count"`
	PolicyEvaluated *xmlPolicyEvaluated `xml:"policy_evaluated"`
}

type xmlPolicyEvaluated struct {
	Disposition *string     `xml:"disposition"`
	DKIM        *string     `xml:"dkim"`
	SPF         *string     `xml:"spf"`
	Reasons     []xmlReason `xml:"reason"`
}

type xmlReason struct {
	Type    *string `xml:"type"`
	Comment *string `xml:"comment"`
}

type xmlIdentifiers struct {
	EnvelopeTo   *string `xml:"envelope_to"`
	EnvelopeFrom *string `xml:"envelope_from"`
	HeaderFrom   *string `xml:"header_from"`
}

type xmlAuthResults struct {
	DKIM []xmlDKIM `xml:"dkim"`
	SPF  []xmlSPF  `xml:"spf"`
}

type xmlDKIM struct {
	Domain      *string `xml:"domain"`
	Selector    *string `xml:"selector"`
	Result      *string `xml:"result"`
	HumanResult *string `xml:"human_result"`
}

type xmlSPF struct {
	Domain *string `xml:"domain"`
	Scope  *string `xml:"scope"`
	Result *string `xml:"result"`
}
