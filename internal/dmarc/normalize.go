package dmarc

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// defaultPct is the pct value RFC 7489 assumes when the tag is missing
const defaultPct = 100

const rootPath = "feedback"

// value returns the trimmed text of an optional element, "" when absent
func value(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// present reports whether an optional element carries a non blank value
func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func required(path string, s *string) (string, error) {
	if s == nil {
		return "", missing(path)
	}
	return strings.TrimSpace(*s), nil
}

func requiredEnum[T ~string](path string, s *string, allowed []T) (T, error) {
	var zero T
	if s == nil {
		return zero, missing(path)
	}
	v, err := parseEnum(*s, allowed)
	if err != nil {
		return zero, schemaErr(path, err)
	}
	return v, nil
}

func optionalEnum[T ~string](path string, s *string, allowed []T) (T, error) {
	var zero T
	if !present(s) {
		return zero, nil
	}
	v, err := parseEnum(*s, allowed)
	if err != nil {
		return zero, schemaErr(path, err)
	}
	return v, nil
}

func parseTimestamp(path string, s *string) (time.Time, error) {
	if s == nil {
		return time.Time{}, missing(path)
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(*s), 10, 64)
	if err != nil {
		return time.Time{}, schemaErr(path, fmt.Errorf("%w %q: %w", ErrInvalidValue, *s, err))
	}
	return time.Unix(secs, 0).UTC(), nil
}

func (x *xmlReport) normalize() (*Feedback, error) {
	var f Feedback

	if present(x.Version) {
		v, err := strconv.ParseFloat(strings.TrimSpace(*x.Version), 64)
		if err != nil {
			return nil, schemaErr(rootPath+"/version", fmt.Errorf("%w %q: %w", ErrInvalidValue, *x.Version, err))
		}
		f.Version = &v
	}

	if x.ReportMetadata == nil {
		return nil, missing(rootPath + "/report_metadata")
	}
	meta, err := x.ReportMetadata.normalize(rootPath + "/report_metadata")
	if err != nil {
		return nil, err
	}
	f.ReportMetadata = meta

	if x.PolicyPublished == nil {
		return nil, missing(rootPath + "/policy_published")
	}
	policy, err := x.PolicyPublished.normalize(rootPath + "/policy_published")
	if err != nil {
		return nil, err
	}
	f.PolicyPublished = policy

	if len(x.Records) == 0 {
		return nil, missing(rootPath + "/record")
	}
	f.Records = make([]Record, 0, len(x.Records))
	for i, r := range x.Records {
		record, err := r.normalize(fmt.Sprintf("%s/record[%d]", rootPath, i+1))
		if err != nil {
			return nil, err
		}
		f.Records = append(f.Records, record)
	}

	return &f, nil
}

func (x *xmlReportMetadata) normalize(path string) (ReportMetadata, error) {
	var m ReportMetadata
	var err error

	if m.OrgName, err = required(path+"/org_name", x.OrgName); err != nil {
		return m, err
	}
	if m.Email, err = required(path+"/email", x.Email); err != nil {
		return m, err
	}
	m.ExtraContactInfo = value(x.ExtraContactInfo)
	if m.ReportID, err = required(path+"/report_id", x.ReportID); err != nil {
		return m, err
	}

	dr, drPath := x.DateRange, path+"/date_range"
	if dr == nil {
		dr, drPath = x.DataRange, path+"/data_range"
	}
	if dr == nil {
		return m, missing(path + "/date_range")
	}
	if m.DateRange.Begin, err = parseTimestamp(drPath+"/begin", dr.Begin); err != nil {
		return m, err
	}
	if m.DateRange.End, err = parseTimestamp(drPath+"/end", dr.End); err != nil {
		return m, err
	}

	m.Errors = make([]string, 0, len(x.Errors))
	for _, e := range x.Errors {
		m.Errors = append(m.Errors, strings.TrimSpace(e))
	}
	return m, nil
}

// normalize applies the policy inheritance rules: sp falls back to p and
// fo to the empty string.
func (x *xmlPolicyPublished) normalize(path string) (PolicyPublished, error) {
	var p PolicyPublished
	var err error

	if p.Domain, err = required(path+"/domain", x.Domain); err != nil {
		return p, err
	}
	if p.ADKIM, err = optionalEnum(path+"/adkim", x.ADKIM, alignments); err != nil {
		return p, err
	}
	if p.ASPF, err = optionalEnum(path+"/aspf", x.ASPF, alignments); err != nil {
		return p, err
	}
	if p.P, err = requiredEnum(path+"/p", x.P, dispositions); err != nil {
		return p, err
	}
	if p.SP, err = optionalEnum(path+"/sp", x.SP, dispositions); err != nil {
		return p, err
	}
	if p.SP == "" {
		p.SP = p.P
	}

	p.Pct = defaultPct
	if present(x.Pct) {
		pct, err := strconv.ParseUint(strings.TrimSpace(*x.Pct), 10, 8)
		if err != nil || pct > 100 {
			return p, schemaErr(path+"/pct", fmt.Errorf("%w %q: expected a percentage", ErrInvalidValue, *x.Pct))
		}
		p.Pct = uint8(pct)
	}

	p.Fo = value(x.Fo)
	return p, nil
}

func (x *xmlRecord) normalize(path string) (Record, error) {
	var r Record
	var err error

	if x.Row == nil {
		return r, missing(path + "/row")
	}
	if r.Row, err = x.Row.normalize(path + "/row"); err != nil {
		return r, err
	}

	if x.Identifiers == nil {
		return r, missing(path + "/identifiers")
	}
	if r.Identifiers.HeaderFrom, err = required(path+"/identifiers/header_from", x.Identifiers.HeaderFrom); err != nil {
		return r, err
	}
	r.Identifiers.EnvelopeTo = value(x.Identifiers.EnvelopeTo)
	r.Identifiers.EnvelopeFrom = value(x.Identifiers.EnvelopeFrom)

	if x.AuthResults == nil {
		return r, missing(path + "/auth_results")
	}
	if r.AuthResults, err = x.AuthResults.normalize(path + "/auth_results"); err != nil {
		return r, err
	}
	return r, nil
}

func (x *xmlRow) normalize(path string) (Row, error) {
	var row Row

	ip, err := required(path+"/source_ip", x.SourceIP)
	if err != nil {
		return row, err
	}
	if row.SourceIP, err = netip.ParseAddr(ip); err != nil {
		return row, schemaErr(path+"/source_ip", fmt.Errorf("%w %q: %w", ErrInvalidValue, ip, err))
	}

	count, err := required(path+"/count", x.Count)
	if err != nil {
		return row, err
	}
	c, err := strconv.ParseUint(count, 10, 32)
	if err != nil {
		return row, schemaErr(path+"/count", fmt.Errorf("%w %q: %w", ErrInvalidValue, count, err))
	}
	row.Count = uint32(c)

	pe := x.PolicyEvaluated
	pePath := path + "/policy_evaluated"
	if pe == nil {
		return row, missing(pePath)
	}
	if row.PolicyEvaluated.Disposition, err = requiredEnum(pePath+"/disposition", pe.Disposition, dispositions); err != nil {
		return row, err
	}
	if row.PolicyEvaluated.DKIM, err = requiredEnum(pePath+"/dkim", pe.DKIM, dmarcResults); err != nil {
		return row, err
	}
	if row.PolicyEvaluated.SPF, err = requiredEnum(pePath+"/spf", pe.SPF, dmarcResults); err != nil {
		return row, err
	}

	row.PolicyEvaluated.Reasons = make([]PolicyOverrideReason, 0, len(pe.Reasons))
	for _, reason := range pe.Reasons {
		row.PolicyEvaluated.Reasons = append(row.PolicyEvaluated.Reasons, reason.normalize())
	}
	return row, nil
}

// normalize never fails, unknown override types degrade to OverrideOther
func (x xmlReason) normalize() PolicyOverrideReason {
	t, known := ParseOverrideType(value(x.Type))
	r := PolicyOverrideReason{
		Type:    t,
		Comment: value(x.Comment),
	}
	if !known {
		r.Raw = value(x.Type)
	}
	return r
}

func (x *xmlAuthResults) normalize(path string) (AuthResult, error) {
	a := AuthResult{
		DKIM: make([]DKIMAuthResult, 0, len(x.DKIM)),
		SPF:  make([]SPFAuthResult, 0, len(x.SPF)),
	}

	for i, d := range x.DKIM {
		p := fmt.Sprintf("%s/dkim[%d]", path, i+1)
		domain, err := required(p+"/domain", d.Domain)
		if err != nil {
			return a, err
		}
		result, err := requiredEnum(p+"/result", d.Result, dkimResults)
		if err != nil {
			return a, err
		}
		a.DKIM = append(a.DKIM, DKIMAuthResult{
			Domain:      domain,
			Selector:    value(d.Selector),
			Result:      result,
			HumanResult: value(d.HumanResult),
		})
	}

	if len(x.SPF) == 0 {
		return a, missing(path + "/spf")
	}
	for i, s := range x.SPF {
		p := fmt.Sprintf("%s/spf[%d]", path, i+1)
		domain, err := required(p+"/domain", s.Domain)
		if err != nil {
			return a, err
		}
		scope, err := optionalEnum(p+"/scope", s.Scope, spfScopes)
		if err != nil {
			return a, err
		}
		if s.Result == nil {
			return a, missing(p + "/result")
		}
		result, err := parseSPFResult(*s.Result)
		if err != nil {
			return a, schemaErr(p+"/result", err)
		}
		a.SPF = append(a.SPF, SPFAuthResult{
			Domain: domain,
			Scope:  scope,
			Result: result,
		})
	}
	return a, nil
}
