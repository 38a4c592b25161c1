package dmarc

import (
	"fmt"
	"strings"
)

// Alignment is the DKIM or SPF alignment mode. The empty value means the
// report did not specify one.
type Alignment string

const (
	AlignmentRelaxed Alignment = "r"
	AlignmentStrict  Alignment = "s"
)

func (a Alignment) String() string {
	switch a {
	case AlignmentRelaxed:
		return "relaxed"
	case AlignmentStrict:
		return "strict"
	}
	return string(a)
}

// Disposition is the policy action specified by p and sp
type Disposition string

const (
	DispositionNone       Disposition = "none"
	DispositionQuarantine Disposition = "quarantine"
	DispositionReject     Disposition = "reject"
)

// DMARCResult is the DMARC-aligned authentication result
type DMARCResult string

const (
	DMARCPass DMARCResult = "pass"
	DMARCFail DMARCResult = "fail"
)

// OverrideType lists the reasons that may affect a DMARC disposition
type OverrideType string

const (
	OverrideForwarded        OverrideType = "forwarded"
	OverrideSampledOut       OverrideType = "sampled_out"
	OverrideTrustedForwarder OverrideType = "trusted_forwarder"
	OverrideMailingList      OverrideType = "mailing_list"
	OverrideLocalPolicy      OverrideType = "local_policy"
	OverrideOther            OverrideType = "other"
)

// DKIMResult is a DKIM verification result according to RFC 7001 Section 2.6.1
type DKIMResult string

const (
	DKIMNone      DKIMResult = "none"
	DKIMPass      DKIMResult = "pass"
	DKIMFail      DKIMResult = "fail"
	DKIMPolicy    DKIMResult = "policy"
	DKIMNeutral   DKIMResult = "neutral"
	DKIMTempError DKIMResult = "temperror"
	DKIMPermError DKIMResult = "permerror"
)

// SPFScope is the identity an SPF result was checked against
type SPFScope string

const (
	SPFScopeHelo  SPFScope = "helo"
	SPFScopeMFrom SPFScope = "mfrom"
)

// SPFResult is an SPF verification result
type SPFResult string

const (
	SPFNone      SPFResult = "none"
	SPFNeutral   SPFResult = "neutral"
	SPFPass      SPFResult = "pass"
	SPFFail      SPFResult = "fail"
	SPFSoftfail  SPFResult = "softfail"
	SPFTempError SPFResult = "temperror"
	SPFPermError SPFResult = "permerror"
)

var (
	alignments    = []Alignment{AlignmentRelaxed, AlignmentStrict}
	dispositions  = []Disposition{DispositionNone, DispositionQuarantine, DispositionReject}
	dmarcResults  = []DMARCResult{DMARCPass, DMARCFail}
	overrideTypes = []OverrideType{OverrideForwarded, OverrideSampledOut, OverrideTrustedForwarder, OverrideMailingList, OverrideLocalPolicy, OverrideOther}
	dkimResults   = []DKIMResult{DKIMNone, DKIMPass, DKIMFail, DKIMPolicy, DKIMNeutral, DKIMTempError, DKIMPermError}
	spfScopes     = []SPFScope{SPFScopeHelo, SPFScopeMFrom}
	spfResults    = []SPFResult{SPFNone, SPFNeutral, SPFPass, SPFFail, SPFSoftfail, SPFTempError, SPFPermError}
)

// older SPF implementations report temperror as "unknown" and permerror as "error"
var spfLegacyResults = map[string]SPFResult{
	"unknown": SPFTempError,
	"error":   SPFPermError,
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseEnum maps raw onto one of the allowed values
func parseEnum[T ~string](raw string, allowed []T) (T, error) {
	v := normalizeToken(raw)
	for _, a := range allowed {
		if string(a) == v {
			return a, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w %q", ErrInvalidValue, raw)
}

// ParseOverrideType never fails. Missing or unknown values map to
// OverrideOther and the second return value reports whether raw was
// a known type.
func ParseOverrideType(raw string) (OverrideType, bool) {
	if normalizeToken(raw) == "" {
		return OverrideOther, true
	}
	t, err := parseEnum(raw, overrideTypes)
	if err != nil {
		return OverrideOther, false
	}
	return t, true
}

func parseSPFResult(raw string) (SPFResult, error) {
	if r, ok := spfLegacyResults[normalizeToken(raw)]; ok {
		return r, nil
	}
	return parseEnum(raw, spfResults)
}
