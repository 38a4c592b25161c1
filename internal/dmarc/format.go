package dmarc

import (
	"fmt"
	"strings"
	"time"
)

func (d DateRange) String() string {
	return fmt.Sprintf("%s to %s", d.Begin.Format(time.RFC3339), d.End.Format(time.RFC3339))
}

func (r DKIMAuthResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (d=%s", r.Result, r.Domain)
	if r.Selector != "" {
		fmt.Fprintf(&b, ", selector=%s", r.Selector)
	}
	if r.HumanResult != "" {
		fmt.Fprintf(&b, ", human_result=%s", r.HumanResult)
	}
	b.WriteString(")")
	return b.String()
}

func (r SPFAuthResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (d=%s", r.Result, r.Domain)
	if r.Scope != "" {
		fmt.Fprintf(&b, ", scope=%s", r.Scope)
	}
	b.WriteString(")")
	return b.String()
}

func (r PolicyOverrideReason) String() string {
	s := string(r.Type)
	if r.Raw != "" {
		s = fmt.Sprintf("%s[%s]", s, r.Raw)
	}
	if r.Comment != "" {
		s = fmt.Sprintf("%s (%s)", s, r.Comment)
	}
	return s
}
