package dmarc

import (
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReport = `<?xml version="1.0" encoding="UTF-8" ?>
<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <email>noreply-dmarc-support@google.com</email>
    <extra_contact_info>https://support.google.com/a/answer/2466580</extra_contact_info>
    <report_id>1</report_id>
    <date_range>
      <begin>1700000000</begin>
      <end>1700086399</end>
    </date_range>
  </report_metadata>
  <policy_published>
    <domain>example.com</domain>
    <adkim>r</adkim>
    <aspf>s</aspf>
    <p>reject</p>
    <pct>100</pct>
  </policy_published>
  <record>
    <row>
      <source_ip>192.0.2.1</source_ip>
      <count>2</count>
      <policy_evaluated>
        <disposition>none</disposition>
        <dkim>pass</dkim>
        <spf>fail</spf>
      </policy_evaluated>
    </row>
    <identifiers>
      <header_from>example.com</header_from>
    </identifiers>
    <auth_results>
      <dkim>
        <domain>example.com</domain>
        <result>pass</result>
        <selector>s1</selector>
      </dkim>
      <spf>
        <domain>bounce.example.com</domain>
        <result>softfail</result>
      </spf>
    </auth_results>
  </record>
</feedback>
`

func mutate(t *testing.T, old, new string) []byte {
	t.Helper()
	require.Contains(t, testReport, old)
	return []byte(strings.Replace(testReport, old, new, 1))
}

func TestParse(t *testing.T) {
	t.Parallel()

	f, err := Parse([]byte(testReport))
	require.NoError(t, err)

	expected := &Feedback{
		ReportMetadata: ReportMetadata{
			OrgName:          "google.com",
			Email:            "noreply-dmarc-support@google.com",
			ExtraContactInfo: "https://support.google.com/a/answer/2466580",
			ReportID:         "1",
			DateRange: DateRange{
				Begin: time.Unix(1700000000, 0).UTC(),
				End:   time.Unix(1700086399, 0).UTC(),
			},
			Errors: []string{},
		},
		PolicyPublished: PolicyPublished{
			Domain: "example.com",
			ADKIM:  AlignmentRelaxed,
			ASPF:   AlignmentStrict,
			P:      DispositionReject,
			SP:     DispositionReject,
			Pct:    100,
			Fo:     "",
		},
		Records: []Record{
			{
				Row: Row{
					SourceIP: netip.MustParseAddr("192.0.2.1"),
					Count:    2,
					PolicyEvaluated: PolicyEvaluated{
						Disposition: DispositionNone,
						DKIM:        DMARCPass,
						SPF:         DMARCFail,
						Reasons:     []PolicyOverrideReason{},
					},
				},
				Identifiers: Identifier{HeaderFrom: "example.com"},
				AuthResults: AuthResult{
					DKIM: []DKIMAuthResult{{Domain: "example.com", Selector: "s1", Result: DKIMPass}},
					SPF:  []SPFAuthResult{{Domain: "bounce.example.com", Result: SPFSoftfail}},
				},
			},
		},
	}
	assert.Equal(t, expected, f)
	assert.Nil(t, f.Version)
}

func TestParseVersion(t *testing.T) {
	t.Parallel()

	f, err := Parse(mutate(t, "<feedback>", "<feedback>\n  <version>1.0</version>"))
	require.NoError(t, err)
	require.NotNil(t, f.Version)
	assert.InDelta(t, 1.0, *f.Version, 0.0001)
}

func TestParseSubdomainPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  []byte
		sp   Disposition
	}{
		{"missing inherits p", []byte(testReport), DispositionReject},
		{"empty inherits p", mutate(t, "<pct>", "<sp></sp><pct>"), DispositionReject},
		{"explicit", mutate(t, "<pct>", "<sp>quarantine</sp><pct>"), DispositionQuarantine},
		{"case and whitespace", mutate(t, "<pct>", "<sp> None </sp><pct>"), DispositionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse(tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.sp, f.PolicyPublished.SP)
			assert.Equal(t, DispositionReject, f.PolicyPublished.P)
		})
	}
}

func TestParseFailureOptions(t *testing.T) {
	t.Parallel()

	f, err := Parse([]byte(testReport))
	require.NoError(t, err)
	assert.Equal(t, "", f.PolicyPublished.Fo)

	f, err = Parse(mutate(t, "<pct>", "<fo>1:d</fo><pct>"))
	require.NoError(t, err)
	assert.Equal(t, "1:d", f.PolicyPublished.Fo)
}

func TestParsePct(t *testing.T) {
	t.Parallel()

	f, err := Parse(mutate(t, "<pct>100</pct>", ""))
	require.NoError(t, err)
	assert.Equal(t, uint8(100), f.PolicyPublished.Pct)

	f, err = Parse(mutate(t, "<pct>100</pct>", "<pct>25</pct>"))
	require.NoError(t, err)
	assert.Equal(t, uint8(25), f.PolicyPublished.Pct)

	for _, pct := range []string{"101", "-1", "abc", "300"} {
		_, err = Parse(mutate(t, "<pct>100</pct>", "<pct>"+pct+"</pct>"))
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr, pct)
		assert.Equal(t, "feedback/policy_published/pct", schemaErr.Path)
		assert.ErrorIs(t, err, ErrInvalidValue)
	}
}

func TestParseDateRangeAlias(t *testing.T) {
	t.Parallel()

	correct, err := Parse([]byte(testReport))
	require.NoError(t, err)

	doc := strings.ReplaceAll(testReport, "date_range>", "data_range>")
	require.NotEqual(t, testReport, doc)
	misspelled, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, correct.ReportMetadata.DateRange, misspelled.ReportMetadata.DateRange)
	assert.Equal(t, correct, misspelled)
}

func TestParseOptionalElements(t *testing.T) {
	t.Parallel()

	doc := mutate(t, "<header_from>example.com</header_from>",
		"<envelope_to>example.net</envelope_to><envelope_from>bounce.example.com</envelope_from><header_from>example.com</header_from>")
	f, err := Parse(doc)
	require.NoError(t, err)
	id := f.Records[0].Identifiers
	assert.Equal(t, "example.net", id.EnvelopeTo)
	assert.Equal(t, "bounce.example.com", id.EnvelopeFrom)

	doc = mutate(t, "<result>softfail</result>", "<scope>mfrom</scope><result>softfail</result>")
	f, err = Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, SPFScopeMFrom, f.Records[0].AuthResults.SPF[0].Scope)

	doc = mutate(t, "<selector>s1</selector>", "<human_result>good signature</human_result>")
	f, err = Parse(doc)
	require.NoError(t, err)
	dkim := f.Records[0].AuthResults.DKIM[0]
	assert.Equal(t, "", dkim.Selector)
	assert.Equal(t, "good signature", dkim.HumanResult)

	doc = mutate(t, "</date_range>", "</date_range><error>first</error><error>second</error>")
	f, err = Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, f.ReportMetadata.Errors)
}

func TestParseWithoutDKIMResults(t *testing.T) {
	t.Parallel()

	doc := mutate(t, `<dkim>
        <domain>example.com</domain>
        <result>pass</result>
        <selector>s1</selector>
      </dkim>`, "")
	f, err := Parse(doc)
	require.NoError(t, err)
	assert.Empty(t, f.Records[0].AuthResults.DKIM)
	assert.Len(t, f.Records[0].AuthResults.SPF, 1)
}

func TestParseLegacySPFResults(t *testing.T) {
	t.Parallel()

	f, err := Parse(mutate(t, "<result>softfail</result>", "<result>unknown</result>"))
	require.NoError(t, err)
	assert.Equal(t, SPFTempError, f.Records[0].AuthResults.SPF[0].Result)

	f, err = Parse(mutate(t, "<result>softfail</result>", "<result>error</result>"))
	require.NoError(t, err)
	assert.Equal(t, SPFPermError, f.Records[0].AuthResults.SPF[0].Result)
}

func TestParseOverrideReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		reason string
		want   PolicyOverrideReason
	}{
		{"empty", "<reason><type></type><comment></comment></reason>", PolicyOverrideReason{Type: OverrideOther}},
		{"missing type", "<reason><comment>some text</comment></reason>", PolicyOverrideReason{Type: OverrideOther, Comment: "some text"}},
		{"other", "<reason><type>other</type><comment>some text</comment></reason>", PolicyOverrideReason{Type: OverrideOther, Comment: "some text"}},
		{"forwarded", "<reason> <type>forwarded</type> </reason>", PolicyOverrideReason{Type: OverrideForwarded}},
		{"upper case", "<reason><type>LOCAL_POLICY</type></reason>", PolicyOverrideReason{Type: OverrideLocalPolicy}},
		{"unknown", "<reason><type>arc_override</type><comment>arc=pass</comment></reason>", PolicyOverrideReason{Type: OverrideOther, Comment: "arc=pass", Raw: "arc_override"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse(mutate(t, "</policy_evaluated>", tt.reason+"</policy_evaluated>"))
			require.NoError(t, err)
			assert.Equal(t, []PolicyOverrideReason{tt.want}, f.Records[0].Row.PolicyEvaluated.Reasons)
		})
	}
}

func TestParseSchemaErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		old   string
		new   string
		path  string
		cause error
	}{
		{"missing org name", "<org_name>google.com</org_name>", "", "feedback/report_metadata/org_name", ErrMissingElement},
		{"missing report id", "<report_id>1</report_id>", "", "feedback/report_metadata/report_id", ErrMissingElement},
		{"missing date range", "<date_range>\n      <begin>1700000000</begin>\n      <end>1700086399</end>\n    </date_range>", "", "feedback/report_metadata/date_range", ErrMissingElement},
		{"invalid begin", "<begin>1700000000</begin>", "<begin>yesterday</begin>", "feedback/report_metadata/date_range/begin", ErrInvalidValue},
		{"missing policy", "<p>reject</p>", "<policy>reject</policy>", "feedback/policy_published/p", ErrMissingElement},
		{"invalid p", "<p>reject</p>", "<p>drop</p>", "feedback/policy_published/p", ErrInvalidValue},
		{"invalid sp", "<pct>", "<sp>drop</sp><pct>", "feedback/policy_published/sp", ErrInvalidValue},
		{"invalid adkim", "<adkim>r</adkim>", "<adkim>relaxed</adkim>", "feedback/policy_published/adkim", ErrInvalidValue},
		{"invalid ip", "<source_ip>192.0.2.1</source_ip>", "<source_ip>192.0.2</source_ip>", "feedback/record[1]/row/source_ip", ErrInvalidValue},
		{"negative count", "<count>2</count>", "<count>-2</count>", "feedback/record[1]/row/count", ErrInvalidValue},
		{"invalid disposition", "<disposition>none</disposition>", "<disposition>deliver</disposition>", "feedback/record[1]/row/policy_evaluated/disposition", ErrInvalidValue},
		{"invalid dmarc dkim", "<dkim>pass</dkim>", "<dkim>softfail</dkim>", "feedback/record[1]/row/policy_evaluated/dkim", ErrInvalidValue},
		{"missing header from", "<header_from>example.com</header_from>", "", "feedback/record[1]/identifiers/header_from", ErrMissingElement},
		{"invalid dkim result", "<result>pass</result>", "<result>maybe</result>", "feedback/record[1]/auth_results/dkim[1]/result", ErrInvalidValue},
		{"invalid spf scope", "<result>softfail</result>", "<scope>rcpt</scope><result>softfail</result>", "feedback/record[1]/auth_results/spf[1]/scope", ErrInvalidValue},
		{"missing spf", "<spf>\n        <domain>bounce.example.com</domain>\n        <result>softfail</result>\n      </spf>", "", "feedback/record[1]/auth_results/spf", ErrMissingElement},
		{"invalid version", "<feedback>", "<feedback><version>one</version>", "feedback/version", ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(mutate(t, tt.old, tt.new))
			require.Error(t, err)
			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, tt.path, schemaErr.Path)
			assert.ErrorIs(t, err, tt.cause)
			assert.Contains(t, err.Error(), tt.path)
		})
	}
}

func TestParseRecordCount(t *testing.T) {
	t.Parallel()

	start := strings.Index(testReport, "<record>")
	end := strings.Index(testReport, "</record>") + len("</record>")
	record := testReport[start:end]

	f, err := Parse(mutate(t, record, record+record))
	require.NoError(t, err)
	assert.Len(t, f.Records, 2)

	_, err = Parse(mutate(t, record, ""))
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "feedback/record", schemaErr.Path)

	second := strings.Replace(record, "<count>2</count>", "<count>x</count>", 1)
	_, err = Parse(mutate(t, record, record+second))
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "feedback/record[2]/row/count", schemaErr.Path)
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{
		"",
		"not xml at all",
		"<feedback><report_metadata>",
		"<report><report_metadata/></report>",
		"<feedback></feedback>",
	} {
		_, err := Parse([]byte(doc))
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr, doc)
		assert.True(t, strings.HasPrefix(schemaErr.Path, "feedback"))
	}
}

func TestParseXSTag(t *testing.T) {
	t.Parallel()

	f, err := Parse(mutate(t, "<feedback>", "<feedback>\n"+xsTag))
	require.NoError(t, err)
	assert.Equal(t, "1", f.ReportMetadata.ReportID)
}

func TestParseCharset(t *testing.T) {
	t.Parallel()

	doc := strings.Replace(testReport, `encoding="UTF-8"`, `encoding="ISO-8859-1"`, 1)
	doc = strings.Replace(doc, "<org_name>google.com</org_name>", "<org_name>M\xfcller GmbH</org_name>", 1)
	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "Müller GmbH", f.ReportMetadata.OrgName)
}

func TestParseIPv6(t *testing.T) {
	t.Parallel()

	f, err := Parse(mutate(t, "<source_ip>192.0.2.1</source_ip>", "<source_ip> 2001:db8::1 </source_ip>"))
	require.NoError(t, err)
	assert.True(t, f.Records[0].Row.SourceIP.Is6())
	assert.Equal(t, "2001:db8::1", f.Records[0].Row.SourceIP.String())
}

func TestSchemaErrorUnwrap(t *testing.T) {
	t.Parallel()

	err := error(&SchemaError{Path: "feedback/record", Err: ErrMissingElement})
	assert.True(t, errors.Is(err, ErrMissingElement))
	assert.Equal(t, "could not parse feedback/record: missing required element", err.Error())
}
