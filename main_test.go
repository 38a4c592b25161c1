package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/firefart/dmarcmbox/internal/config"
	"github.com/firefart/dmarcmbox/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

const exampleReport = `<?xml version="1.0" encoding="UTF-8" ?>
<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <email>noreply-dmarc-support@google.com</email>
    <report_id>1</report_id>
    <date_range><begin>1700000000</begin><end>1700086399</end></date_range>
  </report_metadata>
  <policy_published>
    <domain>example.com</domain>
    <p>reject</p>
    <pct>100</pct>
  </policy_published>
  <record>
    <row>
      <source_ip>192.0.2.1</source_ip>
      <count>3</count>
      <policy_evaluated><disposition>none</disposition><dkim>pass</dkim><spf>pass</spf></policy_evaluated>
    </row>
    <identifiers><header_from>example.com</header_from></identifiers>
    <auth_results><spf><domain>example.com</domain><result>pass</result></spf></auth_results>
  </record>
</feedback>
`

func writeMbox(t *testing.T) string {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("google.com!example.com!1700000000!1700086399.xml")
	require.NoError(t, err)
	_, err = io.WriteString(f, exampleReport)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	mbox := "From noreply-dmarc-support@google.com Tue Nov 14 22:13:20 2023\n" +
		"Subject: Report domain: example.com\n" +
		"Content-Type: application/zip\n" +
		"Content-Transfer-Encoding: base64\n\n" +
		base64.StdEncoding.EncodeToString(buf.Bytes()) + "\n\n" +
		"From someone@example.com Tue Nov 14 22:13:20 2023\n" +
		"Subject: hello\n\njust text\n"

	filename := filepath.Join(t.TempDir(), "reports.mbox")
	require.NoError(t, os.WriteFile(filename, []byte(mbox), 0o600))
	return filename
}

func newTestApp(mode, format string) (*app, *bytes.Buffer) {
	settings := config.Default()
	settings.Mode = mode
	settings.Format = format
	var out bytes.Buffer
	return &app{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		config:  &settings,
		metrics: metrics.New(),
		out:     &out,
	}, &out
}

func TestRunAggregate(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(modeAggregate, "text")
	require.NoError(t, a.run(context.Background(), writeMbox(t), false))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "Timeframe: 2023-11-14T22:13:20Z to 2023-11-15T22:13:19Z", lines[0])
	assert.True(t, strings.HasPrefix(lines[3], "From domain"))
	assert.True(t, strings.HasPrefix(lines[5], "example.com"))
	assert.Contains(t, lines[5], "192.0.2.1")

	assert.InDelta(t, 2, testutil.ToFloat64(a.metrics.MessagesTotal), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(a.metrics.DiagnosticsTotal.WithLabelValues("unsupported")), 0.001)
}

func TestRunList(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(modeList, "text")
	require.NoError(t, a.run(context.Background(), writeMbox(t), false))
	assert.Contains(t, out.String(), "Report ID: 1\n")
	assert.Contains(t, out.String(), "Sub-domain policy: reject\n")

	a, out = newTestApp(modeList, "json")
	require.NoError(t, a.run(context.Background(), writeMbox(t), false))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), `"report_id":"1"`)
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	a, out := newTestApp("table", "text")
	err := a.run(context.Background(), writeMbox(t), false)
	require.ErrorContains(t, err, `unknown mode "table"`)
	assert.Empty(t, out.String())

	a, _ = newTestApp(modeList, "text")
	err = a.run(context.Background(), filepath.Join(t.TempDir(), "missing.mbox"), false)
	require.Error(t, err)
}

func newTestContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String(modeFlagName, modeList, "")
	set.String(formatFlagName, "text", "")
	set.String(configFlagName, "", "")
	set.Bool(imapFlagName, false, "")
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestLoadSettingsFormatCase(t *testing.T) {
	t.Parallel()

	settings, err := loadSettings(newTestContext(t, "--format", "XML", "--mode", "Aggregate"))
	require.NoError(t, err)
	assert.Equal(t, "xml", settings.Format)
	assert.Equal(t, modeAggregate, settings.Mode)

	_, err = loadSettings(newTestContext(t, "--format", "yaml"))
	require.Error(t, err)
}
