package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/firefart/dmarcmbox/internal/aggregate"
	"github.com/firefart/dmarcmbox/internal/attachment"
	"github.com/firefart/dmarcmbox/internal/config"
	"github.com/firefart/dmarcmbox/internal/dns"
	"github.com/firefart/dmarcmbox/internal/imap"
	"github.com/firefart/dmarcmbox/internal/loader"
	"github.com/firefart/dmarcmbox/internal/metrics"
	"github.com/firefart/dmarcmbox/internal/render"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli"
)

const (
	modeList      = "list"
	modeAggregate = "aggregate"
)

const (
	modeFlagName        = "mode"
	formatFlagName      = "format"
	configFlagName      = "config"
	resolveFlagName     = "resolve"
	imapFlagName        = "imap"
	metricsFileFlagName = "metrics-file"
	debugFlagName       = "debug"
)

type app struct {
	logger  *slog.Logger
	config  *config.Configuration
	metrics *metrics.Collector
	render  render.Options
	out     io.Writer
}

func newLogger(w *os.File, debug bool) *slog.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	formatter := log.JSONFormatter
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		formatter = log.TextFormatter
	}
	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Formatter:       formatter,
	})
	return slog.New(handler)
}

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = "dmarcmbox"
	cliApp.Usage = "list and aggregate DMARC reports stored in an mbox file"
	cliApp.ArgsUsage = "<mbox-path>"
	cliApp.HideVersion = true
	cliApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  modeFlagName + ", m",
			Value: modeList,
			Usage: "output mode: list or aggregate",
		},
		cli.StringFlag{
			Name:  formatFlagName + ", f",
			Value: render.FormatText,
			Usage: "output format: text, json or xml",
		},
		cli.StringFlag{
			Name:  configFlagName + ", c",
			Usage: "config file to use",
		},
		cli.BoolFlag{
			Name:  resolveFlagName,
			Usage: "resolve the source IPs of all records",
		},
		cli.BoolFlag{
			Name:  imapFlagName,
			Usage: "read the reports from the IMAP folder in the config file instead of an mbox file",
		},
		cli.StringFlag{
			Name:  metricsFileFlagName,
			Usage: "write run metrics in the prometheus text format to this file",
		},
		cli.BoolFlag{
			Name:  debugFlagName,
			Usage: "print debug output",
		},
	}
	cliApp.Action = run

	if err := cliApp.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := newLogger(os.Stderr, c.Bool(debugFlagName))

	path := c.Args().First()
	if path == "" && !c.Bool(imapFlagName) {
		return cli.ShowAppHelp(c)
	}

	settings, err := loadSettings(c)
	if err != nil {
		logger.Error("could not load config", "error", err)
		return cli.NewExitError("", 1)
	}

	// trap Ctrl+C and call cancel on the context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	a := app{
		logger:  logger,
		config:  settings,
		metrics: metrics.New(),
		out:     os.Stdout,
	}
	if settings.Format == render.FormatText {
		a.render.Color = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}
	if c.Bool(resolveFlagName) {
		a.render.Resolver = dns.NewCachedResolver(ctx, settings.DnsServer, settings.DnsConnectTimeout.Duration, settings.DnsTimeout.Duration, settings.DnsCacheTimeout.Duration, logger)
	}

	err = a.run(ctx, path, c.Bool(imapFlagName))

	if metricsFile := c.String(metricsFileFlagName); metricsFile != "" {
		if err := a.metrics.WriteToTextfile(metricsFile); err != nil {
			logger.Error("could not write metrics", "error", err)
		}
	}

	if err != nil {
		logger.Error(err.Error())
		return cli.NewExitError("", 1)
	}
	return nil
}

// loadSettings merges the defaults, the config file and the command line
func loadSettings(c *cli.Context) (*config.Configuration, error) {
	settings := config.Default()
	if configFile := c.String(configFlagName); configFile != "" {
		s, err := config.GetConfig(settings, configFile)
		if err != nil {
			return nil, fmt.Errorf("could not read %s: %w", configFile, err)
		}
		settings = *s
	}
	if c.IsSet(modeFlagName) {
		settings.Mode = c.String(modeFlagName)
	}
	if c.IsSet(formatFlagName) {
		settings.Format = c.String(formatFlagName)
	}
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if c.Bool(imapFlagName) {
		if err := settings.ValidateIMAP(); err != nil {
			return nil, err
		}
	}
	return &settings, nil
}

func (a *app) load(ctx context.Context, path string, fromIMAP bool) (*loader.Result, error) {
	decoder := attachment.New()
	decoder.MaxSize = a.config.MaxAttachmentSize
	decoder.SniffOctetStream = a.config.SniffOctetStream
	l := loader.New(a.logger, decoder, a.metrics)

	if fromIMAP {
		messages, err := imap.Load(ctx, a.config.ImapConfig, a.config.BatchSize, a.logger)
		if err != nil {
			return nil, fmt.Errorf("could not read reports from imap: %w", err)
		}
		return l.LoadMessages(ctx, slices.All(messages))
	}
	return l.LoadFile(ctx, path)
}

func (a *app) run(ctx context.Context, path string, fromIMAP bool) error {
	result, err := a.load(ctx, path, fromIMAP)
	if err != nil {
		return err
	}

	for _, d := range result.Diagnostics {
		a.logger.Warn("skipped message", "index", d.Index, "subject", d.Subject, "kind", loader.Kind(d.Err), "error", d.Err)
	}
	a.logger.Info("loaded reports", "run_id", result.RunID, "messages", result.Messages, "reports", len(result.Feedbacks), "skipped", len(result.Diagnostics))

	switch a.config.Mode {
	case modeList:
		return a.list(result)
	case modeAggregate:
		return a.aggregate(result)
	default:
		return fmt.Errorf("unknown mode %q", a.config.Mode)
	}
}

func (a *app) list(result *loader.Result) error {
	if a.config.Format != render.FormatText {
		return render.Export(a.out, a.config.Format, result.Feedbacks, a.render)
	}
	for i := range result.Feedbacks {
		if err := render.Feedback(a.out, &result.Feedbacks[i], a.render); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) aggregate(result *loader.Result) error {
	dedup, err := aggregate.ParseDedupMode(a.config.Dedup)
	if err != nil {
		return err
	}
	opts := aggregate.Options{Dedup: dedup}

	if a.config.Format != render.FormatText {
		return render.Export(a.out, a.config.Format, aggregate.Reduce(result.Feedbacks, opts), a.render)
	}
	return render.Summary(a.out, aggregate.Aggregate(result.Feedbacks, opts), a.render)
}
