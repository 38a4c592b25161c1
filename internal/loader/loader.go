package loader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/firefart/dmarcmbox/internal/attachment"
	"github.com/firefart/dmarcmbox/internal/dmarc"
	"github.com/firefart/dmarcmbox/internal/mbox"
	"github.com/firefart/dmarcmbox/internal/metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// NoSubject is used as the subject of diagnostics for messages without one
const NoSubject = "<no subject>"

var ErrReadMbox = errors.New("could not read mbox")

// Diagnostic describes a message that was skipped
type Diagnostic struct {
	// Index is the zero based position of the message in its source
	Index   int
	Subject string
	Err     error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("message %d (%s): %v", d.Index, d.Subject, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

type Result struct {
	RunID       string
	Messages    int
	Feedbacks   []dmarc.Feedback
	Diagnostics []Diagnostic
}

// Err returns all diagnostics as a single error or nil if every message
// was parsed
func (r *Result) Err() error {
	var result *multierror.Error
	for _, d := range r.Diagnostics {
		result = multierror.Append(result, d)
	}
	return result.ErrorOrNil()
}

type Loader struct {
	logger  *slog.Logger
	decoder *attachment.Decoder
	metrics *metrics.Collector
}

// New creates a Loader. A nil decoder uses the default attachment formats
// and a nil collector disables metrics.
func New(logger *slog.Logger, decoder *attachment.Decoder, collector *metrics.Collector) *Loader {
	if decoder == nil {
		decoder = attachment.New()
	}
	return &Loader{
		logger:  logger,
		decoder: decoder,
		metrics: collector,
	}
}

func (l *Loader) LoadFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrReadMbox, path, err)
	}
	l.logger.Debug("read mbox", "path", path, "size", humanize.Bytes(uint64(len(data))))
	return l.LoadMbox(ctx, data)
}

func (l *Loader) LoadMbox(ctx context.Context, data []byte) (*Result, error) {
	return l.LoadMessages(ctx, mbox.Split(data))
}

// LoadMessages parses every message of seq. Messages that can not be turned
// into a report are recorded as diagnostics, only a broken message header
// or a canceled context abort the run.
func (l *Loader) LoadMessages(ctx context.Context, seq iter.Seq2[int, []byte]) (*Result, error) {
	result := &Result{
		RunID:       uuid.New().String(),
		Feedbacks:   []dmarc.Feedback{},
		Diagnostics: []Diagnostic{},
	}
	logger := l.logger.With("run_id", result.RunID)

	for index, raw := range seq {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result.Messages++
		if l.metrics != nil {
			l.metrics.MessagesTotal.Inc()
		}

		start := time.Now()
		err := l.loadRaw(logger, result, index, raw)
		if l.metrics != nil {
			l.metrics.ParseDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("finished loading", "messages", result.Messages, "feedbacks", len(result.Feedbacks), "diagnostics", len(result.Diagnostics))
	return result, nil
}

// loadRaw adds the report of a single message to result or records why it
// was skipped. Only a broken header is returned as an error.
func (l *Loader) loadRaw(logger *slog.Logger, result *Result, index int, raw []byte) error {
	msg, err := mbox.ReadMessage(raw)
	if err != nil {
		return fmt.Errorf("message %d: %w", index, err)
	}

	subject, err := msg.Subject()
	if err != nil {
		l.skip(result, Diagnostic{Index: index, Subject: NoSubject, Err: err})
		return nil
	}
	logger.Debug("processing message", "index", index, "subject", subject)

	feedback, err := l.loadMessage(msg)
	if err != nil {
		l.skip(result, Diagnostic{Index: index, Subject: subject, Err: err})
		return nil
	}

	result.Feedbacks = append(result.Feedbacks, *feedback)
	if l.metrics != nil {
		l.metrics.FeedbacksTotal.Inc()
		l.metrics.RecordsTotal.Add(float64(len(feedback.Records)))
	}
	logger.Debug("parsed report", "index", index, "report_id", feedback.ReportMetadata.ReportID, "records", len(feedback.Records))
	return nil
}

// loadMessage decodes and parses the first supported attachment
func (l *Loader) loadMessage(msg *mbox.Message) (*dmarc.Feedback, error) {
	parts, err := msg.Parts()
	if err != nil {
		return nil, err
	}

	for _, p := range parts {
		if !l.decoder.Supports(p.ContentType, p.Body) {
			continue
		}
		l.logger.Debug("found attachment", "content_type", p.ContentType, "filename", p.Filename, "size", humanize.Bytes(uint64(len(p.Body))))
		text, err := l.decoder.Decode(p.ContentType, p.Body)
		if err != nil {
			return nil, err
		}
		return dmarc.Parse([]byte(text))
	}
	return nil, fmt.Errorf("%w: no report attachment in %d parts", attachment.ErrUnsupported, len(parts))
}

func (l *Loader) skip(result *Result, d Diagnostic) {
	result.Diagnostics = append(result.Diagnostics, d)
	if l.metrics != nil {
		l.metrics.DiagnosticsTotal.WithLabelValues(Kind(d.Err)).Inc()
	}
	l.logger.Debug("skipping message", "index", d.Index, "subject", d.Subject, "kind", Kind(d.Err), "error", d.Err)
}

// Kind classifies a per message error
func Kind(err error) string {
	var schemaErr *dmarc.SchemaError
	switch {
	case errors.Is(err, mbox.ErrMissingSubject):
		return "missing_subject"
	case errors.Is(err, mbox.ErrMalformedBody):
		return "malformed_body"
	case errors.Is(err, attachment.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, attachment.ErrArchive):
		return "archive"
	case errors.Is(err, attachment.ErrTextDecode):
		return "text_decode"
	case errors.As(err, &schemaErr):
		return "schema"
	}
	return "other"
}
