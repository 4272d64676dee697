package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/docchat/internal/completion"
	"github.com/apresai/docchat/internal/ingest"
)

var tracer = otel.Tracer("docchat/session")

// Controller drives a Session for synchronous callers (the ask command and
// the MCP server). The session is guarded by a mutex that is released while
// the extractor or completer runs; the pending flags reject overlapping
// calls with ErrBusy.
type Controller struct {
	mu        sync.Mutex
	sess      *Session
	extractor ingest.Extractor
	completer completion.Completer
	logger    *slog.Logger
}

func NewController(sess *Session, extractor ingest.Extractor, completer completion.Completer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		sess:      sess,
		extractor: extractor,
		completer: completer,
		logger:    logger,
	}
}

// Upload extracts a document and makes it the session's document. On
// failure the session is left empty and the extraction error is returned.
func (c *Controller) Upload(ctx context.Context, u ingest.Upload) (*ingest.Document, error) {
	ctx, span := tracer.Start(ctx, "session.upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("file", u.Name),
		attribute.String("mime_type", u.MIMEType),
		attribute.Int64("size", u.Size()),
	)

	c.mu.Lock()
	x, err := c.sess.BeginExtraction(u)
	c.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload rejected")
		c.logger.WarnContext(ctx, "upload rejected", "file", u.Name, "mime_type", u.MIMEType, "error", err)
		return nil, err
	}

	start := time.Now()
	doc, err := c.extractor.Extract(ctx, u)

	c.mu.Lock()
	c.sess.CompleteExtraction(x, doc, err)
	c.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		c.logger.ErrorContext(ctx, "extraction failed", "file", u.Name, "error", err)
		return nil, err
	}
	c.logger.InfoContext(ctx, "document loaded",
		"file", doc.Name,
		"pages", doc.Pages,
		"chars", len(doc.Text),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return doc, nil
}

// Ask switches the session to mode, submits question and waits for the
// model's entry.
func (c *Controller) Ask(ctx context.Context, question string, mode Mode) (Entry, error) {
	ctx, span := tracer.Start(ctx, "session.ask")
	defer span.End()
	span.SetAttributes(attribute.String("mode", mode.String()))

	c.mu.Lock()
	if c.sess.Pending() {
		c.mu.Unlock()
		return Entry{}, ErrBusy
	}
	prev := c.sess.Mode()
	c.sess.SetMode(mode)
	turn, err := c.sess.BeginTurn(question)
	if err != nil {
		// A rejected turn leaves the session as it was.
		c.sess.SetMode(prev)
	}
	c.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn rejected")
		return Entry{}, err
	}

	start := time.Now()
	response, err := c.completer.Complete(ctx, turn.Request)

	c.mu.Lock()
	entry, appended := c.sess.SettleTurn(turn, response, err)
	c.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		c.logger.ErrorContext(ctx, "completion failed", "mode", mode.String(), "error", err)
		return Entry{}, err
	}
	if !appended {
		return Entry{}, errors.New("session was reset while the request was in flight")
	}
	span.SetAttributes(attribute.String("kind", string(entry.Kind)))
	c.logger.InfoContext(ctx, "turn settled",
		"mode", mode.String(),
		"kind", string(entry.Kind),
		"response_chars", len(response),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return entry, nil
}

// Transcript returns the entries visible in mode.
func (c *Controller) Transcript(mode Mode) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.VisibleIn(mode)
}

// Document returns the loaded document, or nil.
func (c *Controller) Document() *ingest.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Document()
}

func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.Reset()
	c.logger.Info("session reset")
}
