package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/docchat/internal/progress"
)

var tracer = otel.Tracer("docchat/ingest")

// pageSource is the subset of *pdf.Reader the extractor walks.
type pageSource interface {
	NumPage() int
	PageText(i int) (text string, ok bool, err error)
}

type pdfPages struct {
	r *pdf.Reader
}

func (p pdfPages) NumPage() int { return p.r.NumPage() }

func (p pdfPages) PageText(i int) (string, bool, error) {
	page := p.r.Page(i)
	if page.V.IsNull() {
		return "", false, nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// PDFExtractor pulls plain text out of PDF uploads.
type PDFExtractor struct {
	MinTextLength int
	OnProgress    progress.Callback
}

func NewPDFExtractor(minText int, onProgress progress.Callback) *PDFExtractor {
	if minText <= 0 {
		minText = DefaultMinTextLength
	}
	if onProgress == nil {
		onProgress = progress.NopCallback
	}
	return &PDFExtractor{MinTextLength: minText, OnProgress: onProgress}
}

func (p *PDFExtractor) Extract(ctx context.Context, u Upload) (doc *Document, err error) {
	ctx, span := tracer.Start(ctx, "ingest.extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("file", u.Name),
		attribute.String("mime", u.MIMEType),
		attribute.Int64("size", u.Size()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "extract failed")
		}
	}()

	if !u.IsPDF() {
		return nil, &Error{File: u.Name, Err: ErrNotPDF}
	}

	src, err := openPDF(u.Data)
	if err != nil {
		return nil, &Error{File: u.Name, Err: err}
	}

	text, pages, err := p.collect(ctx, src)
	if err != nil {
		return nil, &Error{File: u.Name, Err: err}
	}

	minText := p.MinTextLength
	if minText <= 0 {
		minText = DefaultMinTextLength
	}
	chars := utf8.RuneCountInString(text)
	if chars < minText {
		return nil, &Error{File: u.Name, Err: ErrInsufficientText}
	}

	span.SetAttributes(attribute.Int("pages", pages), attribute.Int("chars", chars))
	return &Document{
		Name:  u.Name,
		Size:  u.Size(),
		Pages: pages,
		Text:  text,
	}, nil
}

// openPDF parses the document structure. The PDF library reports malformed
// input by panicking, so the panic is turned into ErrUnreadable.
func openPDF(data []byte) (src pageSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			src = nil
			err = fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return pdfPages{r: r}, nil
}

// collect concatenates page text in page order, one line break per page.
// Pages the library cannot decode are skipped; a document where every page
// fails is unreadable.
func (p *PDFExtractor) collect(ctx context.Context, src pageSource) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	onProgress := p.OnProgress
	if onProgress == nil {
		onProgress = progress.NopCallback
	}

	var sb strings.Builder
	numPages := src.NumPage()
	failed := 0

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		pageText, ok, perr := src.PageText(i)
		onProgress(progress.PageEvent(i, numPages))
		if perr != nil {
			failed++
			continue
		}
		if !ok {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	if numPages > 0 && failed == numPages {
		return "", 0, fmt.Errorf("%w: no page could be decoded", ErrUnreadable)
	}
	return strings.TrimSpace(sb.String()), numPages, nil
}
