package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/docchat/internal/progress"
)

// buildPDF assembles a minimal single-font PDF with one text line per page,
// computing the xref offsets so the reader can resolve every object.
func buildPDF(pages ...string) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestExtractJoinsPagesInOrder(t *testing.T) {
	var events []progress.Event
	ex := NewPDFExtractor(0, func(e progress.Event) { events = append(events, e) })

	u := NewUpload("report.pdf", buildPDF("Quarterly revenue report", "Q4 revenue was 120"))
	require.True(t, u.IsPDF())

	doc, err := ex.Extract(context.Background(), u)
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", doc.Name)
	assert.Equal(t, 2, doc.Pages)
	assert.Equal(t, u.Size(), doc.Size)

	first := strings.Index(doc.Text, "Quarterly revenue report")
	second := strings.Index(doc.Text, "Q4 revenue was 120")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)
	assert.Contains(t, doc.Text[first:second], "\n")

	require.Len(t, events, 2)
	assert.Equal(t, 2, events[1].Page)
	assert.InDelta(t, 1.0, events[1].Percent, 1e-9)
}

func TestExtractRejectsNonPDF(t *testing.T) {
	ex := NewPDFExtractor(0, nil)
	_, err := ex.Extract(context.Background(), NewUpload("notes.txt", []byte("just some plain text notes")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPDF)
	assert.Equal(t, "Only PDF files are supported.", UserMessage(err))

	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "notes.txt", ierr.File)
}

func TestExtractInsufficientText(t *testing.T) {
	tests := []struct {
		name   string
		page   string
		reject bool
	}{
		{name: "two letters", page: "Hi", reject: true},
		{name: "six accented characters", page: "\xe9\xe9\xe9\xe9\xe9\xe9", reject: true},
		{name: "nine characters", page: "Quarterly", reject: true},
		{name: "ten characters", page: "Revenue Q4", reject: false},
	}

	ex := NewPDFExtractor(0, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ex.Extract(context.Background(), NewUpload("tiny.pdf", buildPDF(tt.page)))
			if !tt.reject {
				require.NoError(t, err)
				assert.Equal(t, "Revenue Q4", doc.Text)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInsufficientText)
			assert.Equal(t, "This PDF seems to have very little extractable text.", UserMessage(err))
		})
	}
}

func TestExtractCorruptDocument(t *testing.T) {
	ex := NewPDFExtractor(0, nil)
	u := Upload{Name: "broken.pdf", MIMEType: MIMEPDF, Data: []byte("%PDF-1.4\nthis is not a real document")}
	_, err := ex.Extract(context.Background(), u)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadable)
	assert.Contains(t, UserMessage(err), "password protected or corrupted")
}

type fakePages struct {
	texts []string
	errs  map[int]error
	null  map[int]bool
}

func (f fakePages) NumPage() int { return len(f.texts) }

func (f fakePages) PageText(i int) (string, bool, error) {
	if err := f.errs[i]; err != nil {
		return "", false, err
	}
	if f.null[i] {
		return "", false, nil
	}
	return f.texts[i-1], true, nil
}

func TestCollect(t *testing.T) {
	ex := NewPDFExtractor(0, nil)

	t.Run("skips null and failing pages", func(t *testing.T) {
		src := fakePages{
			texts: []string{"one", "two", "three", "four"},
			errs:  map[int]error{2: errors.New("bad font")},
			null:  map[int]bool{3: true},
		}
		text, pages, err := ex.collect(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, "one\nfour", text)
		assert.Equal(t, 4, pages)
	})

	t.Run("all pages failing is unreadable", func(t *testing.T) {
		src := fakePages{
			texts: []string{"one"},
			errs:  map[int]error{1: errors.New("bad stream")},
		}
		_, _, err := ex.collect(context.Background(), src)
		assert.ErrorIs(t, err, ErrUnreadable)
	})

	t.Run("cancelled context stops extraction", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := ex.collect(ctx, fakePages{texts: []string{"one"}})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestReadUploadSniffsContent(t *testing.T) {
	dir := t.TempDir()

	disguised := filepath.Join(dir, "slides.pdf")
	require.NoError(t, os.WriteFile(disguised, []byte("plain text pretending to be a pdf"), 0o644))
	u, err := ReadUpload(disguised)
	require.NoError(t, err)
	assert.Equal(t, "slides.pdf", u.Name)
	assert.False(t, u.IsPDF())

	real := filepath.Join(dir, "report")
	require.NoError(t, os.WriteFile(real, buildPDF("Quarterly revenue report"), 0o644))
	u, err = ReadUpload(real)
	require.NoError(t, err)
	assert.True(t, u.IsPDF())

	_, err = ReadUpload(dir)
	assert.Error(t, err)
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5 MB"},
		{1288490189, "1.2 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.n), "FormatSize(%d)", tt.n)
	}
}
