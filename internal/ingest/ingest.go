package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// MIMEPDF is the only content type accepted for extraction.
	MIMEPDF = "application/pdf"

	// DefaultMinTextLength is the shortest extracted text considered usable.
	DefaultMinTextLength = 10

	// maxInputSize is the maximum allowed size for an uploaded file (25 MB).
	maxInputSize = 25 * 1024 * 1024
)

var (
	ErrNotPDF           = errors.New("only PDF files are supported")
	ErrUnreadable       = errors.New("could not parse PDF")
	ErrEncrypted        = errors.New("PDF is password protected")
	ErrInsufficientText = errors.New("PDF has too little extractable text")
)

// Error records which extraction step failed for a given file.
type Error struct {
	File string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Upload is a file handed to the extractor: its name, declared or sniffed
// content type and raw bytes.
type Upload struct {
	Name     string
	MIMEType string
	Data     []byte
}

// IsPDF reports whether the upload's content type is a PDF.
func (u Upload) IsPDF() bool {
	mt := mimetype.Lookup(u.MIMEType)
	if mt != nil {
		return mt.Is(MIMEPDF)
	}
	return u.MIMEType == MIMEPDF
}

// Size is the length of the upload in bytes.
func (u Upload) Size() int64 {
	return int64(len(u.Data))
}

// Document is the text extracted from one upload.
type Document struct {
	Name  string
	Size  int64
	Pages int
	Text  string
}

type Extractor interface {
	Extract(ctx context.Context, u Upload) (*Document, error)
}

// NewUpload wraps in-memory bytes, sniffing the content type from the data.
func NewUpload(name string, data []byte) Upload {
	return Upload{
		Name:     name,
		MIMEType: mimetype.Detect(data).String(),
		Data:     data,
	}
}

// ReadUpload loads a file from disk. The content type comes from the file's
// bytes, not its extension.
func ReadUpload(path string) (Upload, error) {
	if err := validateFile(path); err != nil {
		return Upload{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Upload{}, fmt.Errorf("could not read file %s: %w", path, err)
	}
	return NewUpload(filepath.Base(path), data), nil
}

// UserMessage maps an extraction error to the text shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotPDF):
		return "Only PDF files are supported."
	case errors.Is(err, ErrInsufficientText):
		return "This PDF seems to have very little extractable text."
	case errors.Is(err, ErrUnreadable), errors.Is(err, ErrEncrypted):
		return "Could not parse PDF. It might be password protected or corrupted."
	default:
		return err.Error()
	}
}

// FormatSize renders a byte count the way the document header shows it,
// e.g. "0 Bytes", "512 Bytes", "1.5 KB".
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	const k = 1024.0
	sizes := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(k)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	v := math.Round(float64(n)/math.Pow(k, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizes[i]
}

func validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > maxInputSize {
		return fmt.Errorf("%s is too large (%d MB, max %d MB)", path, info.Size()/(1024*1024), maxInputSize/(1024*1024))
	}
	return nil
}
