package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// Doc abstracts a PDF document for text extraction.
type Doc interface {
	NumPage() int
	Page(i int) (Page, error)
	Close() error
}

// Page abstracts a single PDF page for text extraction.
type Page interface {
	Text() (string, error)
	Close()
}

// Opener abstracts opening PDF bytes into a Doc.
type Opener interface {
	Open(data []byte) (Doc, error)
}

const (
	EngineFitz = "fitz"
	EnginePure = "pure"
)

// PageSeparator joins the text of consecutive pages.
const PageSeparator = "\n\n"

var (
	ErrEmptyDocument = errors.New("empty document")
	ErrNotPDF        = errors.New("payload is not a PDF")
)

// Extractor turns PDF bytes into plain text.
type Extractor struct {
	opener Opener
	engine string
}

// NewExtractor returns an Extractor for the named engine; unknown names use go-fitz.
func NewExtractor(engine string) *Extractor {
	switch engine {
	case EnginePure:
		return &Extractor{opener: PureOpener{}, engine: EnginePure}
	default:
		return &Extractor{opener: FitzOpener{}, engine: EngineFitz}
	}
}

// NewExtractorWithOpener is used by tests and alternate backends.
func NewExtractorWithOpener(o Opener) *Extractor {
	return &Extractor{opener: o, engine: "custom"}
}

func (e *Extractor) Engine() string { return e.engine }

// Extract concatenates the text of every page, separated by a blank line.
// Pages without text contribute an empty string. The caller decides whether
// whitespace-only output counts as "no text".
func (e *Extractor) Extract(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyDocument
	}
	if m := mimetype.Detect(data); !m.Is("application/pdf") {
		return "", fmt.Errorf("%w: detected %s", ErrNotPDF, m.String())
	}

	start := time.Now()
	expected, pcErr := PageCount(data)
	if pcErr != nil {
		log.Warn().Err(pcErr).Str("engine", e.engine).Msg("pdf preflight failed; trying engine anyway")
	}

	doc, err := e.opener.Open(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if pcErr == nil && expected != n {
		log.Debug().Int("pdfcpu_pages", expected).Int("engine_pages", n).Msg("page count mismatch")
	}

	texts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		text, err := pageText(doc, i)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", i+1, err)
		}
		texts = append(texts, text)
	}
	out := strings.Join(texts, PageSeparator)

	log.Debug().
		Str("engine", e.engine).
		Int("pages", n).
		Int("chars", len([]rune(out))).
		Dur("duration", time.Since(start)).
		Msg("extracted document text")
	return out, nil
}

func pageText(doc Doc, i int) (string, error) {
	p, err := doc.Page(i)
	if err != nil {
		return "", err
	}
	defer p.Close()
	return p.Text()
}

// PageCount reads the page tree with pdfcpu without extracting content.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// IsBlank reports whether text has no non-whitespace content.
func IsBlank(text string) bool { return strings.TrimSpace(text) == "" }

// Ellipsis marks text that was cut by Truncate.
const Ellipsis = "..."

// Truncate keeps the first max runes of text and appends Ellipsis when
// anything was cut. Text within budget is returned unchanged, so repeated
// application is stable. A non-positive max disables truncation.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i] + Ellipsis
		}
		n++
	}
	return text
}
