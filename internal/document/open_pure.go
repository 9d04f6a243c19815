package document

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PureOpener implements Opener without cgo using ledongthuc/pdf.
type PureOpener struct{}

func (PureOpener) Open(data []byte) (Doc, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return pureDoc{r}, nil
}

type pureDoc struct{ r *pdf.Reader }

func (d pureDoc) NumPage() int { return d.r.NumPage() }

// Page is zero-based like the other engines; the reader counts from one.
func (d pureDoc) Page(i int) (Page, error) {
	p := d.r.Page(i + 1)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d not found", i+1)
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return nil, err
	}
	return textPage(text), nil
}

func (pureDoc) Close() error { return nil }
