package document

import (
	fitz "github.com/gen2brain/go-fitz"
)

// FitzOpener implements Opener with MuPDF through go-fitz.
type FitzOpener struct{}

func (FitzOpener) Open(data []byte) (Doc, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return fitzDoc{doc}, nil
}

type fitzDoc struct{ *fitz.Document }

func (d fitzDoc) Page(i int) (Page, error) {
	text, err := d.Document.Text(i)
	if err != nil {
		return nil, err
	}
	return textPage(text), nil
}

type textPage string

func (p textPage) Text() (string, error) { return string(p), nil }
func (textPage) Close()                  {}
