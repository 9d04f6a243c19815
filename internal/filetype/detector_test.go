package filetype

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngData(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestDetectBytes(t *testing.T) {
	d := New()
	cases := []struct {
		name     string
		data     []byte
		filename string
		kind     Kind
		mismatch bool
	}{
		{"pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj"), "ordonnance.pdf", KindPDF, false},
		{"png", pngData(t), "radio.png", KindImage, false},
		{"png named pdf", pngData(t), "radio.pdf", KindImage, true},
		{"text", []byte("bonjour docteur\n"), "note.txt", KindText, false},
		{"no filename", []byte("%PDF-1.4\n"), "", KindPDF, false},
		{"binary", []byte{0x00, 0x01, 0x02, 0x03, 0xfe}, "x.bin", KindUnknown, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			info := d.DetectBytes(c.data, c.filename)
			assert.Equal(t, c.kind, info.Kind)
			assert.Equal(t, c.mismatch, info.ExtensionMismatch)
			assert.NotEmpty(t, info.Description)
		})
	}
}

func TestDetectBytesJPEGAlias(t *testing.T) {
	jpegHeader := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	info := New().DetectBytes(jpegHeader, "scan.jpeg")
	assert.Equal(t, KindImage, info.Kind)
	assert.False(t, info.ExtensionMismatch)
}
