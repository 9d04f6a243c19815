package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind groups uploads by the pipeline that can handle them.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindText    Kind = "text"
	KindUnknown Kind = "unknown"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
	// ExtensionMismatch is set when the client's filename disagrees with the magic bytes.
	ExtensionMismatch bool
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// DetectBytes classifies an upload by its magic bytes. The client-supplied
// filename is only compared against the result, never trusted.
func (d *Detector) DetectBytes(data []byte, filename string) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info, mtype)

	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && info.Kind != KindUnknown {
		info.ExtensionMismatch = !extensionMatches(mtype, ext)
	}

	log.Debug().
		Str("mime", info.MIMEType).
		Str("kind", string(info.Kind)).
		Str("file", filename).
		Bool("ext_mismatch", info.ExtensionMismatch).
		Msg("detected file type")
	return info
}

func extensionMatches(mtype *mimetype.MIME, ext string) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Extension() == ext {
			return true
		}
	}
	switch ext {
	case ".jpeg", ".jpe":
		return mtype.Is("image/jpeg")
	case ".tif":
		return mtype.Is("image/tiff")
	}
	return false
}

// classify determines which pipeline can consume the payload
func (d *Detector) classify(info *FileTypeInfo, mtype *mimetype.MIME) {
	switch {
	case mtype.Is("application/pdf"):
		info.Kind = KindPDF
		info.Description = "PDF document"

	case strings.HasPrefix(info.MIMEType, "image/"):
		info.Kind = KindImage
		info.Description = "Image file"

	case strings.HasPrefix(info.MIMEType, "text/"):
		info.Kind = KindText
		info.Description = "Plain text file"

	default:
		info.Kind = KindUnknown
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
