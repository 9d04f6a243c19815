package dispatcher

import (
	"context"
	"image"
	"time"

	"github.com/local/medgateway/internal/ai"
	"github.com/local/medgateway/internal/document"
	"github.com/local/medgateway/internal/imagerender"
)

// User-facing messages.
const (
	MsgEmptyMessage   = "Message vide"
	MsgNoPDF          = "Aucun fichier PDF fourni."
	MsgNoTextInPDF    = "Aucun texte trouvé dans le PDF."
	MsgPDFError       = "Erreur lors de l'analyse du PDF : "
	MsgNoImage        = "Aucun fichier image fourni."
	MsgImageOpenError = "Impossible d'ouvrir l'image : "
	MsgImageTimeout   = "Le modèle a mis trop de temps à répondre. Veuillez réessayer."
	MsgChatTimeout    = "Le modèle a mis trop de temps à répondre. Veuillez réessayer."
)

// Form defaults for image analysis.
const (
	DefaultTaskPrompt = "<MEDICAL_ANALYSIS>"
	DefaultTextInput  = "Analyze this medical image and describe what you see."
)

// TextGenerator runs one bounded text-generation call.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, limit time.Duration) ai.Outcome
}

// VisionAnalyzer runs task-directed inference on a bitmap.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, img image.Image, task, aux string) ai.Outcome
}

// Capabilities reports which backends initialized at startup.
type Capabilities interface {
	IsVisionAvailable() bool
	IsTextAvailable() bool
}

// Extractor turns document bytes into text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// Options configures the Dispatcher.
type Options struct {
	Text         TextGenerator
	Vision       VisionAnalyzer
	Capabilities Capabilities
	Extractor    Extractor
	// DecodeImage defaults to imagerender.Decode.
	DecodeImage func([]byte) (image.Image, error)
	// ChatTimeout <= 0 leaves chat bounded only by the request context.
	ChatTimeout time.Duration
	TextTimeout time.Duration
	MaxChars    int
}

// Dispatcher selects a backend per request and falls back from vision to
// text when vision is unavailable or fails.
type Dispatcher struct {
	text        TextGenerator
	vision      VisionAnalyzer
	caps        Capabilities
	extractor   Extractor
	decode      func([]byte) (image.Image, error)
	chatTimeout time.Duration
	textTimeout time.Duration
	maxChars    int
}

func New(opts Options) *Dispatcher {
	if opts.DecodeImage == nil {
		opts.DecodeImage = imagerender.Decode
	}
	if opts.Extractor == nil {
		opts.Extractor = document.NewExtractor(document.EngineFitz)
	}
	if opts.TextTimeout <= 0 {
		opts.TextTimeout = 60 * time.Second
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 4000
	}
	return &Dispatcher{
		text:        opts.Text,
		vision:      opts.Vision,
		caps:        opts.Capabilities,
		extractor:   opts.Extractor,
		decode:      opts.DecodeImage,
		chatTimeout: opts.ChatTimeout,
		textTimeout: opts.TextTimeout,
		maxChars:    opts.MaxChars,
	}
}

func (d *Dispatcher) visionAvailable() bool {
	return d.vision != nil && d.caps != nil && d.caps.IsVisionAvailable()
}
