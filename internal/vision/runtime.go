package vision

import "context"

// Request is one forward pass through the vision-language model.
type Request struct {
	Prompt    string
	Image     []byte // PNG
	MaxTokens int
}

// Runtime hosts the model. Load is called once at startup; Generate must be
// safe to call after Load succeeded.
type Runtime interface {
	Load(ctx context.Context) error
	Generate(ctx context.Context, req Request) (string, error)
}
