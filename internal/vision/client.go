package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/medgateway/internal/ai"
	"github.com/local/medgateway/internal/imagerender"
	"github.com/local/medgateway/internal/limiter"
	"github.com/local/medgateway/internal/logger"
	"github.com/local/medgateway/internal/metrics"
)

// Options configures the Client.
type Options struct {
	Runtime   Runtime
	Gate      *limiter.Gate
	MaxTokens int
	ImageSize int
	Timeout   time.Duration
}

// Client runs task-directed inference on decoded images.
type Client struct {
	runtime   Runtime
	gate      *limiter.Gate
	maxTokens int
	imageSize int
	timeout   time.Duration
}

func New(opts Options) *Client {
	if opts.Gate == nil {
		opts.Gate = limiter.New(1)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &Client{
		runtime:   opts.Runtime,
		gate:      opts.Gate,
		maxTokens: opts.MaxTokens,
		imageSize: opts.ImageSize,
		timeout:   opts.Timeout,
	}
}

func (c *Client) Name() string { return "vision" }

// Analyze runs one forward pass with prompt task+aux and shapes the generation
// according to task. Every failure, panics included, comes back as a soft
// failure wrapping ai.ErrVisionInference.
func (c *Client) Analyze(ctx context.Context, img image.Image, task, aux string) (out ai.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("task", task).Msg("vision inference panicked")
			out = c.fail(fmt.Errorf("%w: panic: %v", ai.ErrVisionInference, r))
		}
	}()

	if c.runtime == nil {
		return c.fail(ai.ErrVisionUnavailable)
	}
	if img == nil {
		return c.fail(fmt.Errorf("%w: no image", ai.ErrVisionInference))
	}

	prompt := task + aux
	log.Info().Str("prompt", logger.Preview(prompt, 50)).Msg("analyzing image")

	b := img.Bounds()
	encoded, err := imagerender.EncodeForModel(img, c.imageSize)
	if err != nil {
		return c.fail(fmt.Errorf("%w: prepare image: %w", ai.ErrVisionInference, err))
	}

	cctx := ctx
	cancel := func() {}
	if c.timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	defer cancel()

	raw, err := c.generate(cctx, Request{Prompt: prompt, Image: encoded, MaxTokens: c.maxTokens})
	if err != nil {
		return c.fail(c.wrapContextErr(ctx, cctx, err))
	}

	parsed, err := PostProcess(raw, task, b.Dx(), b.Dy())
	if err != nil {
		return c.fail(fmt.Errorf("%w: post-process: %w", ai.ErrVisionInference, err))
	}

	log.Info().
		Str("task", task).
		Dur("duration", time.Since(start)).
		Str("raw", logger.Preview(raw, 50)).
		Msg("image analysis complete")
	return ai.Structured(c.Name(), parsed)
}

// generate holds a gate slot for the duration of one forward pass.
func (c *Client) generate(ctx context.Context, req Request) (string, error) {
	release, err := c.gate.Acquire(ctx)
	if err != nil {
		return "", err
	}
	metrics.SetVisionInflight(c.gate.InFlight())
	defer func() {
		release()
		metrics.SetVisionInflight(c.gate.InFlight())
	}()
	return c.runtime.Generate(ctx, req)
}

func (c *Client) wrapContextErr(parent, cctx context.Context, err error) error {
	if c.timeout > 0 && errors.Is(cctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w: %w after %v", ai.ErrVisionInference, ai.ErrTimeout, c.timeout)
	}
	return fmt.Errorf("%w: %w", ai.ErrVisionInference, err)
}

func (c *Client) fail(err error) ai.Outcome {
	log.Warn().Err(err).Msg("vision inference failed")
	return ai.Soft(c.Name(), "Error analyzing image: "+err.Error(), err)
}
