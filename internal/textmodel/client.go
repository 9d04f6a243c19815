package textmodel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/medgateway/internal/ai"
)

// DefaultTimeoutMessage is returned when the process exceeds its time limit.
const DefaultTimeoutMessage = "Le modèle a mis trop de temps à répondre. Veuillez réessayer avec un document plus court."

// Options configures the Client.
type Options struct {
	// Command is the argv of the text-generation process; the prompt is written to its stdin.
	Command []string
	// TimeoutMessage overrides DefaultTimeoutMessage.
	TimeoutMessage string
	// WaitDelay bounds how long Generate waits for output pipes after the process was killed.
	WaitDelay time.Duration
}

// Client runs one external text-generation process per call.
type Client struct {
	command        []string
	timeoutMessage string
	waitDelay      time.Duration
}

// New creates a Client. An empty command defaults to `ollama run gemma3:1b`.
func New(opts Options) *Client {
	if len(opts.Command) == 0 {
		opts.Command = []string{"ollama", "run", "gemma3:1b"}
	}
	if opts.TimeoutMessage == "" {
		opts.TimeoutMessage = DefaultTimeoutMessage
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = 2 * time.Second
	}
	return &Client{command: opts.Command, timeoutMessage: opts.TimeoutMessage, waitDelay: opts.WaitDelay}
}

func (c *Client) Name() string { return "text" }

// Binary returns the executable the client launches.
func (c *Client) Binary() string { return c.command[0] }

// Generate writes prompt to a fresh process and waits up to limit for it to finish.
// A non-positive limit leaves the call bounded only by ctx. Every failure is a soft
// failure; Outcome.Err carries one of ai.ErrTimeout, ai.ErrProcessExit,
// ai.ErrProcessStart or ai.ErrProcessIO.
func (c *Client) Generate(ctx context.Context, prompt string, limit time.Duration) ai.Outcome {
	cctx := ctx
	cancel := func() {}
	if limit > 0 {
		cctx, cancel = context.WithTimeout(ctx, limit)
	}
	defer cancel()

	cmd := exec.CommandContext(cctx, c.command[0], c.command[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = c.waitDelay
	killGroupOnCancel(cmd)

	start := time.Now()
	err := cmd.Run()
	dur := time.Since(start)

	// The deadline check comes first: a killed process also reports an ExitError.
	if limit > 0 && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		log.Error().
			Str("cmd", c.command[0]).
			Dur("timeout", limit).
			Dur("duration", dur).
			Msg("text model timed out; process killed")
		return ai.Soft(c.Name(), c.timeoutMessage, fmt.Errorf("%w after %v", ai.ErrTimeout, limit))
	}

	if err != nil {
		return c.classify(ctx, err, stdout.String(), stderr.String(), dur)
	}

	out := strings.TrimSpace(strings.ToValidUTF8(stdout.String(), ""))
	log.Debug().
		Str("cmd", c.command[0]).
		Dur("duration", dur).
		Int("chars", len(out)).
		Msg("text model completed")
	return ai.Success(c.Name(), out)
}

func (c *Client) classify(ctx context.Context, err error, stdout, stderr string, dur time.Duration) ai.Outcome {
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn().Err(ctxErr).Str("cmd", c.command[0]).Msg("text model call cancelled by caller")
		return ai.Soft(c.Name(), "Erreur : "+ctxErr.Error(), fmt.Errorf("%w: %w", ai.ErrProcessIO, ctxErr))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		diag := strings.TrimSpace(strings.ToValidUTF8(stderr, ""))
		if diag == "" {
			diag = strings.TrimSpace(strings.ToValidUTF8(stdout, ""))
		}
		log.Error().
			Str("cmd", c.command[0]).
			Int("exit_code", exitErr.ExitCode()).
			Str("stderr", diag).
			Dur("duration", dur).
			Msg("text model exited with error")
		return ai.Soft(c.Name(), "Erreur : "+diag, fmt.Errorf("%w (code %d)", ai.ErrProcessExit, exitErr.ExitCode()))
	}

	if errors.Is(err, exec.ErrNotFound) || isStartError(err) {
		log.Error().Err(err).Str("cmd", c.command[0]).Msg("text model could not be started")
		return ai.Soft(c.Name(), "Erreur : "+err.Error(), fmt.Errorf("%w: %w", ai.ErrProcessStart, err))
	}

	log.Error().Err(err).Str("cmd", c.command[0]).Msg("text model i/o failure")
	return ai.Soft(c.Name(), "Erreur : "+err.Error(), fmt.Errorf("%w: %w", ai.ErrProcessIO, err))
}
