package statuscheck

import (
	"context"
	"errors"
	"os/exec"
)

// VisionState models the capability flags the checker reports on.
type VisionState interface {
	IsVisionAvailable() bool
	LoadError() error
}

// Checker aggregates readiness of the inference backends for /health.
type Checker struct {
	vision     VisionState
	enabled    bool
	textBinary string
	lookPath   func(string) (string, error)
}

// Options configures the Checker.
type Options struct {
	Vision        VisionState
	VisionEnabled bool
	TextBinary    string
	// LookPath defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all backend statuses.
type Summary struct {
	Vision Status `json:"vision"`
	Text   Status `json:"text"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	lp := opts.LookPath
	if lp == nil {
		lp = exec.LookPath
	}
	return &Checker{
		vision:     opts.Vision,
		enabled:    opts.VisionEnabled,
		textBinary: opts.TextBinary,
		lookPath:   lp,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Vision: c.checkVision(),
		Text:   c.checkText(),
	}
}

func (c *Checker) checkVision() Status {
	if !c.enabled {
		return Status{OK: false, Message: "Disabled"}
	}
	if c.vision == nil {
		return Status{OK: false, Message: "Not configured"}
	}
	if c.vision.IsVisionAvailable() {
		return Status{OK: true, Message: "Loaded"}
	}
	if err := c.vision.LoadError(); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: false, Message: "Not loaded"}
}

// checkText only verifies the binary is on PATH; the process itself is started per call.
func (c *Checker) checkText() Status {
	if c.textBinary == "" {
		return Status{OK: false, Message: "Command not configured"}
	}
	if _, err := c.lookPath(c.textBinary); err != nil {
		return Status{OK: false, Message: "Binary not found"}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
